// Package diodeflow implements a one-way telemetry pipeline over UDP,
// modeled on a data diode: datagrams flow from sender to receiver and
// nothing ever flows back.
//
// # Philosophy: One Direction, Honest Accounting
//
// The transport is deliberately lossy and unacknowledged. The sender cannot
// know what arrived, so it does not try: Emit is fire-and-forget, and every
// attempt consumes a sequence number whether or not the datagram leaves the
// host. All reliability work happens on the receiving side, and every loss
// is counted somewhere:
//
//   - Undecodable datagrams: malformed drops at the listener
//   - Datagrams that never arrived: gap losses inferred from sequence numbers
//   - Envelopes evicted under backpressure or poison retries: buffer drops
//   - Envelopes abandoned when the drain window expires: shutdown drops
//
// An envelope the receiver accepts is either acknowledged by the broker or
// accounted for by exactly one of those counters.
//
// # Architecture
//
//	┌──────────┐  UDP datagrams   ┌──────────┐
//	│  Sender  │ ───────────────→ │ Listener │   decode, checksum,
//	│  (Emit)  │    (one-way)     │          │   gap tracking
//	└──────────┘                  └────┬─────┘
//	                                   ↓
//	                           ┌───────────────┐
//	                           │  Reliability  │   bounded, DropOldest
//	                           │    Buffer     │   under overflow
//	                           └───────┬───────┘
//	                                   ↓
//	                           ┌───────────────┐
//	                           │   Publisher   │   connection state machine,
//	                           │               │   backoff, acked publish
//	                           └───────┬───────┘
//	                                   ↓
//	                            NATS JetStream
//
// The publisher owns the broker connection state machine (DISCONNECTED,
// CONNECTING, CONNECTED, DRAINING). While the broker is down the buffer
// absorbs arrivals; when it returns, buffered envelopes flow out in FIFO
// order with their original sequence numbers and timestamps as headers.
//
// # Packages
//
// Pipeline:
//   - envelope: datagram wire format (header, CRC-32 checksum, gap arithmetic)
//   - sender: fire-and-forget UDP emission
//   - listener: UDP socket, decoding, loss inference
//   - publisher: buffer drain, broker state machine, drain-on-shutdown
//
// Infrastructure:
//   - natsclient: NATS JetStream connection management
//   - config: environment-driven configuration
//   - metric: Prometheus metrics registry and HTTP server
//   - errors: classified error handling
//   - pkg/buffer: generic bounded circular buffer
//   - pkg/retry: exponential backoff
//
// Binaries:
//   - cmd/diode-sender: emits synthetic or piped telemetry
//   - cmd/diode-receiver: listener + buffer + publisher + metrics
//
// # Usage
//
// Wiring the receiving side by hand:
//
//	registry := metric.NewMetricsRegistry()
//	core := registry.CoreMetrics()
//
//	buf, _ := buffer.NewCircularBuffer[publisher.Item](10000,
//	    buffer.WithOverflowPolicy[publisher.Item](buffer.DropOldest),
//	    buffer.WithDropCallback[publisher.Item](func(publisher.Item) {
//	        core.RecordBufferDrop()
//	    }),
//	)
//
//	client, _ := natsclient.NewClient("nats://localhost:4222")
//	pub, _ := publisher.New(publisher.Deps{
//	    Buffer: buf,
//	    Broker: publisher.NewNATSBroker(client, "telemetry", "TELEMETRY"),
//	    Metrics: core,
//	})
//	pub.Start()
//
//	lst, _ := listener.New(listener.Deps{Port: 9999, Buffer: buf, Metrics: core})
//	lst.Start(ctx)
//
// # Design Principles
//
// No feedback channel:
//   - The sender has no socket reads, no acks, no retries
//   - Receiver-side counters are the only record of loss
//
// Bounded everything:
//   - Fixed-capacity buffer with explicit overflow policy
//   - Capped publish attempts per envelope
//   - Time-boxed drain on shutdown
//
// Testability:
//   - Explicit dependencies (no globals)
//   - Broker behind an interface; fakes drive the state machine
//   - Integration tests with testcontainers
package diodeflow
