package publisher

import (
	"context"
	"strconv"

	"github.com/nats-io/nats.go"

	"github.com/c360/diodeflow/natsclient"
)

// Headers forwarded with every published message so downstream consumers can
// detect loss without trusting the pipeline's own counters.
const (
	HeaderSeq       = "Diode-Seq"
	HeaderTimestamp = "Diode-Timestamp"
)

// Broker abstracts the downstream message broker. The production
// implementation wraps the NATS JetStream client; tests substitute a fake to
// drive the connection state machine deterministically.
type Broker interface {
	// Connect establishes the broker connection and prepares the queue.
	Connect(ctx context.Context) error

	// Publish delivers one item and waits for the broker acknowledgment.
	// A nil return means the broker owns the message.
	Publish(ctx context.Context, item Item) error

	// Close tears the connection down, flushing what the transport allows.
	Close(ctx context.Context) error
}

// NATSBroker publishes items to a JetStream stream, one message per item,
// payload as the body and envelope metadata as headers.
type NATSBroker struct {
	client *natsclient.Client
	queue  string
	stream string
}

// NewNATSBroker wraps a NATS client for the given queue name. The backing
// stream is the upper-cased queue name, created on first connect.
func NewNATSBroker(client *natsclient.Client, queue, stream string) *NATSBroker {
	return &NATSBroker{
		client: client,
		queue:  queue,
		stream: stream,
	}
}

// Connect establishes the connection and ensures the stream exists. Both
// must succeed before the publisher may consider itself CONNECTED; a broker
// that accepts connections but cannot host the stream is not usable.
func (b *NATSBroker) Connect(ctx context.Context) error {
	if err := b.client.Connect(ctx); err != nil {
		return err
	}
	return b.client.EnsureStream(ctx, b.stream, []string{b.queue})
}

// Publish sends one item and waits for the JetStream ack.
func (b *NATSBroker) Publish(ctx context.Context, item Item) error {
	header := nats.Header{}
	header.Set(HeaderSeq, strconv.FormatUint(uint64(item.Envelope.Seq), 10))
	header.Set(HeaderTimestamp, strconv.FormatUint(item.Envelope.Timestamp, 10))

	return b.client.PublishMsg(ctx, b.queue, item.Envelope.Payload, header)
}

// Close drains and closes the underlying connection.
func (b *NATSBroker) Close(ctx context.Context) error {
	return b.client.Close(ctx)
}
