// Package sender emits envelope datagrams across the one-way link.
//
// Emit is fire-and-forget by construction: it returns nothing, never blocks
// on the network fate of a datagram, and never learns whether one arrived.
// The sequence number advances on every call, including failed ones, so the
// receiver's gap accounting stays truthful about what the sender attempted.
package sender

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/diodeflow/envelope"
	"github.com/c360/diodeflow/errors"
	"github.com/c360/diodeflow/metric"
)

// Sender owns a connected UDP socket aimed at the receiver.
type Sender struct {
	target string
	logger *slog.Logger

	seq        atomic.Uint32
	sent       atomic.Int64
	sendErrors atomic.Int64

	mu     sync.Mutex
	conn   *net.UDPConn
	closed bool

	metrics *senderMetrics
}

type senderMetrics struct {
	sentTotal   prometheus.Counter
	errorsTotal prometheus.Counter
}

// Option configures a Sender.
type Option func(*Sender) error

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sender) error {
		if logger == nil {
			return fmt.Errorf("nil logger")
		}
		s.logger = logger
		return nil
	}
}

// WithMetrics registers sender counters with the given registry.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(s *Sender) error {
		if registry == nil {
			return nil
		}
		m := &senderMetrics{
			sentTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "diodeflow",
				Subsystem: "sender",
				Name:      "sent_total",
				Help:      "Total datagrams handed to the socket",
			}),
			errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "diodeflow",
				Subsystem: "sender",
				Name:      "send_errors_total",
				Help:      "Emit calls that failed locally (encode or socket write)",
			}),
		}
		if err := registry.RegisterCounter("sender", "sent", m.sentTotal); err != nil {
			return err
		}
		if err := registry.RegisterCounter("sender", "send_errors", m.errorsTotal); err != nil {
			return err
		}
		s.metrics = m
		return nil
	}
}

// New creates a sender aimed at target ("host:port"). The socket is
// connected so each Emit is a single write with no per-call resolution.
func New(target string, opts ...Option) (*Sender, error) {
	if target == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig,
			"Sender", "New", "target validation")
	}

	addr, err := net.ResolveUDPAddr("udp", target)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Sender", "New", "target resolution")
	}

	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, errors.WrapTransient(err, "Sender", "New", "socket setup")
	}

	s := &Sender{
		target: target,
		logger: slog.Default().With("component", "sender", "target", target),
		conn:   conn,
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			_ = conn.Close()
			return nil, errors.WrapInvalid(err, "Sender", "New", "apply option")
		}
	}

	return s, nil
}

// Emit sends one payload as a single datagram. No return value: the link is
// one-way and the caller has nothing useful to do with a failure. Local
// errors (oversized payload, socket write) are logged and counted, and the
// sequence number is consumed regardless so numbering reflects every attempt.
func (s *Sender) Emit(payload []byte) {
	seq := s.seq.Add(1) - 1

	data, err := envelope.Encode(envelope.New(seq, payload))
	if err != nil {
		s.sendErrors.Add(1)
		if s.metrics != nil {
			s.metrics.errorsTotal.Inc()
		}
		s.logger.Error("dropped payload before send",
			"seq", seq,
			"bytes", len(payload),
			"error", err)
		return
	}

	s.mu.Lock()
	conn := s.conn
	closed := s.closed
	s.mu.Unlock()

	if closed || conn == nil {
		s.sendErrors.Add(1)
		if s.metrics != nil {
			s.metrics.errorsTotal.Inc()
		}
		s.logger.Error("emit after close", "seq", seq)
		return
	}

	if _, err := conn.Write(data); err != nil {
		s.sendErrors.Add(1)
		if s.metrics != nil {
			s.metrics.errorsTotal.Inc()
		}
		s.logger.Error("datagram send failed", "seq", seq, "error", err)
		return
	}

	s.sent.Add(1)
	if s.metrics != nil {
		s.metrics.sentTotal.Inc()
	}
}

// NextSeq returns the sequence number the next Emit will use.
func (s *Sender) NextSeq() uint32 {
	return s.seq.Load()
}

// Stats reports sender counters.
type Stats struct {
	Sent       int64
	SendErrors int64
	NextSeq    uint32
}

// Stats returns a snapshot of the sender counters.
func (s *Sender) Stats() Stats {
	return Stats{
		Sent:       s.sent.Load(),
		SendErrors: s.sendErrors.Load(),
		NextSeq:    s.seq.Load(),
	}
}

// Close releases the socket. Emit after Close logs and counts an error but
// still consumes a sequence number. Idempotent.
func (s *Sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var err error
	if s.conn != nil {
		err = s.conn.Close()
		s.conn = nil
	}
	if err != nil {
		return errors.Wrap(err, "Sender", "Close", "socket close")
	}
	return nil
}

// Target returns the configured receiver address.
func (s *Sender) Target() string {
	return s.target
}
