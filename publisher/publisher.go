// Package publisher drains the reliability buffer into the downstream broker.
//
// The publisher owns the broker connection state machine. While CONNECTED it
// pulls items from the buffer in FIFO order and publishes each one with an
// acknowledged publish; on any failure it transitions back through CONNECTING
// with jittered exponential backoff, retaining the unacknowledged item so the
// envelope is not lost across the outage. Stop flushes the buffer within a
// drain window and accounts for whatever could not be delivered.
package publisher

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/diodeflow/envelope"
	"github.com/c360/diodeflow/errors"
	"github.com/c360/diodeflow/metric"
	"github.com/c360/diodeflow/pkg/buffer"
	"github.com/c360/diodeflow/pkg/retry"
)

const (
	// maxPublishAttempts bounds retries for a single item. An envelope that
	// the broker rejects this many times is dropped as a buffer casualty
	// rather than wedging the pipeline behind one poison message.
	maxPublishAttempts = 5

	// readPollTimeout bounds how long a buffer read blocks, which in turn
	// bounds shutdown latency while CONNECTED.
	readPollTimeout = 250 * time.Millisecond

	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
)

// Item is one buffered envelope awaiting publication, stamped with its
// receive time. Attempts counts publish tries so a poison item cannot be
// retried forever.
type Item struct {
	Envelope   envelope.Envelope
	ReceivedAt time.Time
	Attempts   int
}

// Deps holds the publisher's dependencies. Buffer and Broker are required.
type Deps struct {
	Buffer   buffer.Buffer[Item]
	Broker   Broker
	Metrics  *metric.Metrics
	Registry *metric.MetricsRegistry
	Logger   *slog.Logger

	// Backoff shapes the reconnect delays. Zero value gets defaults.
	Backoff retry.Config

	// ConnectTimeout and PublishTimeout bound individual broker calls.
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

// Publisher runs the broker connection state machine and the publish loop.
type Publisher struct {
	buf     buffer.Buffer[Item]
	broker  Broker
	metrics *metric.Metrics
	local   *Metrics
	logger  *slog.Logger
	backoff retry.Config

	connectTimeout time.Duration
	publishTimeout time.Duration

	state atomic.Int32

	// inflight holds an item pulled from the buffer but not yet acknowledged.
	// Touched only by the run goroutine, and by Stop after the run goroutine
	// has exited.
	inflight *Item

	shutdown chan struct{}
	done     chan struct{}
	started  atomic.Bool
	stopOnce sync.Once
}

// New creates a publisher. Start must be called before items flow.
func New(deps Deps) (*Publisher, error) {
	if deps.Buffer == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig,
			"Publisher", "New", "buffer dependency validation")
	}
	if deps.Broker == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig,
			"Publisher", "New", "broker dependency validation")
	}

	metrics := deps.Metrics
	if metrics == nil {
		metrics = metric.NewMetrics()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	backoff := deps.Backoff
	if backoff.InitialDelay <= 0 {
		backoff.InitialDelay = 500 * time.Millisecond
	}
	if backoff.MaxDelay <= 0 {
		backoff.MaxDelay = 30 * time.Second
	}
	if backoff.Multiplier <= 0 {
		backoff.Multiplier = 2.0
	}

	connectTimeout := deps.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	publishTimeout := deps.PublishTimeout
	if publishTimeout <= 0 {
		publishTimeout = defaultPublishTimeout
	}

	return &Publisher{
		buf:            deps.Buffer,
		broker:         deps.Broker,
		metrics:        metrics,
		local:          newMetrics(deps.Registry),
		logger:         logger,
		backoff:        backoff,
		connectTimeout: connectTimeout,
		publishTimeout: publishTimeout,
		shutdown:       make(chan struct{}),
		done:           make(chan struct{}),
	}, nil
}

// State returns the current connection state.
func (p *Publisher) State() State {
	return State(p.state.Load())
}

func (p *Publisher) setState(s State) {
	old := State(p.state.Swap(int32(s)))
	p.metrics.RecordConnectionState(int(s))
	if old != s {
		p.logger.Info("broker connection state changed",
			"from", old.String(),
			"to", s.String())
	}
}

// Start launches the run loop. Calling Start twice is an error.
func (p *Publisher) Start() error {
	if !p.started.CompareAndSwap(false, true) {
		return errors.WrapInvalid(errors.ErrAlreadyStarted,
			"Publisher", "Start", "start check")
	}

	p.setState(StateDisconnected)
	go p.run()

	p.logger.Info("publisher started")
	return nil
}

// run drives the connection state machine until shutdown.
func (p *Publisher) run() {
	defer close(p.done)

	attempt := 0

	for {
		select {
		case <-p.shutdown:
			return
		default:
		}

		switch p.State() {
		case StateDisconnected:
			p.setState(StateConnecting)

		case StateConnecting:
			if attempt > 0 {
				delay := retry.Jittered(p.backoff.Delay(attempt - 1))
				p.logger.Debug("waiting before reconnect",
					"attempt", attempt,
					"delay", delay)
				timer := time.NewTimer(delay)
				select {
				case <-p.shutdown:
					timer.Stop()
					return
				case <-timer.C:
				}
			}

			if err := p.connect(); err != nil {
				attempt++
				p.logger.Warn("broker connect failed",
					"attempt", attempt,
					"error", err)
				continue
			}

			attempt = 0
			p.metrics.RecordConnect()
			p.setState(StateConnected)

		case StateConnected:
			item, ok := p.next()
			if !ok {
				continue
			}

			item.Attempts++
			if err := p.publish(item); err != nil {
				p.metrics.RecordPublishRetry()

				if item.Attempts >= maxPublishAttempts {
					// Poison item: drop it so the rest of the buffer
					// keeps flowing.
					p.inflight = nil
					p.metrics.RecordBufferDrop()
					p.logger.Error("dropping envelope after repeated publish failures",
						"seq", item.Envelope.Seq,
						"attempts", item.Attempts,
						"error", err)
				} else {
					// Retain across the reconnect.
					p.inflight = &item
				}

				p.logger.Warn("publish failed, reconnecting",
					"seq", item.Envelope.Seq,
					"error", err)
				p.setState(StateDisconnected)
				continue
			}

			p.inflight = nil
			p.metrics.RecordPublished()

		default:
			return
		}
	}
}

// next returns the retained in-flight item if one exists, otherwise polls the
// buffer briefly so shutdown is never blocked behind an empty buffer.
func (p *Publisher) next() (Item, bool) {
	if p.inflight != nil {
		return *p.inflight, true
	}
	return p.buf.ReadWithTimeout(readPollTimeout)
}

func (p *Publisher) connect() error {
	ctx, cancel := context.WithTimeout(context.Background(), p.connectTimeout)
	defer cancel()

	// Abort the attempt early if shutdown arrives mid-connect.
	go func() {
		select {
		case <-p.shutdown:
			cancel()
		case <-ctx.Done():
		}
	}()

	return p.broker.Connect(ctx)
}

func (p *Publisher) publish(item Item) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.publishTimeout)
	defer cancel()

	start := time.Now()
	err := p.broker.Publish(ctx, item)
	if p.local != nil {
		if err == nil {
			p.local.publishLatency.Observe(time.Since(start).Seconds())
		}
		p.local.backlog.Set(float64(p.buf.Size()))
	}
	return err
}

// Stop transitions to DRAINING, flushes buffered items until the buffer is
// empty or the timeout expires, counts the remainder as shutdown drops, and
// closes the broker connection. Safe to call more than once; later calls
// return nil without waiting.
func (p *Publisher) Stop(timeout time.Duration) error {
	var stopErr error

	p.stopOnce.Do(func() {
		close(p.shutdown)
		if p.started.Load() {
			<-p.done
		}

		p.setState(StateDraining)
		stopErr = p.drain(time.Now().Add(timeout))
	})

	return stopErr
}

// drain runs after the run goroutine has exited, so inflight and the buffer
// have a single owner again.
func (p *Publisher) drain(deadline time.Time) error {
	flushed := 0

	for time.Now().Before(deadline) {
		item, ok := p.takeInflight()
		if !ok {
			item, ok = p.buf.Read()
		}
		if !ok {
			break
		}

		ctx, cancel := context.WithDeadline(context.Background(), deadline)
		err := p.broker.Publish(ctx, item)
		cancel()
		if err != nil {
			// Put it back so it counts toward the dropped remainder.
			p.inflight = &item
			p.logger.Warn("drain publish failed",
				"seq", item.Envelope.Seq,
				"error", err)
			break
		}

		p.metrics.RecordPublished()
		flushed++
	}

	remainder := uint64(p.buf.Size())
	if p.inflight != nil {
		remainder++
		p.inflight = nil
	}
	p.metrics.RecordShutdownDrop(remainder)

	closeCtx, cancel := context.WithDeadline(context.Background(), deadline.Add(time.Second))
	defer cancel()
	closeErr := p.broker.Close(closeCtx)

	p.logger.Info("publisher stopped",
		"flushed", flushed,
		"dropped", remainder)

	if closeErr != nil {
		return errors.Wrap(closeErr, "Publisher", "Stop", "close broker")
	}
	return nil
}

func (p *Publisher) takeInflight() (Item, bool) {
	if p.inflight == nil {
		return Item{}, false
	}
	item := *p.inflight
	p.inflight = nil
	return item, true
}
