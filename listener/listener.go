// Package listener receives envelope datagrams on a UDP socket, validates
// them, tracks sequence gaps, and hands survivors to the reliability buffer.
//
// The socket is the receiving end of a one-way link: nothing is ever written
// back. Undecodable datagrams are counted and dropped; well-formed envelopes
// are stamped with their arrival time and buffered for the publisher.
package listener

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/diodeflow/envelope"
	"github.com/c360/diodeflow/errors"
	"github.com/c360/diodeflow/metric"
	"github.com/c360/diodeflow/pkg/buffer"
	"github.com/c360/diodeflow/pkg/retry"
	"github.com/c360/diodeflow/publisher"
)

// Deps holds runtime dependencies for the listener. Buffer is required; the
// listener shares it with the publisher rather than owning it.
type Deps struct {
	Port     int
	Bind     string
	Buffer   buffer.Buffer[publisher.Item]
	Metrics  *metric.Metrics
	Registry *metric.MetricsRegistry
	Logger   *slog.Logger
}

// Listener binds a UDP socket and feeds decoded envelopes into the buffer.
type Listener struct {
	port   int
	bind   string
	buf    buffer.Buffer[publisher.Item]
	core   *metric.Metrics
	logger *slog.Logger

	retryConfig retry.Config

	// Lifecycle management
	shutdown  chan struct{}
	done      chan struct{}
	running   atomic.Bool
	startTime time.Time
	mu        sync.RWMutex
	wg        sync.WaitGroup
	conn      *net.UDPConn

	// Counters (atomic for thread safety)
	datagramsReceived atomic.Int64
	bytesReceived     atomic.Int64
	malformedDropped  atomic.Int64
	socketErrors      atomic.Int64
	gapLost           atomic.Uint64
	lastActivity      atomic.Value // stores time.Time

	// Gap tracking, owned by the read loop
	tracker GapTracker

	metrics *Metrics
}

// New creates a listener. Start must be called before datagrams flow.
func New(deps Deps) (*Listener, error) {
	if deps.Buffer == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig,
			"Listener", "New", "buffer dependency validation")
	}
	if deps.Port < 0 || deps.Port > 65535 {
		return nil, errors.WrapInvalid(fmt.Errorf("invalid port %d", deps.Port),
			"Listener", "New", "port validation")
	}

	bind := deps.Bind
	if bind == "" {
		bind = "0.0.0.0"
	}

	core := deps.Metrics
	if core == nil {
		core = metric.NewMetrics()
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "listener", "port", deps.Port)
	}

	l := &Listener{
		port:        deps.Port,
		bind:        bind,
		buf:         deps.Buffer,
		core:        core,
		logger:      logger,
		retryConfig: retry.DefaultConfig(),
		startTime:   time.Now(),
		metrics:     newMetrics(deps.Registry, deps.Port),
	}
	l.lastActivity.Store(time.Time{})
	return l, nil
}

// Start binds the socket with retry and launches the read loop. Calling Start
// while running returns nil.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running.Load() {
		return nil
	}

	l.shutdown = make(chan struct{})
	l.done = make(chan struct{})

	if err := retry.Do(ctx, l.retryConfig, l.bindSocket); err != nil {
		l.cleanupUnlocked()
		return errors.WrapTransient(err, "Listener", "Start", "socket binding")
	}

	l.running.Store(true)
	l.startTime = time.Now()

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer close(l.done)
		l.readLoop(ctx)
	}()

	l.logger.Info("listener started", "addr", l.conn.LocalAddr().String())
	return nil
}

// bindSocket creates and binds the UDP socket.
func (l *Listener) bindSocket() error {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", l.bind, l.port))
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address %s:%d: %w", l.bind, l.port, err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP port %d: %w", l.port, err)
	}

	// Larger OS socket buffer absorbs bursts the read loop has not drained yet
	const socketBufferSize = 2 * 1024 * 1024
	if err := conn.SetReadBuffer(socketBufferSize); err != nil {
		// Some systems limit buffer size; not fatal
		l.logger.Warn("Could not set UDP buffer size",
			"buffer_size", socketBufferSize,
			"port", l.port,
			"error", err)
	}

	l.conn = conn
	return nil
}

// Addr returns the bound socket address, useful when listening on port 0.
func (l *Listener) Addr() net.Addr {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// Stop gracefully stops the listener within the given timeout. Idempotent.
func (l *Listener) Stop(timeout time.Duration) error {
	if !l.running.Load() {
		return nil
	}
	l.running.Store(false)

	l.mu.Lock()
	if l.shutdown != nil {
		select {
		case <-l.shutdown:
		default:
			close(l.shutdown)
		}
	}
	// Close the socket to unblock the read loop
	if l.conn != nil {
		_ = l.conn.Close()
	}
	done := l.done
	l.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-time.After(timeout):
			return errors.WrapTransient(fmt.Errorf("stop timeout after %v", timeout),
				"Listener", "Stop", "graceful shutdown")
		}
	}

	l.cleanup()
	l.logger.Info("listener stopped",
		"received", l.datagramsReceived.Load(),
		"malformed", l.malformedDropped.Load(),
		"gap_lost", l.gapLost.Load())
	return nil
}

func (l *Listener) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cleanupUnlocked()
}

func (l *Listener) cleanupUnlocked() {
	if l.shutdown != nil {
		select {
		case <-l.shutdown:
		default:
			close(l.shutdown)
		}
		l.shutdown = nil
	}
	if l.conn != nil {
		_ = l.conn.Close()
		l.conn = nil
	}
}

// readLoop reads datagrams until shutdown, decoding and buffering each one.
func (l *Listener) readLoop(ctx context.Context) {
	// One read buffer reused across iterations; Decode copies the payload
	readBuf := make([]byte, 65536)

	for l.running.Load() {
		select {
		case <-ctx.Done():
			return
		case <-l.shutdown:
			return
		default:
		}

		l.mu.RLock()
		conn := l.conn
		l.mu.RUnlock()
		if conn == nil {
			return
		}

		// Short deadline so shutdown is noticed promptly
		_ = conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))

		n, _, err := conn.ReadFromUDP(readBuf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}

			select {
			case <-ctx.Done():
				return
			case <-l.shutdown:
				return
			default:
				l.socketErrors.Add(1)
				if l.metrics != nil {
					l.metrics.socketErrors.Inc()
				}
				if !errors.IsTransient(err) {
					l.logger.Error("unrecoverable socket error", "error", err)
					return
				}
				continue
			}
		}

		l.handleDatagram(readBuf[:n])
	}
}

// handleDatagram decodes one datagram and pushes the envelope into the
// buffer. Malformed data is counted and dropped; the sender cannot be told.
func (l *Listener) handleDatagram(data []byte) {
	now := time.Now()
	l.bytesReceived.Add(int64(len(data)))
	l.lastActivity.Store(now)
	if l.metrics != nil {
		l.metrics.bytesReceived.Add(float64(len(data)))
		l.metrics.lastActivity.Set(float64(now.Unix()))
	}

	env, err := envelope.Decode(data)
	if err != nil {
		l.malformedDropped.Add(1)
		l.core.RecordMalformedDrop()
		l.logger.Debug("dropped malformed datagram",
			"bytes", len(data),
			"error", err)
		return
	}

	l.datagramsReceived.Add(1)
	l.core.RecordReceived()

	if lost := l.tracker.Observe(env.Seq); lost > 0 {
		l.gapLost.Add(lost)
		l.core.RecordGapLoss(lost)
		l.logger.Warn("sequence gap detected",
			"seq", env.Seq,
			"lost", lost,
			"total_lost", l.tracker.TotalLost())
	}

	item := publisher.Item{
		Envelope:   env,
		ReceivedAt: now,
	}
	if err := l.buf.Write(item); err != nil {
		// Buffer closed during shutdown; the envelope is gone either way
		l.logger.Debug("buffer write failed", "seq", env.Seq, "error", err)
		return
	}

	if l.metrics != nil && l.buf.Capacity() > 0 {
		l.metrics.bufferUtilization.Set(float64(l.buf.Size()) / float64(l.buf.Capacity()))
	}
}

// Stats reports listener counters for logging and health checks.
type Stats struct {
	DatagramsReceived int64
	BytesReceived     int64
	MalformedDropped  int64
	SocketErrors      int64
	GapLost           uint64
	LastActivity      time.Time
	Uptime            time.Duration
}

// Stats returns a snapshot of the listener counters.
func (l *Listener) Stats() Stats {
	lastActivity, _ := l.lastActivity.Load().(time.Time)
	return Stats{
		DatagramsReceived: l.datagramsReceived.Load(),
		BytesReceived:     l.bytesReceived.Load(),
		MalformedDropped:  l.malformedDropped.Load(),
		SocketErrors:      l.socketErrors.Load(),
		GapLost:           l.gapLost.Load(),
		LastActivity:      lastActivity,
		Uptime:            time.Since(l.startTime),
	}
}
