// Package natsclient provides a thin NATS JetStream client for the broker
// side of the pipeline: connect, ensure a stream, publish with per-message
// acknowledgment, drain on close.
//
// The client deliberately does NOT use the NATS library's automatic
// reconnection. Reconnection policy belongs to the publisher's connection
// state machine, which needs to observe every disconnect so it can stop
// pulling from the buffer; a transport that silently self-heals would hide
// those transitions.
package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/diodeflow/errors"
)

// ConnectionStatus represents the state of the NATS connection
type ConnectionStatus int

// Possible connection statuses
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
)

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Client manages a single NATS connection with JetStream publishing
type Client struct {
	url    string
	status atomic.Value // stores ConnectionStatus
	logger Logger

	conn *nats.Conn
	js   jetstream.JetStream

	// Connection options
	timeout      time.Duration
	drainTimeout time.Duration
	clientName   string

	// Callbacks
	onDisconnect func(error)

	mu      sync.RWMutex
	closeMu sync.Mutex  // Ensures Close() runs cleanup only once
	closed  atomic.Bool // Track if client is closed
}

// NewClient creates a new NATS client with optional configuration
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	if url == "" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("empty broker URL"),
			"Client", "NewClient", "url validation")
	}

	c := &Client{
		url:    url,
		logger: &defaultLogger{},
		// Sensible defaults
		timeout:      5 * time.Second,
		drainTimeout: 10 * time.Second,
		clientName:   defaultClientName(),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}

	c.status.Store(StatusDisconnected)

	c.logger.Debugf("Created NATS client %s for %s", c.clientName, url)

	return c, nil
}

// URL returns the NATS server URL
func (m *Client) URL() string {
	return m.url
}

// Status returns the current connection status
func (m *Client) Status() ConnectionStatus {
	val := m.status.Load()
	if val == nil {
		return StatusDisconnected
	}
	return val.(ConnectionStatus)
}

// IsHealthy returns true if the connection is established and alive
func (m *Client) IsHealthy() bool {
	if m.Status() != StatusConnected {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conn != nil && m.conn.IsConnected()
}

func (m *Client) setStatus(status ConnectionStatus) {
	m.status.Store(status)
}

// Connect establishes a connection to the NATS server and initializes
// JetStream. A single attempt: callers owning a retry loop decide whether
// and when to call again.
func (m *Client) Connect(ctx context.Context) error {
	if m.closed.Load() {
		return errors.WrapInvalid(errors.ErrAlreadyStopped,
			"Client", "Connect", "client closed")
	}

	m.setStatus(StatusConnecting)
	m.logger.Debugf("Connecting to NATS at %s", m.url)

	opts := []nats.Option{
		nats.Name(m.clientName),
		nats.Timeout(m.timeout),
		// The publisher's state machine owns reconnection.
		nats.MaxReconnects(0),
		nats.RetryOnFailedConnect(false),
		nats.DisconnectErrHandler(m.handleDisconnect),
		nats.ClosedHandler(m.handleClosed),
		nats.ErrorHandler(m.handleError),
	}

	connectDone := make(chan error, 1)
	go func() {
		conn, err := nats.Connect(m.url, opts...)
		if err != nil {
			connectDone <- err
			return
		}

		js, err := jetstream.New(conn)
		if err != nil {
			conn.Close()
			connectDone <- err
			return
		}

		m.mu.Lock()
		old := m.conn
		m.conn = conn
		m.js = js
		m.mu.Unlock()

		// Release any dead connection from a previous attempt
		if old != nil && !old.IsClosed() {
			old.Close()
		}

		connectDone <- nil
	}()

	select {
	case err := <-connectDone:
		if err != nil {
			m.setStatus(StatusDisconnected)
			return errors.WrapTransient(err, "Client", "Connect", "establish connection")
		}
	case <-ctx.Done():
		m.setStatus(StatusDisconnected)
		return errors.WrapTransient(ctx.Err(), "Client", "Connect", "connection cancelled")
	}

	m.setStatus(StatusConnected)
	m.logger.Printf("Connected to NATS at %s", m.url)

	return nil
}

// EnsureStream creates the JetStream stream backing the configured queue if
// it does not exist, and returns the existing one if it does.
func (m *Client) EnsureStream(ctx context.Context, name string, subjects []string) error {
	js, err := m.jetStream()
	if err != nil {
		return err
	}

	cfg := jetstream.StreamConfig{
		Name:      name,
		Subjects:  subjects,
		Retention: jetstream.LimitsPolicy,
		Storage:   jetstream.FileStorage,
	}

	if _, err := js.CreateStream(ctx, cfg); err != nil {
		if isAlreadyExistsError(err) {
			if _, getErr := js.Stream(ctx, name); getErr == nil {
				m.logger.Debugf("Using existing stream %s", name)
				return nil
			}
		}
		return errors.WrapTransient(err, "Client", "EnsureStream",
			fmt.Sprintf("create stream %s", name))
	}

	m.logger.Printf("Ensured stream %s for subjects %v", name, subjects)
	return nil
}

// PublishMsg publishes a message to a subject and waits for the JetStream
// acknowledgment. The ack is what upgrades the hop from fire-and-forget to
// at-least-once: the caller must not release the message until this returns
// nil.
func (m *Client) PublishMsg(ctx context.Context, subject string, data []byte, header nats.Header) error {
	js, err := m.jetStream()
	if err != nil {
		return err
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header:  header,
	}

	if _, err := js.PublishMsg(ctx, msg); err != nil {
		return errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrPublishRejected, err),
			"Client", "PublishMsg", "acknowledged publish")
	}

	return nil
}

// jetStream returns the JetStream context if connected.
func (m *Client) jetStream() (jetstream.JetStream, error) {
	if m.Status() != StatusConnected {
		return nil, errors.WrapTransient(errors.ErrNoConnection,
			"Client", "jetStream", "connection check")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.js == nil {
		return nil, errors.WrapTransient(errors.ErrNoConnection,
			"Client", "jetStream", "JetStream context check")
	}
	return m.js, nil
}

// Close drains and closes the NATS connection. Safe to call more than once.
// The context deadline, when shorter than the configured drain timeout,
// bounds the drain.
func (m *Client) Close(ctx context.Context) error {
	m.closeMu.Lock()
	defer m.closeMu.Unlock()

	if m.closed.Load() {
		return nil
	}
	m.closed.Store(true)

	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.js = nil
	m.mu.Unlock()

	var drainErr error
	if conn != nil && !conn.IsClosed() {
		drainTimeout := m.drainTimeout
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := time.Until(deadline); remaining > 0 && remaining < drainTimeout {
				drainTimeout = remaining
			}
		}

		drainDone := make(chan error, 1)
		go func() {
			drainDone <- conn.Drain()
		}()

		select {
		case err := <-drainDone:
			if err != nil {
				drainErr = errors.Wrap(err, "Client", "Close", "drain connection")
			}
		case <-time.After(drainTimeout):
			drainErr = errors.WrapTransient(
				fmt.Errorf("drain timeout after %v", drainTimeout),
				"Client", "Close", "drain timeout")
			m.logger.Errorf("Drain timeout after %v, force closing", drainTimeout)
		case <-ctx.Done():
			drainErr = errors.Wrap(ctx.Err(), "Client", "Close", "context cancelled during drain")
		}

		conn.Close()
	}

	m.setStatus(StatusDisconnected)

	return drainErr
}

// Event handlers for the NATS connection

func (m *Client) handleDisconnect(_ *nats.Conn, err error) {
	m.setStatus(StatusDisconnected)

	m.mu.RLock()
	onDisconnect := m.onDisconnect
	m.mu.RUnlock()

	if onDisconnect != nil {
		go onDisconnect(err)
	}
}

func (m *Client) handleClosed(_ *nats.Conn) {
	m.setStatus(StatusDisconnected)
}

func (m *Client) handleError(_ *nats.Conn, _ *nats.Subscription, err error) {
	m.logger.Errorf("NATS error: %v", err)
}

// isAlreadyExistsError checks if an error indicates a stream already exists
func isAlreadyExistsError(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, jetstream.ErrStreamNameAlreadyInUse) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "already exists") ||
		strings.Contains(errStr, "stream name already in use")
}
