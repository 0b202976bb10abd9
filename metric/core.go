package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all pipeline-level metrics (not component-specific)
type Metrics struct {
	// Ingest metrics
	ReceivedTotal      prometheus.Counter
	MalformedDropTotal prometheus.Counter
	GapLostTotal       prometheus.Counter

	// Buffer metrics
	BufferDropTotal prometheus.Counter

	// Publish metrics
	PublishedTotal    prometheus.Counter
	ShutdownDropTotal prometheus.Counter
	PublishRetries    prometheus.Counter

	// Broker connection metrics
	ConnectionState prometheus.Gauge
	ConnectsTotal   prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all pipeline metrics
func NewMetrics() *Metrics {
	return &Metrics{
		ReceivedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "diodeflow",
				Subsystem: "listener",
				Name:      "received_total",
				Help:      "Total number of well-formed envelopes received",
			},
		),

		MalformedDropTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "diodeflow",
				Subsystem: "listener",
				Name:      "malformed_drop_total",
				Help:      "Total number of datagrams dropped as undecodable",
			},
		),

		GapLostTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "diodeflow",
				Subsystem: "listener",
				Name:      "gap_lost_total",
				Help:      "Total number of envelopes inferred lost from sequence gaps",
			},
		),

		BufferDropTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "diodeflow",
				Subsystem: "buffer",
				Name:      "drop_total",
				Help:      "Total number of envelopes evicted from the reliability buffer",
			},
		),

		PublishedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "diodeflow",
				Subsystem: "publisher",
				Name:      "published_total",
				Help:      "Total number of envelopes acknowledged by the broker",
			},
		),

		ShutdownDropTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "diodeflow",
				Subsystem: "publisher",
				Name:      "shutdown_drop_total",
				Help:      "Total number of envelopes discarded when the drain window expired",
			},
		),

		PublishRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "diodeflow",
				Subsystem: "publisher",
				Name:      "publish_retries_total",
				Help:      "Total number of publish attempts beyond the first per envelope",
			},
		),

		ConnectionState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "diodeflow",
				Subsystem: "broker",
				Name:      "connection_state",
				Help:      "Broker connection state (0=disconnected, 1=connecting, 2=connected, 3=draining)",
			},
		),

		ConnectsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "diodeflow",
				Subsystem: "broker",
				Name:      "connects_total",
				Help:      "Total number of successful broker connections",
			},
		),
	}
}

// RecordReceived increments the well-formed envelope counter
func (c *Metrics) RecordReceived() {
	c.ReceivedTotal.Inc()
}

// RecordMalformedDrop increments the undecodable datagram counter
func (c *Metrics) RecordMalformedDrop() {
	c.MalformedDropTotal.Inc()
}

// RecordGapLoss adds inferred losses from a sequence gap
func (c *Metrics) RecordGapLoss(lost uint64) {
	if lost > 0 {
		c.GapLostTotal.Add(float64(lost))
	}
}

// RecordBufferDrop increments the buffer eviction counter
func (c *Metrics) RecordBufferDrop() {
	c.BufferDropTotal.Inc()
}

// RecordPublished increments the acknowledged publish counter
func (c *Metrics) RecordPublished() {
	c.PublishedTotal.Inc()
}

// RecordShutdownDrop adds envelopes discarded at drain expiry
func (c *Metrics) RecordShutdownDrop(count uint64) {
	if count > 0 {
		c.ShutdownDropTotal.Add(float64(count))
	}
}

// RecordPublishRetry increments the publish retry counter
func (c *Metrics) RecordPublishRetry() {
	c.PublishRetries.Inc()
}

// RecordConnectionState updates the broker connection state gauge
func (c *Metrics) RecordConnectionState(state int) {
	c.ConnectionState.Set(float64(state))
}

// RecordConnect increments the successful connection counter
func (c *Metrics) RecordConnect() {
	c.ConnectsTotal.Inc()
}
