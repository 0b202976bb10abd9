package publisher

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/diodeflow/metric"
)

// Metrics holds publisher-specific Prometheus metrics. Pipeline-level
// counters (published, retries, shutdown drops, connection state) live in
// metric.Metrics; these cover the publish path itself.
type Metrics struct {
	publishLatency prometheus.Histogram
	backlog        prometheus.Gauge
}

// newMetrics creates and registers publisher metrics. Returns nil when no
// registry is provided.
func newMetrics(registry *metric.MetricsRegistry) *Metrics {
	if registry == nil {
		return nil
	}

	metrics := &Metrics{
		publishLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "diodeflow",
			Subsystem: "publisher",
			Name:      "publish_duration_seconds",
			Help:      "Time from pulling an item to broker acknowledgment",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		backlog: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "diodeflow",
			Subsystem: "publisher",
			Name:      "backlog_size",
			Help:      "Items waiting in the reliability buffer",
		}),
	}

	_ = registry.RegisterHistogram("publisher", "publish_latency", metrics.publishLatency)
	_ = registry.RegisterGauge("publisher", "backlog", metrics.backlog)

	return metrics
}
