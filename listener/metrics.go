package listener

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/diodeflow/metric"
)

// Metrics holds listener-specific Prometheus metrics. Pipeline-level counters
// (received, malformed, gap loss) live in metric.Metrics; these cover the
// socket itself.
type Metrics struct {
	bytesReceived     prometheus.Counter
	socketErrors      prometheus.Counter
	bufferUtilization prometheus.Gauge
	lastActivity      prometheus.Gauge
}

// newMetrics creates and registers listener socket metrics. Returns nil when
// no registry is provided.
func newMetrics(registry *metric.MetricsRegistry, port int) *Metrics {
	if registry == nil {
		return nil
	}

	metrics := &Metrics{
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "diodeflow",
			Subsystem: "listener",
			Name:      "bytes_received_total",
			Help:      "Total bytes read from the UDP socket",
		}),
		socketErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "diodeflow",
			Subsystem: "listener",
			Name:      "socket_errors_total",
			Help:      "Socket read errors encountered",
		}),
		bufferUtilization: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "diodeflow",
			Subsystem: "listener",
			Name:      "buffer_utilization_ratio",
			Help:      "Reliability buffer usage (0-1) showing backpressure",
		}),
		lastActivity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "diodeflow",
			Subsystem: "listener",
			Name:      "last_activity_timestamp",
			Help:      "Unix timestamp of the last received datagram",
		}),
	}

	serviceName := fmt.Sprintf("listener_%d", port)
	_ = registry.RegisterCounter(serviceName, "bytes_received", metrics.bytesReceived)
	_ = registry.RegisterCounter(serviceName, "socket_errors", metrics.socketErrors)
	_ = registry.RegisterGauge(serviceName, "buffer_utilization", metrics.bufferUtilization)
	_ = registry.RegisterGauge(serviceName, "last_activity", metrics.lastActivity)

	return metrics
}
