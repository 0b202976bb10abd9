// Package metric provides Prometheus-based metrics collection and an HTTP
// server for pipeline monitoring.
//
// The package offers a centralized registry managing both core pipeline
// metrics (ingest counts, buffer evictions, publish acknowledgements, broker
// connection state) and component-specific metrics registered at runtime. It
// includes an HTTP server exposing metrics in Prometheus format together with
// a plain /health endpoint.
//
// # Basic Usage
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(9090, "/metrics", registry)
//
//	go func() {
//	    if err := server.Start(); err != nil {
//	        log.Printf("metrics server error: %v", err)
//	    }
//	}()
//	defer server.Stop()
//
//	core := registry.CoreMetrics()
//	core.RecordReceived()
//	core.RecordConnectionState(2)
//
// # Core Metrics
//
// All core metrics use the namespace "diodeflow":
//
//   - diodeflow_listener_received_total
//   - diodeflow_listener_malformed_drop_total
//   - diodeflow_listener_gap_lost_total
//   - diodeflow_buffer_drop_total
//   - diodeflow_publisher_published_total
//   - diodeflow_publisher_shutdown_drop_total
//   - diodeflow_publisher_publish_retries_total
//   - diodeflow_broker_connection_state
//   - diodeflow_broker_connects_total
//
// Components needing metrics beyond the core set register them through the
// MetricsRegistrar interface, which the registry implements. Registration is
// thread-safe; recording is lock-free per the Prometheus client guarantees.
package metric
