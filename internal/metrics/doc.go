// Package metrics collects gateway metrics and exposes them to Prometheus.
//
// Request and probe code paths emit MetricEvent values through Collector.Record,
// a non-blocking send into a buffered channel. A single goroutine started by
// Collector.Start turns events into Prometheus counters, gauges and histograms:
//   - forwarded requests per backend, method and status code
//   - forwarding latency per backend
//   - forwarding failures per backend and failure kind
//   - requests that matched no route
//   - backend liveness and probe latency
//
// Example usage:
//
//	collector := metrics.NewCollector(1000, logger)
//	collector.Start(ctx)
//
//	collector.Record(metrics.MetricEvent{
//		Type:       metrics.EventResponseCompleted,
//		Service:    "AUTH",
//		Method:     "POST",
//		StatusCode: 200,
//		Duration:   40 * time.Millisecond,
//	})
//
//	mux.Handle("/metrics", collector.Handler())
//
// Each collector owns its own registry, so tests can build as many as they like.
// Pending events are drained when the context is cancelled.
package metrics
