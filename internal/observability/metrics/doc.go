// Package metrics provides Prometheus metrics registry and recording utilities.
//
// This package centralizes the application metrics:
//   - HTTP request metrics (duration, count, size)
//   - Ingestion metrics (items by mode and error kind, stage durations, archive runs)
//   - Dispatcher and side-channel metrics (queue depth, jobs, published outcomes)
//   - Database query metrics
//
// All metrics are automatically registered with the Prometheus default registry
// and exposed via the /metrics endpoint.
//
// Example usage:
//
//	import "sonde-catalog/internal/observability/metrics"
//
//	start := time.Now()
//	report, err := parser.Parse(raw)
//	metrics.RecordStageDuration("parse", time.Since(start))
package metrics
