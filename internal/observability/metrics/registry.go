// Package metrics provides centralized Prometheus metrics for the application.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics track HTTP request patterns and performance
var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration measures HTTP request duration in seconds
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestSize measures HTTP request body size in bytes
	HTTPRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_size_bytes",
			Help:    "HTTP request size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// HTTPResponseSize measures HTTP response body size in bytes
	HTTPResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// HTTPRequestsInFlight tracks requests currently being served
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Current number of HTTP requests being served",
		},
	)
)

// Ingestion metrics track the report pipeline and the archive dispatcher
var (
	// IngestItemsTotal counts ingested report URLs by mode, result and error kind
	IngestItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sonde_ingest_items_total",
			Help: "Total number of report URLs ingested",
		},
		[]string{"mode", "result", "kind"}, // mode: single|archive, result: success|failure
	)

	// IngestStageDuration measures each pipeline stage
	IngestStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sonde_ingest_stage_duration_seconds",
			Help:    "Time spent in each ingestion stage",
			Buckets: []float64{0.001, 0.005, 0.025, 0.1, 0.4, 1.6, 6.4, 25.6},
		},
		[]string{"stage"}, // stage: fetch|parse|convert|write|archive_raw
	)

	// ArchiveItemsDiscovered measures how many report URLs a listing yields
	ArchiveItemsDiscovered = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sonde_archive_items_discovered",
			Help:    "Number of report URLs discovered per archive listing",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	// ArchiveRunsTotal counts archive ingestions by result
	ArchiveRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sonde_archive_runs_total",
			Help: "Total number of archive ingestion runs",
		},
		[]string{"result"}, // result: completed|failed
	)

	// CatalogItemsTotal tracks the number of items in the default collection
	CatalogItemsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sonde_catalog_items_total",
			Help: "Number of catalog items in the default collection",
		},
	)

	// DispatcherQueueDepth tracks archive jobs waiting for a worker
	DispatcherQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sonde_dispatcher_queue_depth",
			Help: "Number of archive jobs waiting in the dispatcher queue",
		},
	)

	// DispatcherJobsTotal counts archive jobs by terminal state
	DispatcherJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sonde_dispatcher_jobs_total",
			Help: "Total number of archive jobs finished by the dispatcher",
		},
		[]string{"state"},
	)

	// DispatcherRejectedTotal counts submissions that were refused
	DispatcherRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sonde_dispatcher_rejected_total",
			Help: "Total number of archive submissions rejected",
		},
		[]string{"reason"}, // reason: queue_full|closed
	)

	// OutcomesPublishedTotal counts outcome messages sent to the broker
	OutcomesPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sonde_outcomes_published_total",
			Help: "Total number of ingestion outcome messages published",
		},
		[]string{"result"},
	)

	// RawArchiveTotal counts raw report uploads to the blob store
	RawArchiveTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sonde_raw_archive_total",
			Help: "Total number of raw reports archived to object storage",
		},
		[]string{"result"},
	)
)

// Database metrics track database performance
var (
	// DBQueryDuration measures database query duration
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		},
		[]string{"operation"},
	)

	// DBConnectionsActive tracks active database connections
	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		},
	)

	// DBConnectionsIdle tracks idle database connections
	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)
)

// RecordHTTPRequest records an HTTP request with its metadata
func RecordHTTPRequest(method, path, status string, duration time.Duration, requestSize, responseSize int) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())

	if requestSize > 0 {
		HTTPRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	}
	if responseSize > 0 {
		HTTPResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
	}
}

// RecordOperationDuration records the duration of a named operation
func RecordOperationDuration(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
