package worker

import (
	"sonde-catalog/internal/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// WorkerMetrics embeds the worker_config_* metrics and adds the archive
// run metrics:
//   - worker_archive_runs_total{status}: runs by "success", "partial" or "failure"
//   - worker_archive_run_duration_seconds
//   - worker_archive_items_total{result}: items by "succeeded" or "failed"
//   - worker_archive_last_success_timestamp
type WorkerMetrics struct {
	*config.ConfigMetrics

	RunsTotal            *prometheus.CounterVec
	RunDurationSeconds   prometheus.Histogram
	ItemsTotal           *prometheus.CounterVec
	LastSuccessTimestamp prometheus.Gauge
}

// NewWorkerMetrics registers the worker metrics with the default registry.
func NewWorkerMetrics() *WorkerMetrics {
	return NewWorkerMetricsWith(prometheus.DefaultRegisterer)
}

// NewWorkerMetricsWith registers the worker metrics with reg.
func NewWorkerMetricsWith(reg prometheus.Registerer) *WorkerMetrics {
	factory := promauto.With(reg)
	return &WorkerMetrics{
		ConfigMetrics: config.NewConfigMetricsWith(reg, "worker"),

		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_archive_runs_total",
			Help: "Total number of scheduled archive runs by status",
		}, []string{"status"}),

		// 1s, 5s, 30s, 1m, 5m, 15m, 30m, 1h
		RunDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "worker_archive_run_duration_seconds",
			Help:    "Duration of scheduled archive runs in seconds",
			Buckets: []float64{1, 5, 30, 60, 300, 900, 1800, 3600},
		}),

		ItemsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_archive_items_total",
			Help: "Total number of reports handled by scheduled archive runs",
		}, []string{"result"}),

		LastSuccessTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Name: "worker_archive_last_success_timestamp",
			Help: "Unix timestamp of the last archive run without failures",
		}),
	}
}

func (m *WorkerMetrics) RecordRun(status string, seconds float64) {
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDurationSeconds.Observe(seconds)
}

func (m *WorkerMetrics) RecordItems(succeeded, failed int) {
	m.ItemsTotal.WithLabelValues("succeeded").Add(float64(succeeded))
	m.ItemsTotal.WithLabelValues("failed").Add(float64(failed))
}

func (m *WorkerMetrics) RecordLastSuccess() {
	m.LastSuccessTimestamp.SetToCurrentTime()
}
