package worker

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWorkerMetricsWith_Registers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWorkerMetricsWith(reg)

	m.RecordRun(StatusSuccess, 2.5)
	m.RecordItems(3, 1)
	m.RecordLastSuccess()
	m.RecordLoadTimestamp()

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"worker_archive_runs_total",
		"worker_archive_run_duration_seconds",
		"worker_archive_items_total",
		"worker_archive_last_success_timestamp",
		"worker_config_load_timestamp",
	} {
		assert.True(t, names[want], want)
	}
}

func TestWorkerMetrics_Record(t *testing.T) {
	m := newTestMetrics()

	m.RecordRun(StatusPartial, 10)
	m.RecordRun(StatusPartial, 20)
	m.RecordRun(StatusFailure, 1)
	m.RecordItems(5, 2)
	m.RecordItems(1, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues(StatusPartial)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues(StatusFailure)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues(StatusSuccess)))
	assert.Equal(t, 6.0, testutil.ToFloat64(m.ItemsTotal.WithLabelValues("succeeded")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ItemsTotal.WithLabelValues("failed")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.RunDurationSeconds))
}

func TestWorkerMetrics_RunDurationBuckets(t *testing.T) {
	m := newTestMetrics()

	m.RecordRun(StatusSuccess, 3)
	m.RecordRun(StatusSuccess, 45)
	m.RecordRun(StatusSuccess, 7200)

	var out dto.Metric
	require.NoError(t, m.RunDurationSeconds.Write(&out))
	h := out.GetHistogram()
	require.NotNil(t, h)
	assert.Equal(t, uint64(3), h.GetSampleCount())
	assert.Equal(t, 7248.0, h.GetSampleSum())

	cumulative := make(map[float64]uint64)
	for _, b := range h.GetBucket() {
		cumulative[b.GetUpperBound()] = b.GetCumulativeCount()
	}
	assert.Equal(t, uint64(0), cumulative[1])
	assert.Equal(t, uint64(1), cumulative[5])
	assert.Equal(t, uint64(2), cumulative[60])
	assert.Equal(t, uint64(2), cumulative[3600])
}
