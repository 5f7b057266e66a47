package metrics

import (
	"time"
)

// Ingestion modes used as the "mode" label.
const (
	ModeSingle  = "single"
	ModeArchive = "archive"
)

// RecordIngestOutcome records the result of ingesting one report URL.
// kind is the error category of a failure and is ignored on success.
func RecordIngestOutcome(mode string, success bool, kind string) {
	result := "success"
	if !success {
		result = "failure"
	} else {
		kind = ""
	}
	IngestItemsTotal.WithLabelValues(mode, result, kind).Inc()
}

// RecordStageDuration records the time spent in one pipeline stage.
// Stage should be one of fetch, parse, convert, write or archive_raw.
func RecordStageDuration(stage string, duration time.Duration) {
	IngestStageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordArchiveRun records a finished archive ingestion and the number of
// report URLs its listing yielded. A run that failed before discovery
// records no discovered items.
func RecordArchiveRun(completed bool, discovered int) {
	if !completed {
		ArchiveRunsTotal.WithLabelValues("failed").Inc()
		return
	}
	ArchiveRunsTotal.WithLabelValues("completed").Inc()
	ArchiveItemsDiscovered.Observe(float64(discovered))
}

// UpdateCatalogItemsTotal updates the catalog size gauge.
// This gauge should be updated periodically to reflect the current state.
func UpdateCatalogItemsTotal(count int64) {
	CatalogItemsTotal.Set(float64(count))
}

// SetDispatcherQueueDepth reports the number of queued archive jobs.
func SetDispatcherQueueDepth(depth int) {
	DispatcherQueueDepth.Set(float64(depth))
}

// RecordDispatcherJob records an archive job reaching a terminal state.
func RecordDispatcherJob(state string) {
	DispatcherJobsTotal.WithLabelValues(state).Inc()
}

// RecordDispatcherRejected records a refused archive submission.
func RecordDispatcherRejected(reason string) {
	DispatcherRejectedTotal.WithLabelValues(reason).Inc()
}

// RecordOutcomesPublished records a batch of outcome messages sent to the broker.
func RecordOutcomesPublished(success bool, count int) {
	result := "success"
	if !success {
		result = "failure"
	}
	OutcomesPublishedTotal.WithLabelValues(result).Add(float64(count))
}

// RecordRawArchive records one raw report upload.
func RecordRawArchive(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	RawArchiveTotal.WithLabelValues(result).Inc()
}

// RecordDBQuery records the duration of a database query operation.
// Operation should describe the query type (e.g., "upsert_item", "get_item").
func RecordDBQuery(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// UpdateDBConnectionStats updates database connection pool statistics.
func UpdateDBConnectionStats(active, idle int) {
	DBConnectionsActive.Set(float64(active))
	DBConnectionsIdle.Set(float64(idle))
}
