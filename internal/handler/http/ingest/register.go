// Package ingest exposes the ingestion triggers: synchronous single-report
// ingestion, background archive jobs and their status.
package ingest

import (
	"net/http"
)

// Register mounts the /parse routes. limit wraps the two trigger routes
// (e.g. a per-client rate limiter) and may be nil.
func Register(mux *http.ServeMux, svc SingleIngester, jobs JobDispatcher, limit func(http.Handler) http.Handler) {
	if limit == nil {
		limit = func(h http.Handler) http.Handler { return h }
	}

	mux.Handle("POST   /parse/file", limit(FileHandler{Svc: svc}))
	mux.Handle("POST   /parse/archive", limit(ArchiveHandler{Jobs: jobs}))
	mux.Handle("GET    /parse/jobs", ListJobsHandler{Jobs: jobs})
	mux.Handle("GET    /parse/jobs/{id}", JobHandler{Jobs: jobs})
}
