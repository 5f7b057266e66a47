package ingest

import (
	"errors"
	"fmt"
	"net/http"

	"sonde-catalog/internal/handler/http/respond"
	ingestUC "sonde-catalog/internal/usecase/ingest"
)

// JobDispatcher accepts archive jobs and reports on them.
type JobDispatcher interface {
	Submit(archiveURL string) (string, error)
	Job(id string) (ingestUC.JobStatus, error)
	Jobs() []ingestUC.JobStatus
}

// ArchiveHandler queues an archive ingestion and returns without waiting.
type ArchiveHandler struct {
	Jobs JobDispatcher
}

// ServeHTTP handles POST /parse/archive.
func (h ArchiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	archiveURL, status, err := decodeURL(r)
	if err != nil {
		respond.SafeError(w, status, err)
		return
	}

	jobID, err := h.Jobs.Submit(archiveURL)
	switch {
	case errors.Is(err, ingestUC.ErrQueueFull):
		w.Header().Set("Retry-After", "30")
		respond.Error(w, http.StatusServiceUnavailable, err)
		return
	case errors.Is(err, ingestUC.ErrDispatcherClosed):
		respond.Error(w, http.StatusServiceUnavailable, err)
		return
	case err != nil:
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Location", "/parse/jobs/"+jobID)
	respond.JSON(w, http.StatusAccepted, ArchiveResponse{
		Detail: fmt.Sprintf("Processing message archive %s!", archiveURL),
		JobID:  jobID,
	})
}
