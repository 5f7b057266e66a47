package ingest

import (
	"errors"
	"net/http"

	"sonde-catalog/internal/handler/http/respond"
	ingestUC "sonde-catalog/internal/usecase/ingest"
)

var errJobNotFound = errors.New("job not found")

// JobHandler reports the state of an archive job.
type JobHandler struct {
	Jobs JobDispatcher
}

// ServeHTTP handles GET /parse/jobs/{id}.
func (h JobHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	st, err := h.Jobs.Job(r.PathValue("id"))
	if errors.Is(err, ingestUC.ErrJobNotFound) {
		respond.SafeError(w, http.StatusNotFound, errJobNotFound)
		return
	}
	if err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	respond.JSON(w, http.StatusOK, toJobDTO(st))
}

// ListJobsHandler lists the retained archive jobs, oldest first.
type ListJobsHandler struct {
	Jobs JobDispatcher
}

// ServeHTTP handles GET /parse/jobs.
func (h ListJobsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	jobs := h.Jobs.Jobs()
	out := make([]JobDTO, 0, len(jobs))
	for _, st := range jobs {
		out = append(out, toJobDTO(st))
	}
	respond.JSON(w, http.StatusOK, map[string]any{"jobs": out})
}
