package ingest

import (
	"time"

	"sonde-catalog/internal/domain/entity"
	ingestUC "sonde-catalog/internal/usecase/ingest"
)

// ParseRequest is the body of both /parse routes.
type ParseRequest struct {
	URL string `json:"url"`
}

// FileResponse is returned when a single report was added to the catalog.
type FileResponse struct {
	StacItemID string `json:"stac_item_id"`
	Detail     string `json:"detail"`
}

// ArchiveResponse acknowledges an accepted archive job.
type ArchiveResponse struct {
	Detail string `json:"detail"`
	JobID  string `json:"job_id"`
}

// ErrorResponse carries the pipeline error kind next to the message so a
// caller can tell a bad report from an unreachable archive.
type ErrorResponse struct {
	Error    string `json:"error"`
	Kind     string `json:"kind,omitempty"`
	Position int    `json:"position,omitempty"`
}

// JobDTO is the JSON form of an archive job.
type JobDTO struct {
	ID          string           `json:"id"`
	ArchiveURL  string           `json:"archive_url"`
	State       string           `json:"state"`
	SubmittedAt time.Time        `json:"submitted_at"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	FinishedAt  *time.Time       `json:"finished_at,omitempty"`
	Total       int              `json:"total"`
	Succeeded   int              `json:"succeeded"`
	Failed      int              `json:"failed"`
	Cancelled   int              `json:"cancelled"`
	Failures    []ItemFailureDTO `json:"failures"`
	Error       string           `json:"error,omitempty"`
}

// ItemFailureDTO is one failed report of a job.
type ItemFailureDTO struct {
	URL      string           `json:"url"`
	Kind     entity.ErrorKind `json:"kind"`
	Position int              `json:"position,omitempty"`
	Error    string           `json:"error"`
}

func toJobDTO(st ingestUC.JobStatus) JobDTO {
	dto := JobDTO{
		ID:          st.ID,
		ArchiveURL:  st.ArchiveURL,
		State:       string(st.State),
		SubmittedAt: st.SubmittedAt,
		StartedAt:   timePtr(st.StartedAt),
		FinishedAt:  timePtr(st.FinishedAt),
		Total:       st.Total,
		Succeeded:   st.Succeeded,
		Failed:      st.Failed,
		Cancelled:   st.Cancelled,
		Failures:    make([]ItemFailureDTO, 0, len(st.Failures)),
		Error:       st.Error,
	}
	for _, f := range st.Failures {
		dto.Failures = append(dto.Failures, ItemFailureDTO{
			URL:      f.URL,
			Kind:     f.Kind,
			Position: f.Position,
			Error:    f.Error,
		})
	}
	return dto
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
