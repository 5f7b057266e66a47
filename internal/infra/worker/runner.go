package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"sonde-catalog/internal/domain/entity"
	"sonde-catalog/internal/usecase/ingest"

	"github.com/jonboulle/clockwork"
)

// Run statuses reported in metrics and in RunReport.Status.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailure = "failure"
)

// ArchiveReport is the result of one listing within a run.
type ArchiveReport struct {
	URL       string `json:"url"`
	Total     int    `json:"total"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Error     string `json:"error,omitempty"`
}

// RunReport is the result of one scheduled run.
type RunReport struct {
	Status     string          `json:"status"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Archives   []ArchiveReport `json:"archives"`
}

// Runner ingests every configured archive once per RunOnce call. Archives
// are processed one after another; the ingester fans out within each.
type Runner struct {
	ingester ingest.ArchiveIngester
	urls     []string
	timeout  time.Duration
	metrics  *WorkerMetrics
	logger   *slog.Logger
	clock    clockwork.Clock

	mu   sync.Mutex
	last *RunReport
}

// NewRunner builds a runner from cfg. clock may be nil.
func NewRunner(ingester ingest.ArchiveIngester, cfg *WorkerConfig, metrics *WorkerMetrics, logger *slog.Logger, clock clockwork.Clock) *Runner {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Runner{
		ingester: ingester,
		urls:     cfg.ArchiveURLs,
		timeout:  cfg.RunTimeout,
		metrics:  metrics,
		logger:   logger,
		clock:    clock,
	}
}

// RunOnce ingests all archives under the run timeout and records the
// outcome. With no archives configured it only logs.
func (r *Runner) RunOnce(ctx context.Context) RunReport {
	report := RunReport{StartedAt: r.clock.Now(), Archives: []ArchiveReport{}}
	if len(r.urls) == 0 {
		r.logger.Warn("archive run skipped: no archive urls configured")
		report.Status = StatusSuccess
		report.FinishedAt = report.StartedAt
		return report
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	r.logger.Info("archive run started", slog.Int("archives", len(r.urls)))

	var succeeded, failed, broken int
	for _, u := range r.urls {
		ar := ArchiveReport{URL: u}
		outcomes, err := r.ingester.IngestArchive(ctx, u)
		tally := entity.Tally(outcomes)
		ar.Total, ar.Succeeded, ar.Failed = tally.Total, tally.Succeeded, tally.Failed
		if err != nil {
			ar.Error = err.Error()
			broken++
			r.logger.Error("archive ingestion failed",
				slog.String("url", u),
				slog.String("kind", string(entity.KindOf(err))),
				slog.Any("error", err))
		} else {
			r.logger.Info("archive ingested",
				slog.String("url", u),
				slog.Int("total", tally.Total),
				slog.Int("succeeded", tally.Succeeded),
				slog.Int("failed", tally.Failed))
		}
		succeeded += tally.Succeeded
		failed += tally.Failed
		report.Archives = append(report.Archives, ar)
	}

	report.FinishedAt = r.clock.Now()
	switch {
	case broken == len(r.urls):
		report.Status = StatusFailure
	case broken > 0 || failed > 0:
		report.Status = StatusPartial
	default:
		report.Status = StatusSuccess
	}

	duration := report.FinishedAt.Sub(report.StartedAt)
	r.metrics.RecordRun(report.Status, duration.Seconds())
	r.metrics.RecordItems(succeeded, failed)
	if report.Status == StatusSuccess {
		r.metrics.RecordLastSuccess()
	}

	r.logger.Info("archive run finished",
		slog.String("status", report.Status),
		slog.Int("succeeded", succeeded),
		slog.Int("failed", failed),
		slog.Duration("duration", duration))

	r.mu.Lock()
	r.last = &report
	r.mu.Unlock()
	return report
}

// LastRun returns the most recent completed run.
func (r *Runner) LastRun() (RunReport, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return RunReport{}, false
	}
	return *r.last, true
}

// StatusHandler serves the last run as JSON, or 404 before the first run.
func (r *Runner) StatusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		last, ok := r.LastRun()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "no run completed yet"})
			return
		}
		_ = json.NewEncoder(w).Encode(last)
	})
}
