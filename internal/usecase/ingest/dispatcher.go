package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"sonde-catalog/internal/domain/entity"
	"sonde-catalog/internal/observability/metrics"
)

const publishTimeout = 30 * time.Second

// ArchiveIngester is the part of Service the dispatcher drives.
type ArchiveIngester interface {
	IngestArchive(ctx context.Context, listingURL string) ([]entity.IngestionOutcome, error)
}

// OutcomePublisher forwards the outcomes of a finished archive job to a
// side channel.
type OutcomePublisher interface {
	Publish(ctx context.Context, jobID, archiveURL string, outcomes []entity.IngestionOutcome) error
}

// JobState is the lifecycle state of an archive job.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// Terminal reports whether the job will not change any more.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// ItemFailure describes one failed report of an archive job.
type ItemFailure struct {
	URL      string
	Kind     entity.ErrorKind
	Position int
	Error    string
}

// JobStatus is a snapshot of an archive job.
type JobStatus struct {
	ID          string
	ArchiveURL  string
	State       JobState
	SubmittedAt time.Time
	StartedAt   time.Time
	FinishedAt  time.Time

	Total     int
	Succeeded int
	Failed    int
	Cancelled int
	Failures  []ItemFailure

	// Error is set when the job failed as a whole.
	Error string
}

type job struct {
	id         string
	archiveURL string
}

// Dispatcher runs archive ingestions in the background on a fixed pool of
// workers fed by a bounded queue. Jobs run on the dispatcher's own context,
// never on the context of the request that submitted them.
type Dispatcher struct {
	ingester  ArchiveIngester
	publisher OutcomePublisher
	clock     clockwork.Clock
	cfg       DispatcherConfig

	queue chan job

	mu     sync.Mutex
	jobs   map[string]*JobStatus
	order  []string
	closed bool

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewDispatcher starts cfg.MaxConcurrentJobs workers. publisher may be nil.
func NewDispatcher(ingester ArchiveIngester, publisher OutcomePublisher, clock clockwork.Clock, cfg DispatcherConfig) *Dispatcher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	baseCtx, cancel := context.WithCancel(context.Background())

	d := &Dispatcher{
		ingester:  ingester,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		queue:     make(chan job, cfg.QueueSize),
		jobs:      make(map[string]*JobStatus),
		baseCtx:   baseCtx,
		cancel:    cancel,
	}

	for i := 0; i < cfg.MaxConcurrentJobs; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Submit enqueues an archive ingestion and returns its job ID at once.
// It never blocks: a full queue yields ErrQueueFull.
func (d *Dispatcher) Submit(archiveURL string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		metrics.RecordDispatcherRejected("closed")
		return "", ErrDispatcherClosed
	}

	j := job{id: uuid.NewString(), archiveURL: archiveURL}
	select {
	case d.queue <- j:
	default:
		metrics.RecordDispatcherRejected("queue_full")
		return "", ErrQueueFull
	}

	// workers take d.mu before touching the job, so registering after the
	// send is safe
	d.jobs[j.id] = &JobStatus{
		ID:          j.id,
		ArchiveURL:  archiveURL,
		State:       JobQueued,
		SubmittedAt: d.clock.Now(),
	}
	d.order = append(d.order, j.id)
	d.evictLocked()
	metrics.SetDispatcherQueueDepth(len(d.queue))

	slog.Info("archive job queued",
		slog.String("job_id", j.id),
		slog.String("archive_url", archiveURL))
	return j.id, nil
}

// Job returns a snapshot of the job with the given ID.
func (d *Dispatcher) Job(id string) (JobStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	st, ok := d.jobs[id]
	if !ok {
		return JobStatus{}, ErrJobNotFound
	}
	return snapshot(st), nil
}

// Jobs returns snapshots of all retained jobs in submission order.
func (d *Dispatcher) Jobs() []JobStatus {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]JobStatus, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, snapshot(d.jobs[id]))
	}
	return out
}

// Stats summarizes the dispatcher load.
type Stats struct {
	Queued   int
	Running  int
	Retained int
	Capacity int
	Closed   bool
}

// Stats returns the current load.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	st := Stats{
		Retained: len(d.order),
		Capacity: d.cfg.QueueSize,
		Closed:   d.closed,
	}
	for _, id := range d.order {
		switch d.jobs[id].State {
		case JobQueued:
			st.Queued++
		case JobRunning:
			st.Running++
		}
	}
	return st
}

// Shutdown stops accepting jobs, cancels running ingestions so they start
// no new items, and waits for the workers or for ctx.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down archive dispatcher")

	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Archive dispatcher shutdown complete")
		return nil
	case <-ctx.Done():
		slog.Warn("Archive dispatcher shutdown timeout")
		return ctx.Err()
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.queue {
		metrics.SetDispatcherQueueDepth(len(d.queue))
		if d.baseCtx.Err() != nil {
			d.finish(j.id, nil, fmt.Errorf("%w: dispatcher shut down", entity.ErrCancelled))
			continue
		}
		d.run(j)
	}
}

func (d *Dispatcher) run(j job) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Panic in archive job",
				slog.String("job_id", j.id),
				slog.String("archive_url", j.archiveURL),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			d.finish(j.id, nil, fmt.Errorf("panic: %v", r))
		}
	}()

	d.markRunning(j.id)
	outcomes, err := d.ingester.IngestArchive(d.baseCtx, j.archiveURL)
	d.finish(j.id, outcomes, err)
	if err != nil {
		slog.Warn("archive job failed",
			slog.String("job_id", j.id),
			slog.String("archive_url", j.archiveURL),
			slog.String("error_kind", string(entity.KindOf(err))),
			slog.Any("error", err))
		return
	}
	d.publish(j, outcomes)
}

// publish runs detached so outcomes of a job that finished during
// shutdown still reach the side channel.
func (d *Dispatcher) publish(j job, outcomes []entity.IngestionOutcome) {
	if d.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(d.baseCtx), publishTimeout)
	defer cancel()

	if err := d.publisher.Publish(ctx, j.id, j.archiveURL, outcomes); err != nil {
		slog.Warn("failed to publish archive outcomes",
			slog.String("job_id", j.id),
			slog.Int("outcomes", len(outcomes)),
			slog.Any("error", err))
	}
}

func (d *Dispatcher) markRunning(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if st, ok := d.jobs[id]; ok {
		st.State = JobRunning
		st.StartedAt = d.clock.Now()
	}
}

func (d *Dispatcher) finish(id string, outcomes []entity.IngestionOutcome, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	st, ok := d.jobs[id]
	if !ok || st.State.Terminal() {
		return
	}
	st.FinishedAt = d.clock.Now()
	if err != nil {
		st.State = JobFailed
		st.Error = err.Error()
		metrics.RecordDispatcherJob(string(JobFailed))
		return
	}

	tally := entity.Tally(outcomes)
	st.State = JobCompleted
	st.Total = tally.Total
	st.Succeeded = tally.Succeeded
	st.Failed = tally.Failed
	st.Cancelled = tally.Cancelled
	for _, o := range outcomes {
		if o.Succeeded() {
			continue
		}
		st.Failures = append(st.Failures, ItemFailure{
			URL:      o.SourceURL,
			Kind:     o.Kind(),
			Position: o.Position(),
			Error:    o.Err.Error(),
		})
	}
	metrics.RecordDispatcherJob(string(JobCompleted))
}

// evictLocked drops the oldest finished jobs beyond MaxRetainedJobs.
// Queued and running jobs are never evicted.
func (d *Dispatcher) evictLocked() {
	excess := len(d.order) - d.cfg.MaxRetainedJobs
	if excess <= 0 {
		return
	}
	d.order = slices.DeleteFunc(d.order, func(id string) bool {
		if excess == 0 || !d.jobs[id].State.Terminal() {
			return false
		}
		delete(d.jobs, id)
		excess--
		return true
	})
}

func snapshot(st *JobStatus) JobStatus {
	cp := *st
	cp.Failures = slices.Clone(st.Failures)
	return cp
}
