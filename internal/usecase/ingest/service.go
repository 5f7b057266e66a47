// Package ingest coordinates the report pipeline: fetch, parse, convert
// and write, for a single report URL or for every report of an archive
// listing.
package ingest

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"path"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"sonde-catalog/internal/domain/entity"
	"sonde-catalog/internal/observability/metrics"
	"sonde-catalog/internal/observability/tracing"
	"sonde-catalog/internal/resilience/retry"
)

// Fetcher retrieves the raw bytes behind a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (entity.RawContent, error)
}

// ListingResolver extracts report URLs from an archive listing page.
type ListingResolver interface {
	Resolve(content entity.RawContent) (iter.Seq[string], error)
}

// ReportParser turns raw report bytes into a DropsondeReport.
type ReportParser interface {
	Parse(content entity.RawContent) (*entity.DropsondeReport, error)
}

// ItemConverter derives the catalog item of a parsed report.
type ItemConverter interface {
	Convert(report *entity.DropsondeReport, sourceURL string) (*entity.CatalogItem, error)
}

// CatalogWriter is the write side of the catalog store. Upsert must be
// idempotent per item identifier and safe for concurrent use.
type CatalogWriter interface {
	Upsert(ctx context.Context, item *entity.CatalogItem) (string, error)
}

// RawStore keeps a copy of the raw report next to the catalog.
type RawStore interface {
	Put(ctx context.Context, key string, content entity.RawContent) error
}

// Service runs the ingestion pipeline. It holds no per-call state and is
// safe for concurrent use.
type Service struct {
	fetcher   Fetcher
	resolver  ListingResolver
	parser    ReportParser
	converter ItemConverter
	writer    CatalogWriter

	// ListingFetcher is optional; when set it fetches archive listings so
	// that their failures are tracked apart from report fetches.
	ListingFetcher Fetcher

	// RawStore is optional; when set, raw bytes of every written report
	// are archived after the catalog write.
	RawStore RawStore

	// Tracer receives one span per item and per stage.
	Tracer trace.Tracer

	cfg Config
}

// NewService creates the orchestrator.
//
// Parameters:
//   - fetcher: retrieves listing pages and reports
//   - resolver: extracts report URLs from a listing
//   - parser: parses report bytes
//   - converter: builds catalog items
//   - writer: persists catalog items
//   - cfg: fan-out and time budgets (see DefaultConfig)
func NewService(
	fetcher Fetcher,
	resolver ListingResolver,
	parser ReportParser,
	converter ItemConverter,
	writer CatalogWriter,
	cfg Config,
) *Service {
	return &Service{
		fetcher:   fetcher,
		resolver:  resolver,
		parser:    parser,
		converter: converter,
		writer:    writer,
		Tracer:    tracing.GetTracer(),
		cfg:       cfg,
	}
}

// IngestOne fetches, parses, converts and writes a single report. The first
// failing stage short-circuits the rest; its error is carried in the
// outcome. Nothing is written unless every earlier stage succeeded.
func (s *Service) IngestOne(ctx context.Context, sourceURL string) entity.IngestionOutcome {
	out := s.ingest(ctx, sourceURL)
	metrics.RecordIngestOutcome(metrics.ModeSingle, out.Succeeded(), string(out.Kind()))

	if out.Succeeded() {
		slog.Info("report ingested",
			slog.String("url", sourceURL),
			slog.String("item_id", out.ItemID),
			slog.Duration("duration", out.Duration))
	}
	return out
}

// IngestArchive resolves the listing at listingURL and ingests every report
// it references, at most Config.Concurrency at a time.
//
// The returned outcomes are in listing order, one per discovered URL.
// A failing item never aborts the others. The error is non-nil only when
// the listing itself could not be fetched or recognized.
//
// When ctx is cancelled no new item is started and the remaining items
// are reported with entity.ErrCancelled. Items already writing finish
// their write.
func (s *Service) IngestArchive(ctx context.Context, listingURL string) (_ []entity.IngestionOutcome, err error) {
	logger := slog.Default()
	start := time.Now()

	ctx, span := tracing.StartSpan(ctx, s.Tracer, "ingest.archive", attribute.String("listing.url", listingURL))
	defer func() { tracing.EndSpan(span, err) }()

	raw, err := runStage(ctx, s.Tracer, "listing", func(ctx context.Context) (entity.RawContent, error) {
		return s.fetch(ctx, s.listingFetcher(), listingURL, s.cfg.ListingRetry)
	})
	if err != nil {
		metrics.RecordArchiveRun(false, 0)
		return nil, fmt.Errorf("fetch listing: %w", err)
	}

	seq, err := s.resolver.Resolve(raw)
	if err != nil {
		metrics.RecordArchiveRun(false, 0)
		return nil, fmt.Errorf("resolve listing: %w", err)
	}
	urls := slices.Collect(seq)
	span.SetAttributes(attribute.Int("archive.items", len(urls)))

	outcomes := s.fanOut(ctx, urls)

	for _, out := range outcomes {
		metrics.RecordIngestOutcome(metrics.ModeArchive, out.Succeeded(), string(out.Kind()))
		if out.Succeeded() {
			continue
		}
		logger.Warn("archive item failed",
			slog.String("listing_url", listingURL),
			slog.String("url", out.SourceURL),
			slog.String("error_kind", string(out.Kind())),
			slog.Int("position", out.Position()),
			slog.Any("error", out.Err))
	}

	tally := entity.Tally(outcomes)
	metrics.RecordArchiveRun(true, len(urls))
	logger.Info("archive ingestion completed",
		slog.String("listing_url", listingURL),
		slog.Int("total", tally.Total),
		slog.Int("succeeded", tally.Succeeded),
		slog.Int("failed", tally.Failed),
		slog.Int("cancelled", tally.Cancelled),
		slog.Duration("duration", time.Since(start)))

	return outcomes, nil
}

// fanOut ingests urls with bounded concurrency. Each goroutine owns one
// slot of the result slice, so no locking is needed and order is kept.
func (s *Service) fanOut(ctx context.Context, urls []string) []entity.IngestionOutcome {
	outcomes := make([]entity.IngestionOutcome, len(urls))

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)

	for i, u := range urls {
		if ctx.Err() != nil {
			outcomes[i] = cancelledOutcome(ctx, u)
			continue
		}
		// Go blocks while the limit is reached, so ctx may be done by the
		// time the goroutine runs.
		g.Go(func() error {
			if ctx.Err() != nil {
				outcomes[i] = cancelledOutcome(ctx, u)
				return nil
			}
			outcomes[i] = s.ingest(ctx, u)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func cancelledOutcome(ctx context.Context, sourceURL string) entity.IngestionOutcome {
	return entity.IngestionOutcome{
		SourceURL: sourceURL,
		Err:       fmt.Errorf("%w: %v", entity.ErrCancelled, context.Cause(ctx)),
	}
}

func (s *Service) ingest(ctx context.Context, sourceURL string) (out entity.IngestionOutcome) {
	start := time.Now()
	out.SourceURL = sourceURL

	ctx, span := tracing.StartSpan(ctx, s.Tracer, "ingest.item", attribute.String("source.url", sourceURL))
	defer func() {
		out.Duration = time.Since(start)
		tracing.EndSpan(span, out.Err)
	}()

	itemCtx, cancel := context.WithTimeout(ctx, s.cfg.ItemTimeout)
	defer cancel()

	raw, err := runStage(itemCtx, s.Tracer, "fetch", func(ctx context.Context) (entity.RawContent, error) {
		return s.fetch(ctx, s.fetcher, sourceURL, s.cfg.FetchRetry)
	})
	if err != nil {
		out.Err = err
		return out
	}

	report, err := runStage(itemCtx, s.Tracer, "parse", func(context.Context) (*entity.DropsondeReport, error) {
		return s.parser.Parse(raw)
	})
	if err != nil {
		out.Err = err
		return out
	}

	item, err := runStage(itemCtx, s.Tracer, "convert", func(context.Context) (*entity.CatalogItem, error) {
		return s.converter.Convert(report, sourceURL)
	})
	if err != nil {
		out.Err = err
		return out
	}

	// the write is detached from cancellation so shutdown never leaves a
	// half-applied upsert behind
	writeCtx, cancelWrite := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.WriteTimeout)
	defer cancelWrite()

	id, err := runStage(writeCtx, s.Tracer, "write", func(ctx context.Context) (string, error) {
		return s.writer.Upsert(ctx, item)
	})
	if err != nil {
		out.Err = &entity.StorageError{Op: "upsert", ItemID: item.ID, Err: err}
		return out
	}
	out.ItemID = id

	s.archiveRaw(context.WithoutCancel(ctx), item, raw)
	return out
}

// fetch retries transient fetch failures (5xx, 429, 408, timeouts).
func (s *Service) fetch(ctx context.Context, f Fetcher, url string, cfg retry.Config) (entity.RawContent, error) {
	return retry.Fetch(ctx, cfg, url, func() (entity.RawContent, error) {
		return f.Fetch(ctx, url)
	})
}

func (s *Service) listingFetcher() Fetcher {
	if s.ListingFetcher != nil {
		return s.ListingFetcher
	}
	return s.fetcher
}

// archiveRaw is best effort: the item is already in the catalog.
func (s *Service) archiveRaw(ctx context.Context, item *entity.CatalogItem, raw entity.RawContent) {
	if s.RawStore == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	key := path.Join(item.Collection, item.ID, raw.Filename)
	_, err := runStage(ctx, s.Tracer, "archive_raw", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.RawStore.Put(ctx, key, raw)
	})
	metrics.RecordRawArchive(err == nil)
	if err != nil {
		slog.Warn("failed to archive raw report",
			slog.String("url", raw.URL),
			slog.String("key", key),
			slog.Any("error", err))
	}
}

func runStage[T any](ctx context.Context, t trace.Tracer, stage string, fn func(context.Context) (T, error)) (T, error) {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, t, "ingest."+stage)
	v, err := fn(ctx)
	tracing.EndSpan(span, err)
	metrics.RecordStageDuration(stage, time.Since(start))
	return v, err
}
