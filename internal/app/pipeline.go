// Package app wires the ingestion pipeline from configuration. The API,
// the worker and the CLI share it so they open the catalog and build the
// stages the same way.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"sonde-catalog/internal/config"
	"sonde-catalog/internal/infra/adapter/persistence/postgres"
	"sonde-catalog/internal/infra/adapter/persistence/sqlite"
	"sonde-catalog/internal/infra/blob/s3"
	"sonde-catalog/internal/infra/db"
	"sonde-catalog/internal/infra/fetcher"
	"sonde-catalog/internal/infra/listing"
	"sonde-catalog/internal/infra/parser"
	"sonde-catalog/internal/infra/publisher"
	"sonde-catalog/internal/infra/stac"
	"sonde-catalog/internal/observability/metrics"
	"sonde-catalog/internal/repository"
	"sonde-catalog/internal/resilience/circuitbreaker"
	"sonde-catalog/internal/usecase/ingest"
)

// Pipeline is an opened catalog plus the ingestion service writing to it.
type Pipeline struct {
	Driver  string
	DB      *sql.DB
	Store   repository.CatalogRepository
	Service *ingest.Service

	collection string
}

// Open connects to the catalog selected by CATALOG_DRIVER, applies the
// migrations, creates the configured collection and builds the stages.
// Raw archiving is attached when RAW_ARCHIVE_S3_BUCKET is set.
func Open(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*Pipeline, error) {
	driver := db.DriverFromEnv()
	dsn := db.DSNFromEnv(driver)
	if dsn == "" {
		return nil, errors.New("DATABASE_URL is required for the postgres catalog")
	}

	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	database, err := db.OpenDriver(openCtx, driver, dsn)
	if err != nil {
		return nil, err
	}

	p, err := build(ctx, database, driver, cfg, logger)
	if err != nil {
		_ = database.Close()
		return nil, err
	}
	return p, nil
}

func build(ctx context.Context, database *sql.DB, driver string, cfg *config.AppConfig, logger *slog.Logger) (*Pipeline, error) {
	if err := db.Migrate(database, driver); err != nil {
		return nil, fmt.Errorf("migrate catalog: %w", err)
	}

	breaker := circuitbreaker.NewDBCircuitBreaker(database)
	var store repository.CatalogRepository
	if driver == db.DriverSQLite {
		store = sqlite.NewCatalogRepo(breaker)
	} else {
		store = postgres.NewCatalogRepo(breaker)
	}

	collection := cfg.Ingest.Collection
	if err := store.EnsureCollection(ctx, collection); err != nil {
		return nil, fmt.Errorf("ensure collection %q: %w", collection, err)
	}

	fetchCfg, err := fetcher.LoadConfigFromEnv()
	if err != nil {
		logger.Warn("invalid fetcher configuration, using defaults", slog.Any("error", err))
		fetchCfg = fetcher.DefaultConfig()
	}

	svc := ingest.NewService(
		fetcher.NewHTTPFetcher(fetchCfg),
		listing.NewResolver(),
		parser.NewTempDropParser(),
		stac.NewConverter(cfg.ConverterOptions()),
		store,
		cfg.IngestOptions(),
	)
	svc.ListingFetcher = fetcher.NewHTTPFetcherWithBreaker(fetchCfg, circuitbreaker.ListingFetchConfig())

	if s3cfg := s3.ConfigFromEnv(); s3cfg.Enabled() {
		rawStore, err := s3.New(ctx, s3cfg)
		if err != nil {
			return nil, fmt.Errorf("raw archive store: %w", err)
		}
		svc.RawStore = rawStore
		logger.Info("raw report archiving enabled", slog.String("bucket", s3cfg.Bucket))
	}

	logger.Info("catalog opened",
		slog.String("driver", driver),
		slog.String("collection", collection))

	return &Pipeline{
		Driver:     driver,
		DB:         database,
		Store:      store,
		Service:    svc,
		collection: collection,
	}, nil
}

// Close releases the database pool.
func (p *Pipeline) Close() error {
	return p.DB.Close()
}

// ReportStats refreshes the pool and catalog size gauges every interval
// until ctx is cancelled.
func (p *Pipeline) ReportStats(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.collectStats(ctx, logger)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectStats(ctx, logger)
		}
	}
}

func (p *Pipeline) collectStats(ctx context.Context, logger *slog.Logger) {
	s := p.DB.Stats()
	metrics.UpdateDBConnectionStats(s.InUse, s.Idle)

	countCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	n, err := p.Store.Count(countCtx, p.collection)
	if err != nil {
		logger.Debug("catalog count failed", slog.Any("error", err))
		return
	}
	metrics.UpdateCatalogItemsTotal(n)
}

// OpenPublisher returns the Kafka outcome publisher configured by
// KAFKA_BROKERS, or nil when it is unset. close is never nil.
func OpenPublisher(logger *slog.Logger) (ingest.OutcomePublisher, func() error, error) {
	noop := func() error { return nil }

	cfg, err := publisher.ConfigFromEnv()
	if err != nil {
		return nil, noop, err
	}
	if !cfg.Enabled() {
		logger.Info("outcome publishing disabled")
		return nil, noop, nil
	}

	p := publisher.NewKafkaPublisher(cfg)
	logger.Info("outcome publishing enabled",
		slog.Any("brokers", cfg.Brokers),
		slog.String("topic", cfg.Topic))
	return p, p.Close, nil
}
