package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"sonde-catalog/internal/app"
	"sonde-catalog/internal/config"
	hhttp "sonde-catalog/internal/handler/http"
	"sonde-catalog/internal/handler/http/catalog"
	ingestHandler "sonde-catalog/internal/handler/http/ingest"
	"sonde-catalog/internal/handler/http/requestid"
	"sonde-catalog/internal/observability/logging"
	"sonde-catalog/internal/observability/tracing"
	pkgconfig "sonde-catalog/internal/pkg/config"
	ingestUC "sonde-catalog/internal/usecase/ingest"
)

func main() {
	cfg, warnings, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		logging.NewLogger().Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger, closeLog := logging.New(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	slog.SetDefault(logger)
	defer func() { _ = closeLog() }()
	for _, w := range warnings {
		logger.Warn("configuration fallback applied", slog.String("warning", w))
	}

	version := getVersion()

	shutdownTracing, err := tracing.Setup(traceSampleRatio(logger))
	if err != nil {
		logger.Error("failed to set up tracing", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pipeline, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open catalog", slog.Any("error", err))
		os.Exit(1)
	}

	pub, closePublisher, err := app.OpenPublisher(logger)
	if err != nil {
		logger.Error("failed to configure outcome publisher", slog.Any("error", err))
		os.Exit(1)
	}

	dispatcher := ingestUC.NewDispatcher(pipeline.Service, pub, clockwork.NewRealClock(), cfg.DispatcherOptions())

	handler := setupServer(logger, cfg, pipeline, dispatcher, version)
	go pipeline.ReportStats(ctx, 30*time.Second, logger)

	runServer(ctx, logger, cfg, handler, version)

	// stop background work before releasing the resources it uses
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Error("dispatcher shutdown incomplete", slog.Any("error", err))
	}
	if err := closePublisher(); err != nil {
		logger.Error("failed to close outcome publisher", slog.Any("error", err))
	}
	if err := pipeline.Close(); err != nil {
		logger.Error("failed to close database", slog.Any("error", err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("failed to flush traces", slog.Any("error", err))
	}
	logger.Info("shutdown complete")
}

// getVersion returns the application version from environment or default.
func getVersion() string {
	version := os.Getenv("VERSION")
	if version == "" {
		version = "dev"
	}
	return version
}

// traceSampleRatio reads TRACE_SAMPLE_RATIO, keeping 1.0 on bad input.
func traceSampleRatio(logger *slog.Logger) float64 {
	raw := os.Getenv("TRACE_SAMPLE_RATIO")
	if raw == "" {
		return 1.0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 || v > 1 {
		logger.Warn("invalid TRACE_SAMPLE_RATIO, sampling everything", slog.String("value", raw))
		return 1.0
	}
	return v
}

// setupServer mounts every route and wraps the mux in the middleware chain.
func setupServer(
	logger *slog.Logger,
	cfg *config.AppConfig,
	pipeline *app.Pipeline,
	dispatcher *ingestUC.Dispatcher,
	version string,
) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /health", &hhttp.HealthHandler{DB: pipeline.DB, Dispatcher: dispatcher, Version: version})
	mux.Handle("GET /ready", &hhttp.ReadyHandler{DB: pipeline.DB, Dispatcher: dispatcher})
	mux.Handle("GET /live", &hhttp.LiveHandler{})
	mux.Handle("GET /metrics", hhttp.MetricsHandler())

	perMinute := pkgconfig.LoadEnvInt("RATE_LIMIT_PER_MINUTE", 30, func(v int) error {
		return pkgconfig.ValidateIntRange(v, 1, 10000)
	})
	burst := pkgconfig.LoadEnvInt("RATE_LIMIT_BURST", 10, func(v int) error {
		return pkgconfig.ValidateIntRange(v, 1, 1000)
	})
	for _, r := range []pkgconfig.ConfigLoadResult{perMinute, burst} {
		for _, w := range r.Warnings {
			logger.Warn("configuration fallback applied", slog.String("warning", w))
		}
	}
	limiter := hhttp.NewClientRateLimiter(float64(perMinute.Value.(int)), burst.Value.(int))

	ingestHandler.Register(mux, pipeline.Service, dispatcher, limiter.Limit)
	catalog.Register(mux, pipeline.Store, cfg.Extensions)

	logger.Info("routes registered",
		slog.Bool("transactions", cfg.Extensions.Transactions),
		slog.Any("extensions", cfg.Extensions.Enabled),
		slog.Int("rate_limit_per_minute", perMinute.Value.(int)))

	// Timeout sits outside tracing so the span is renamed after routing.
	return hhttp.Chain(mux,
		requestid.Middleware,
		hhttp.Recover(logger),
		hhttp.Logging(logger),
		hhttp.InputValidation(cfg.Server.MaxBodyBytes),
		hhttp.Timeout(cfg.Server.RequestTimeout),
		tracing.Middleware,
		hhttp.MetricsMiddleware,
	)
}

// runServer serves until SIGINT or SIGTERM and then drains connections.
func runServer(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig, handler http.Handler, version string) {
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			slog.String("addr", cfg.Server.Addr),
			slog.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		logger.Info("shutting down server...")
	case err := <-errCh:
		logger.Error("server failed", slog.Any("error", err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", slog.Any("error", err))
	}
	logger.Info("server stopped")
}
