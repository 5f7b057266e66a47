package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"sonde-catalog/internal/app"
	"sonde-catalog/internal/config"
	workerPkg "sonde-catalog/internal/infra/worker"
	"sonde-catalog/internal/observability/logging"
)

func main() {
	appCfg, warnings, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		logging.NewLogger().Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger, closeLog := logging.New(logging.Options{Level: appCfg.Log.Level, File: appCfg.Log.File})
	slog.SetDefault(logger)
	defer func() { _ = closeLog() }()
	for _, w := range warnings {
		logger.Warn("configuration fallback applied", slog.String("warning", w))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load worker configuration (fail-open strategy)
	workerMetrics := workerPkg.NewWorkerMetrics()
	workerConfig, _ := workerPkg.LoadConfigFromEnv(logger, workerMetrics)
	logger.Info("worker configuration loaded",
		slog.String("cron_schedule", workerConfig.CronSchedule),
		slog.String("timezone", workerConfig.Timezone),
		slog.Int("archives", len(workerConfig.ArchiveURLs)),
		slog.Duration("run_timeout", workerConfig.RunTimeout),
		slog.Int("health_port", workerConfig.HealthPort))

	pipeline, err := app.Open(ctx, appCfg, logger)
	if err != nil {
		logger.Error("failed to open catalog", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := pipeline.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()
	go pipeline.ReportStats(ctx, time.Minute, logger)

	runner := workerPkg.NewRunner(pipeline.Service, workerConfig, workerMetrics, logger, nil)

	healthAddr := fmt.Sprintf(":%d", workerConfig.HealthPort)
	healthServer := workerPkg.NewHealthServer(healthAddr, logger)
	mountStatusRoutes(healthServer, runner)
	go func() {
		if err := healthServer.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("health server failed", slog.Any("error", err))
		}
	}()

	c, err := startCronWorker(ctx, logger, runner, workerConfig)
	if err != nil {
		logger.Error("failed to schedule archive runs", slog.Any("error", err))
		os.Exit(1)
	}
	healthServer.SetReady(true)

	<-ctx.Done()
	logger.Info("worker shutting down")
	healthServer.SetReady(false)

	// wait for a run in progress; its context is already cancelled
	<-c.Stop().Done()
	logger.Info("worker stopped")
}

// startCronWorker schedules runner on cfg.CronSchedule. Overlapping runs
// are skipped rather than queued.
func startCronWorker(ctx context.Context, logger *slog.Logger, runner *workerPkg.Runner, cfg *workerPkg.WorkerConfig) (*cron.Cron, error) {
	cl := cronLogger{logger: logger}
	c := cron.New(
		cron.WithLocation(cfg.Location()),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	if _, err := c.AddFunc(cfg.CronSchedule, func() { runner.RunOnce(ctx) }); err != nil {
		return nil, err
	}
	c.Start()

	logger.Info("worker started",
		slog.String("schedule", cfg.CronSchedule),
		slog.String("timezone", cfg.Timezone))
	return c, nil
}

// cronLogger routes cron's own messages to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
