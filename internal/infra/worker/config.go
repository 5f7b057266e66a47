package worker

import (
	"fmt"
	"log/slog"
	"time"

	"sonde-catalog/internal/pkg/config"
)

// WorkerConfig holds the settings of the scheduled archive worker.
//
// Environment variables:
//   - CRON_SCHEDULE: five-field cron expression (default "0 * * * *")
//   - WORKER_TIMEZONE: IANA timezone the schedule runs in (default "UTC")
//   - ARCHIVE_URLS: comma separated listing URLs ingested on every run
//   - ARCHIVE_RUN_TIMEOUT: upper bound of one run, 1m to 4h (default 30m)
//   - WORKER_HEALTH_PORT: port of the health and metrics server (default 9091)
type WorkerConfig struct {
	CronSchedule string
	Timezone     string
	ArchiveURLs  []string
	RunTimeout   time.Duration
	HealthPort   int
}

// DefaultConfig runs hourly in UTC with no archives configured.
func DefaultConfig() WorkerConfig {
	return WorkerConfig{
		CronSchedule: "0 * * * *",
		Timezone:     "UTC",
		RunTimeout:   30 * time.Minute,
		HealthPort:   9091,
	}
}

// Validate collects every invalid field into one error.
func (c *WorkerConfig) Validate() error {
	var errs []error

	if err := config.ValidateCronSchedule(c.CronSchedule); err != nil {
		errs = append(errs, fmt.Errorf("cron schedule: %w", err))
	}
	if err := config.ValidateTimezone(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	for _, u := range c.ArchiveURLs {
		if err := config.ValidateHTTPURL(u); err != nil {
			errs = append(errs, fmt.Errorf("archive urls: %w", err))
		}
	}
	if err := config.ValidateDuration(c.RunTimeout, time.Minute, 4*time.Hour); err != nil {
		errs = append(errs, fmt.Errorf("run timeout: %w", err))
	}
	if err := config.ValidateIntRange(c.HealthPort, 1024, 65535); err != nil {
		errs = append(errs, fmt.Errorf("health port: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed: %v", errs)
	}
	return nil
}

// Location returns the schedule timezone, falling back to UTC.
func (c *WorkerConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LoadConfigFromEnv loads the worker configuration fail-open: a rejected
// value keeps its default, is logged and is counted in metrics. Invalid
// ARCHIVE_URLS entries are dropped one by one. The returned error is
// always nil.
func LoadConfigFromEnv(logger *slog.Logger, metrics *WorkerMetrics) (*WorkerConfig, error) {
	cfg := DefaultConfig()
	fallback := false

	observe := func(field string, r config.ConfigLoadResult) {
		if !metrics.Observe(field, r) {
			return
		}
		fallback = true
		for _, w := range r.Warnings {
			logger.Warn("configuration fallback applied",
				slog.String("field", field),
				slog.String("warning", w))
		}
	}

	r := config.LoadEnvWithFallback("CRON_SCHEDULE", cfg.CronSchedule, config.ValidateCronSchedule)
	cfg.CronSchedule = r.Value.(string)
	observe("cron_schedule", r)

	r = config.LoadEnvWithFallback("WORKER_TIMEZONE", cfg.Timezone, config.ValidateTimezone)
	cfg.Timezone = r.Value.(string)
	observe("timezone", r)

	for _, u := range config.LoadEnvList("ARCHIVE_URLS", nil) {
		if err := config.ValidateHTTPURL(u); err != nil {
			metrics.RecordValidationError("archive_urls")
			logger.Warn("archive url ignored",
				slog.String("url", u),
				slog.Any("error", err))
			continue
		}
		cfg.ArchiveURLs = append(cfg.ArchiveURLs, u)
	}

	r = config.LoadEnvDuration("ARCHIVE_RUN_TIMEOUT", cfg.RunTimeout, func(d time.Duration) error {
		return config.ValidateDuration(d, time.Minute, 4*time.Hour)
	})
	cfg.RunTimeout = r.Value.(time.Duration)
	observe("run_timeout", r)

	r = config.LoadEnvInt("WORKER_HEALTH_PORT", cfg.HealthPort, func(v int) error {
		return config.ValidateIntRange(v, 1024, 65535)
	})
	cfg.HealthPort = r.Value.(int)
	observe("health_port", r)

	metrics.SetFallbackActive(fallback)
	metrics.RecordLoadTimestamp()

	return &cfg, nil
}
