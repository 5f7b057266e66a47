package ingest

import (
	"fmt"
	"time"

	"sonde-catalog/internal/resilience/retry"
)

// Config controls the orchestrator's fan-out and its time budgets.
type Config struct {
	// Concurrency is the maximum number of report URLs of one archive
	// processed at the same time.
	Concurrency int

	// ItemTimeout bounds fetch, parse and convert of a single report.
	ItemTimeout time.Duration

	// WriteTimeout bounds a catalog write. Writes are detached from
	// cancellation, so this is the only limit on them.
	WriteTimeout time.Duration

	// FetchRetry is applied to report fetches; ListingRetry to listing fetches.
	FetchRetry   retry.Config
	ListingRetry retry.Config
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:  4,
		ItemTimeout:  2 * time.Minute,
		WriteTimeout: 30 * time.Second,
		FetchRetry:   retry.ReportFetchConfig(),
		ListingRetry: retry.ListingFetchConfig(),
	}
}

// Validate checks that all values are within their allowed ranges.
func (c Config) Validate() error {
	if c.Concurrency < 1 || c.Concurrency > 32 {
		return fmt.Errorf("concurrency must be between 1 and 32, got %d", c.Concurrency)
	}
	if c.ItemTimeout <= 0 {
		return fmt.Errorf("item timeout must be positive, got %v", c.ItemTimeout)
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive, got %v", c.WriteTimeout)
	}
	if c.FetchRetry.MaxAttempts < 1 {
		return fmt.Errorf("fetch retry attempts must be at least 1, got %d", c.FetchRetry.MaxAttempts)
	}
	if c.ListingRetry.MaxAttempts < 1 {
		return fmt.Errorf("listing retry attempts must be at least 1, got %d", c.ListingRetry.MaxAttempts)
	}
	return nil
}

// DispatcherConfig sizes the background archive worker pool.
type DispatcherConfig struct {
	MaxConcurrentJobs int
	QueueSize         int
	MaxRetainedJobs   int
}

// DefaultDispatcherConfig returns the production defaults.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		MaxConcurrentJobs: 2,
		QueueSize:         16,
		MaxRetainedJobs:   100,
	}
}

// Validate checks that all values are within their allowed ranges.
func (c DispatcherConfig) Validate() error {
	if c.MaxConcurrentJobs < 1 {
		return fmt.Errorf("max concurrent jobs must be at least 1, got %d", c.MaxConcurrentJobs)
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("queue size must be at least 1, got %d", c.QueueSize)
	}
	if c.MaxRetainedJobs < c.QueueSize+c.MaxConcurrentJobs {
		return fmt.Errorf("max retained jobs must cover queued and running jobs (%d), got %d",
			c.QueueSize+c.MaxConcurrentJobs, c.MaxRetainedJobs)
	}
	return nil
}
