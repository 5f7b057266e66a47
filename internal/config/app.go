// Package config assembles the API process configuration: an optional YAML
// file overridden by environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"sonde-catalog/internal/infra/stac"
	"sonde-catalog/internal/observability/logging"
	pkgconfig "sonde-catalog/internal/pkg/config"
	"sonde-catalog/internal/usecase/ingest"
)

// AppConfig is the complete API configuration.
type AppConfig struct {
	Server     ServerConfig     `yaml:"server"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	Extensions ExtensionsConfig `yaml:"extensions"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

// IngestConfig configures the pipeline behind /parse.
type IngestConfig struct {
	Collection   string        `yaml:"collection"`
	IDPolicy     string        `yaml:"id_policy"`
	Concurrency  int           `yaml:"concurrency"`
	ItemTimeout  time.Duration `yaml:"item_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DispatcherConfig configures background archive jobs.
type DispatcherConfig struct {
	MaxConcurrentJobs int `yaml:"max_concurrent_jobs"`
	QueueSize         int `yaml:"queue_size"`
	MaxRetainedJobs   int `yaml:"max_retained_jobs"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DefaultConfig returns the configuration used when neither a file nor
// environment variables say otherwise.
func DefaultConfig() *AppConfig {
	ic := ingest.DefaultConfig()
	dc := ingest.DefaultDispatcherConfig()
	sc := stac.DefaultConfig()

	return &AppConfig{
		Server: ServerConfig{
			Addr:            ":8080",
			RequestTimeout:  60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Ingest: IngestConfig{
			Collection:   sc.Collection,
			IDPolicy:     string(sc.IDPolicy),
			Concurrency:  ic.Concurrency,
			ItemTimeout:  ic.ItemTimeout,
			WriteTimeout: ic.WriteTimeout,
		},
		Dispatcher: DispatcherConfig{
			MaxConcurrentJobs: dc.MaxConcurrentJobs,
			QueueSize:         dc.QueueSize,
			MaxRetainedJobs:   dc.MaxRetainedJobs,
		},
		Extensions: DefaultExtensionsConfig(),
		Log:        LogConfig{Level: "info"},
	}
}

// Load reads path (if non-empty), applies environment overrides and
// validates the result. The returned warnings list environment values that
// were rejected in favour of the file or default value.
func Load(path string) (*AppConfig, []string, error) {
	cfg := DefaultConfig()

	if path != "" {
		// #nosec G304 -- path comes from CONFIG_FILE or a CLI flag
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if err := decode(f, cfg); err != nil {
			return nil, nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	warnings := cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, warnings, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, warnings, nil
}

// decode rejects unknown keys so a typo does not silently keep a default.
func decode(r io.Reader, cfg *AppConfig) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnv overlays environment variables on cfg.
//
// Environment variables:
//   - HTTP_ADDR, REQUEST_TIMEOUT, SHUTDOWN_TIMEOUT, MAX_BODY_BYTES
//   - INGEST_COLLECTION, INGEST_ID_POLICY, INGEST_CONCURRENCY,
//     INGEST_ITEM_TIMEOUT, INGEST_WRITE_TIMEOUT
//   - DISPATCHER_MAX_JOBS, DISPATCHER_QUEUE_SIZE, DISPATCHER_RETAINED_JOBS
//   - ENABLED_EXTENSIONS, ENABLE_TRANSACTIONS_EXTENSIONS
//   - LOG_LEVEL, LOG_FILE
func (c *AppConfig) applyEnv() []string {
	var warnings []string
	collect := func(r pkgconfig.ConfigLoadResult) pkgconfig.ConfigLoadResult {
		warnings = append(warnings, r.Warnings...)
		return r
	}
	positive := pkgconfig.ValidatePositiveDuration

	c.Server.Addr = pkgconfig.LoadEnvString("HTTP_ADDR", c.Server.Addr)
	c.Server.RequestTimeout = collect(pkgconfig.LoadEnvDuration("REQUEST_TIMEOUT", c.Server.RequestTimeout, positive)).Value.(time.Duration)
	c.Server.ShutdownTimeout = collect(pkgconfig.LoadEnvDuration("SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout, positive)).Value.(time.Duration)
	c.Server.MaxBodyBytes = int64(collect(pkgconfig.LoadEnvInt("MAX_BODY_BYTES", int(c.Server.MaxBodyBytes), func(v int) error {
		return pkgconfig.ValidateIntRange(v, 1024, 64<<20)
	})).Value.(int))

	c.Ingest.Collection = pkgconfig.LoadEnvString("INGEST_COLLECTION", c.Ingest.Collection)
	c.Ingest.IDPolicy = collect(pkgconfig.LoadEnvWithFallback("INGEST_ID_POLICY", c.Ingest.IDPolicy, func(s string) error {
		_, err := stac.ParseIDPolicy(s)
		return err
	})).Value.(string)
	c.Ingest.Concurrency = collect(pkgconfig.LoadEnvInt("INGEST_CONCURRENCY", c.Ingest.Concurrency, func(v int) error {
		return pkgconfig.ValidateIntRange(v, 1, 32)
	})).Value.(int)
	c.Ingest.ItemTimeout = collect(pkgconfig.LoadEnvDuration("INGEST_ITEM_TIMEOUT", c.Ingest.ItemTimeout, positive)).Value.(time.Duration)
	c.Ingest.WriteTimeout = collect(pkgconfig.LoadEnvDuration("INGEST_WRITE_TIMEOUT", c.Ingest.WriteTimeout, positive)).Value.(time.Duration)

	atLeastOne := func(v int) error { return pkgconfig.ValidateIntRange(v, 1, 1024) }
	c.Dispatcher.MaxConcurrentJobs = collect(pkgconfig.LoadEnvInt("DISPATCHER_MAX_JOBS", c.Dispatcher.MaxConcurrentJobs, atLeastOne)).Value.(int)
	c.Dispatcher.QueueSize = collect(pkgconfig.LoadEnvInt("DISPATCHER_QUEUE_SIZE", c.Dispatcher.QueueSize, atLeastOne)).Value.(int)
	c.Dispatcher.MaxRetainedJobs = collect(pkgconfig.LoadEnvInt("DISPATCHER_RETAINED_JOBS", c.Dispatcher.MaxRetainedJobs, atLeastOne)).Value.(int)

	warnings = append(warnings, c.Extensions.applyEnv()...)

	c.Log.Level = pkgconfig.LoadEnvString("LOG_LEVEL", c.Log.Level)
	c.Log.File = pkgconfig.LoadEnvString("LOG_FILE", c.Log.File)

	return warnings
}

// Validate checks every section.
func (c *AppConfig) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server addr is required")
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %v", c.Server.RequestTimeout)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive, got %v", c.Server.ShutdownTimeout)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("max body bytes must be positive, got %d", c.Server.MaxBodyBytes)
	}
	if err := c.ConverterOptions().Validate(); err != nil {
		return err
	}
	if err := c.IngestOptions().Validate(); err != nil {
		return err
	}
	if err := c.DispatcherOptions().Validate(); err != nil {
		return err
	}
	if err := c.Extensions.Validate(); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// IngestConfig returns the orchestrator configuration. Retry policies keep
// their defaults.
func (c *AppConfig) IngestOptions() ingest.Config {
	cfg := ingest.DefaultConfig()
	cfg.Concurrency = c.Ingest.Concurrency
	cfg.ItemTimeout = c.Ingest.ItemTimeout
	cfg.WriteTimeout = c.Ingest.WriteTimeout
	return cfg
}

// DispatcherConfig returns the background job configuration.
func (c *AppConfig) DispatcherOptions() ingest.DispatcherConfig {
	return ingest.DispatcherConfig{
		MaxConcurrentJobs: c.Dispatcher.MaxConcurrentJobs,
		QueueSize:         c.Dispatcher.QueueSize,
		MaxRetainedJobs:   c.Dispatcher.MaxRetainedJobs,
	}
}

// ConverterConfig returns the catalog item converter configuration.
func (c *AppConfig) ConverterOptions() stac.Config {
	policy, err := stac.ParseIDPolicy(c.Ingest.IDPolicy)
	if err != nil {
		policy = stac.IDPolicy(c.Ingest.IDPolicy)
	}
	return stac.Config{Collection: c.Ingest.Collection, IDPolicy: policy}
}
