package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/adrg/xdg"
	"github.com/spf13/cobra"

	"sonde-catalog/internal/config"
	"sonde-catalog/internal/observability/logging"
)

const appName = "sonde-catalog"

// defaultConfigPath is $XDG_CONFIG_HOME/sonde-catalog/config.yaml.
func defaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, appName, "config.yaml")
}

// NewRootCmd creates the sondectl command tree.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sondectl",
		Short: "Parse and ingest dropsonde TEMP DROP reports",
		Long: `sondectl drives the dropsonde ingestion pipeline from the command line.

The parse command works offline on a local file. The ingest and archive
commands fetch from the network and write to the catalog selected by
CATALOG_DRIVER (postgres via DATABASE_URL, or sqlite via SQLITE_PATH).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("config", defaultConfigPath(), "Path to the YAML configuration file")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(NewParseCmd())
	cmd.AddCommand(NewIngestCmd())
	cmd.AddCommand(NewArchiveCmd())

	return cmd
}

// Execute runs the root command. SIGINT cancels a running ingestion;
// reports not yet started are reported as cancelled.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads --config. A missing file at the default location means
// defaults plus environment; a missing explicit file is an error.
func loadConfig(cmd *cobra.Command) (*config.AppConfig, []string, error) {
	flag := cmd.Flag("config")
	path := flag.Value.String()
	if !flag.Changed {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			path = ""
		}
	}
	return config.Load(path)
}

// newLogger writes text records to stderr so stdout stays machine readable.
func newLogger(cmd *cobra.Command, cfg *config.AppConfig) *slog.Logger {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// setup loads the configuration and the logger shared by every command.
func setup(cmd *cobra.Command) (*config.AppConfig, *slog.Logger, error) {
	cfg, warnings, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger := newLogger(cmd, cfg)
	for _, w := range warnings {
		logger.Warn("configuration fallback applied", slog.String("warning", w))
	}
	return cfg, logger, nil
}
