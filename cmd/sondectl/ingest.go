package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sonde-catalog/internal/app"
	"sonde-catalog/internal/pkg/config"
)

// NewIngestCmd creates the ingest command.
func NewIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <url>",
		Short: "Fetch one report and write it to the catalog",
		Long: `Ingest fetches a single TEMP DROP report, converts it and upserts the
resulting STAC item. Running it twice for the same report leaves one item.

Examples:
  CATALOG_DRIVER=sqlite sondectl ingest https://archive.example/drops/sonde_001.dat`,
		Args: cobra.ExactArgs(1),
		RunE: runIngestCmd,
	}
}

func runIngestCmd(cmd *cobra.Command, args []string) error {
	if err := config.ValidateHTTPURL(args[0]); err != nil {
		return err
	}
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	pipeline, err := app.Open(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = pipeline.Close() }()

	out := pipeline.Service.IngestOne(cmd.Context(), args[0])
	if !out.Succeeded() {
		return fmt.Errorf("%s: %w", out.Kind(), out.Err)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\tSTAC item added to the catalog successfully.\n", out.ItemID)
	return err
}
