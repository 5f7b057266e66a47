package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/spf13/cobra"

	"sonde-catalog/internal/app"
	"sonde-catalog/internal/domain/entity"
	"sonde-catalog/internal/pkg/config"
)

// NewArchiveCmd creates the archive command.
func NewArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive <url>",
		Short: "Ingest every report listed on an archive page",
		Long: `Archive resolves the report links of a listing page and ingests them
with bounded concurrency, then prints one row per report in listing order.
A failing report never stops the others.

Examples:
  sondectl archive https://archive.example/drops/2024/
  sondectl archive --concurrency 8 https://archive.example/drops/2024/
  sondectl archive --json https://archive.example/drops/2024/`,
		Args: cobra.ExactArgs(1),
		RunE: runArchiveCmd,
	}

	cmd.Flags().IntP("concurrency", "c", 0, "Reports ingested in parallel (default from configuration)")
	cmd.Flags().BoolP("json", "j", false, "Print outcomes as JSON")
	return cmd
}

func runArchiveCmd(cmd *cobra.Command, args []string) error {
	if err := config.ValidateHTTPURL(args[0]); err != nil {
		return err
	}
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	if n, _ := cmd.Flags().GetInt("concurrency"); n != 0 {
		if err := config.ValidateIntRange(n, 1, 32); err != nil {
			return fmt.Errorf("--concurrency: %w", err)
		}
		cfg.Ingest.Concurrency = n
	}

	pipeline, err := app.Open(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = pipeline.Close() }()

	outcomes, err := pipeline.Service.IngestArchive(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return writeOutcomesJSON(cmd.OutOrStdout(), outcomes)
	}
	return writeOutcomeTable(cmd.OutOrStdout(), args[0], outcomes)
}

type outcomeRow struct {
	SourceURL  string `json:"source_url"`
	Status     string `json:"status"`
	ItemID     string `json:"item_id,omitempty"`
	Kind       string `json:"kind,omitempty"`
	Position   int    `json:"position,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

func toRow(o entity.IngestionOutcome) outcomeRow {
	row := outcomeRow{
		SourceURL:  o.SourceURL,
		ItemID:     o.ItemID,
		DurationMS: o.Duration.Milliseconds(),
		Status:     "ok",
	}
	if !o.Succeeded() {
		row.Status = "failed"
		row.Kind = string(o.Kind())
		row.Position = o.Position()
		if o.Err != nil {
			row.Error = o.Err.Error()
		}
	}
	return row
}

func writeOutcomesJSON(w io.Writer, outcomes []entity.IngestionOutcome) error {
	rows := make([]outcomeRow, len(outcomes))
	for i, o := range outcomes {
		rows[i] = toRow(o)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

// writeOutcomeTable renders the outcomes as a Markdown table followed by
// the tally.
func writeOutcomeTable(w io.Writer, archiveURL string, outcomes []entity.IngestionOutcome) error {
	rows := make([][]string, len(outcomes))
	for i, o := range outcomes {
		r := toRow(o)
		detail := r.ItemID
		if r.Status != "ok" {
			detail = r.Kind
			if r.Position > 0 {
				detail += " @" + strconv.Itoa(r.Position)
			}
		}
		rows[i] = []string{strconv.Itoa(i + 1), r.SourceURL, r.Status, detail}
	}

	t := entity.Tally(outcomes)
	md := markdown.NewMarkdown(w)
	md.H2("Archive " + archiveURL)
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"#", "Report", "Status", "Item / Error"},
		Rows:   rows,
	})
	md.PlainText("")
	md.PlainTextf("%d reports: %d succeeded, %d failed (%d cancelled)", t.Total, t.Succeeded, t.Failed, t.Cancelled)
	return md.Build()
}
