package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"sonde-catalog/internal/domain/entity"
	"sonde-catalog/internal/infra/parser"
	"sonde-catalog/internal/infra/stac"
)

// NewParseCmd creates the parse command.
func NewParseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <file>",
		Short: "Parse a local report and print its catalog item",
		Long: `Parse reads a TEMP DROP report from disk, converts it into a STAC item
and prints the item as JSON. Nothing is fetched and nothing is stored.

Examples:
  sondectl parse ./sonde_001.dat
  sondectl parse ./sonde_001.dat | jq .properties`,
		Args: cobra.ExactArgs(1),
		RunE: runParseCmd,
	}
}

func runParseCmd(cmd *cobra.Command, args []string) error {
	cfg, _, err := setup(cmd)
	if err != nil {
		return err
	}

	abs, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("resolve %s: %w", args[0], err)
	}
	// #nosec G304 -- the operator names the file on the command line
	data, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("read report: %w", err)
	}

	sourceURL := "file://" + filepath.ToSlash(abs)
	report, err := parser.NewTempDropParser().Parse(entity.RawContent{
		URL:      sourceURL,
		Filename: filepath.Base(abs),
		Data:     data,
	})
	if err != nil {
		return err
	}

	item, err := stac.NewConverter(cfg.ConverterOptions()).Convert(report, sourceURL)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(item)
}
