package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/till/internal/config"
)

var jsonOutput bool

// printJSON marshals v to JSON and writes to the given writer.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newTabWriter returns a configured tabwriter for aligned columns.
func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

// commandConfig loads configuration for a one-shot subcommand and points
// the default logger at stderr so stdout stays machine-readable.
func commandConfig(cmd *cobra.Command) (*config.Config, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	logCfg := cfg.Log
	logCfg.Format = "text"
	logger, closer := newLogger(logCfg, cmd.ErrOrStderr())
	prev := slog.Default()
	slog.SetDefault(logger)

	return cfg, func() {
		slog.SetDefault(prev)
		closer.Close()
	}, nil
}
