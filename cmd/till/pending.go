package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/till/internal/localstore"
	"github.com/hyperengineering/till/internal/types"
)

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List sales waiting in the local queue",
	Args:  cobra.NoArgs,
	RunE:  runPending,
}

func init() {
	pendingCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
}

func runPending(cmd *cobra.Command, args []string) error {
	cfg, cleanup, err := commandConfig(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	local, err := localstore.Open(cfg.Local.Path)
	if err != nil {
		return err
	}
	defer local.Close()

	sales, err := local.ListPending(cmd.Context())
	if err != nil {
		return fmt.Errorf("list pending: %w", err)
	}

	if jsonOutput {
		if sales == nil {
			sales = []types.PendingSale{}
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"pending": sales,
			"total":   len(sales),
		})
	}

	if len(sales) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No pending sales.")
		return nil
	}

	w := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintln(w, "LOCAL ID\tCAPTURED\tTOTAL\tPAYMENT\tATTEMPTS\tLAST ERROR")
	for _, s := range sales {
		lastErr := s.LastError
		if lastErr == "" {
			lastErr = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\n",
			s.LocalID,
			s.CapturedAt.Local().Format("2006-01-02 15:04"),
			s.Total.StringFixed(2),
			s.PaymentMethod,
			s.Attempts,
			lastErr,
		)
	}
	return w.Flush()
}
