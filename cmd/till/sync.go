package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/till/internal/connectivity"
	"github.com/hyperengineering/till/internal/localstore"
	"github.com/hyperengineering/till/internal/session"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push queued sales to the remote store once and exit",
	Args:  cobra.NoArgs,
	RunE:  runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

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

	rs, err := openRemote(ctx, cfg.Remote)
	if err != nil {
		return err
	}
	defer rs.Close()

	// An explicit sync is an operator asserting the network is up; the
	// remote store answers for itself.
	sess := session.New(local, rs, connectivity.New(true), session.Options{
		RemoteTimeout: time.Duration(cfg.Remote.Timeout),
	})
	if err := sess.Start(ctx); err != nil {
		return err
	}
	defer sess.Close()

	res := sess.SyncPending(ctx)
	remaining := sess.PendingCount()

	if jsonOutput {
		if err := printJSON(cmd.OutOrStdout(), map[string]any{
			"synced":    res.Synced,
			"failed":    res.Failed,
			"remaining": remaining,
		}); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Synced %d, failed %d, %d still pending.\n",
			res.Synced, res.Failed, remaining)
	}

	if res.Failed > 0 {
		return fmt.Errorf("%d sales failed to sync", res.Failed)
	}
	return nil
}
