package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/till/internal/localstore"
	"github.com/hyperengineering/till/internal/snapshot"
	"github.com/hyperengineering/till/internal/worker"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Upload one backup of the local store and exit",
	Args:  cobra.NoArgs,
	RunE:  runBackup,
}

func runBackup(cmd *cobra.Command, args []string) error {
	cfg, cleanup, err := commandConfig(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	uploader, err := snapshot.NewUploader(cfg.Backup)
	if err != nil {
		return err
	}
	if !uploader.Enabled() {
		return errors.New("backup not configured: set backup.bucket or TILL_BACKUP_BUCKET")
	}

	local, err := localstore.Open(cfg.Local.Path)
	if err != nil {
		return err
	}
	defer local.Close()

	w := worker.NewBackupWorker(local, uploader, cfg.Terminal.ID, time.Duration(cfg.Backup.Interval))
	key, err := w.RunOnce(cmd.Context())
	if err != nil {
		return fmt.Errorf("backup: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Uploaded s3://%s/%s\n", cfg.Backup.Bucket, key)
	return nil
}
