package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hyperengineering/till/internal/snapshot"
)

// BackupSource writes a consistent copy of the local store.
type BackupSource interface {
	Backup(ctx context.Context, destPath string) error
}

// BackupRecorder observes backup outcomes.
type BackupRecorder interface {
	BackupCompleted(err error)
}

// BackupWorker copies the local store with VACUUM INTO and uploads it.
type BackupWorker struct {
	store      BackupSource
	uploader   snapshot.Uploader
	terminalID string
	interval   time.Duration
	recorder   BackupRecorder
	now        func() time.Time
}

// NewBackupWorker creates a backup worker for one terminal.
func NewBackupWorker(store BackupSource, uploader snapshot.Uploader, terminalID string, interval time.Duration) *BackupWorker {
	return &BackupWorker{
		store:      store,
		uploader:   uploader,
		terminalID: terminalID,
		interval:   interval,
		now:        time.Now,
	}
}

// SetRecorder installs a backup outcome observer.
func (w *BackupWorker) SetRecorder(r BackupRecorder) {
	w.recorder = r
}

// Run backs up immediately on start, then on each interval. Respects
// context cancellation for graceful shutdown.
func (w *BackupWorker) Run(ctx context.Context) {
	if !w.uploader.Enabled() || w.interval <= 0 {
		slog.Info("worker disabled",
			"component", "worker",
			"worker", "backup",
		)
		return
	}

	slog.Info("worker started",
		"component", "worker",
		"worker", "backup",
		"interval", w.interval.String(),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.backup(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "backup",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			w.backup(ctx)
		}
	}
}

func (w *BackupWorker) backup(ctx context.Context) {
	key, err := w.RunOnce(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Warn("backup failed",
			"component", "worker",
			"action", "backup_failed",
			"error", err,
		)
		return
	}
	slog.Info("backup uploaded",
		"component", "worker",
		"action", "backup_uploaded",
		"key", key,
	)
}

// RunOnce takes one backup and uploads it, returning the object key.
func (w *BackupWorker) RunOnce(ctx context.Context) (key string, err error) {
	defer func() {
		if w.recorder != nil {
			w.recorder.BackupCompleted(err)
		}
	}()

	dir, err := os.MkdirTemp("", "till-backup-*")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	takenAt := w.now()
	path := filepath.Join(dir, "till.db")
	if err := w.store.Backup(ctx, path); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}

	key, err = w.uploader.Upload(ctx, w.terminalID, path, takenAt)
	if err != nil {
		return "", err
	}
	return key, nil
}
