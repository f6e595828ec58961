package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/hyperengineering/till/internal/types"
)

// SyncTrigger is the part of the session the retry worker drives.
type SyncTrigger interface {
	IsOnline() bool
	PendingCount() int
	SyncPending(ctx context.Context) types.SyncResult
}

// SyncRetryWorker retries pending sales on a fixed cadence. Reconnect
// syncs are triggered by the session; this covers sales that failed while
// the till stayed online.
type SyncRetryWorker struct {
	trigger  SyncTrigger
	interval time.Duration
}

// NewSyncRetryWorker creates the worker. An interval of zero disables it.
func NewSyncRetryWorker(trigger SyncTrigger, interval time.Duration) *SyncRetryWorker {
	return &SyncRetryWorker{
		trigger:  trigger,
		interval: interval,
	}
}

// Run starts the worker loop. Blocks until ctx is cancelled.
//
// The first retry waits one interval; Session.Start covers sales left
// pending from a previous run.
func (w *SyncRetryWorker) Run(ctx context.Context) {
	if w.interval <= 0 {
		slog.Info("worker disabled",
			"component", "worker",
			"worker", "sync-retry",
		)
		return
	}

	slog.Info("worker started",
		"component", "worker",
		"worker", "sync-retry",
		"interval", w.interval.String(),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "sync-retry",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			w.retry(ctx)
		}
	}
}

func (w *SyncRetryWorker) retry(ctx context.Context) {
	if !w.trigger.IsOnline() || w.trigger.PendingCount() == 0 {
		return
	}

	res := w.trigger.SyncPending(ctx)
	if res.Skipped {
		slog.Debug("sync retry skipped, cycle in flight",
			"component", "worker",
			"worker", "sync-retry",
		)
		return
	}
	slog.Info("sync retry completed",
		"component", "worker",
		"action", "sync_retry",
		"synced", res.Synced,
		"failed", res.Failed,
	)
}
