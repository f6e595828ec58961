// Package salesync drains the local pending-sale queue into the remote
// store.
package salesync

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hyperengineering/till/internal/types"
)

// Remote writes sales to the remote store. CreateSale must be idempotent
// on the sale's ClientRef.
type Remote interface {
	CreateSale(ctx context.Context, sale types.Sale) (int64, error)
}

// Queue is the pending-sale queue in the local store.
type Queue interface {
	ListPending(ctx context.Context) ([]types.PendingSale, error)
	DeleteSale(ctx context.Context, localID int64) error
	RecordSyncFailure(ctx context.Context, localID int64, cause error) error
}

// Counter is refreshed after every dequeue and at the end of each cycle.
type Counter interface {
	Refresh(ctx context.Context) (int, error)
}

// Recorder observes completed sync cycles.
type Recorder interface {
	SyncCompleted(synced, failed int, elapsed time.Duration)
}

// Engine runs sync cycles. At most one cycle runs at a time.
type Engine struct {
	remote   Remote
	queue    Queue
	counter  Counter
	timeout  time.Duration
	recorder Recorder

	running atomic.Bool
}

// NewEngine creates an Engine. timeout bounds each remote write; zero
// leaves it unbounded.
func NewEngine(remote Remote, queue Queue, counter Counter, timeout time.Duration) *Engine {
	return &Engine{
		remote:  remote,
		queue:   queue,
		counter: counter,
		timeout: timeout,
	}
}

// SetRecorder installs a cycle observer.
func (e *Engine) SetRecorder(r Recorder) {
	e.recorder = r
}

// Running reports whether a cycle is in flight.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// SyncPending pushes every pending sale to the remote store, oldest capture
// first, one at a time. A sale leaves the local queue only after the remote
// store confirmed it. A failed sale stays pending and the cycle continues.
//
// A call made while another cycle is running does nothing and returns a
// result with Skipped set. Once started, a cycle runs to completion even
// if ctx is cancelled.
func (e *Engine) SyncPending(ctx context.Context) types.SyncResult {
	if !e.running.CompareAndSwap(false, true) {
		slog.Debug("sync already running, skipping",
			"component", "salesync",
			"action", "sync",
		)
		return types.SyncResult{Skipped: true}
	}
	defer e.running.Store(false)

	ctx = context.WithoutCancel(ctx)
	start := time.Now()

	sales, err := e.queue.ListPending(ctx)
	if err != nil {
		slog.Error("failed to list pending sales",
			"component", "salesync",
			"action", "list",
			"error", err,
		)
		return types.SyncResult{}
	}

	var result types.SyncResult
	for _, ps := range sales {
		if e.syncOne(ctx, ps) {
			result.Synced++
		} else {
			result.Failed++
		}
	}

	if _, err := e.counter.Refresh(ctx); err != nil {
		slog.Warn("pending count refresh failed", "component", "salesync", "error", err)
	}

	elapsed := time.Since(start)
	if len(sales) > 0 {
		slog.Info("sync cycle completed",
			"component", "salesync",
			"action", "sync",
			"synced", result.Synced,
			"failed", result.Failed,
			"duration_ms", elapsed.Milliseconds(),
		)
	}
	if e.recorder != nil {
		e.recorder.SyncCompleted(result.Synced, result.Failed, elapsed)
	}
	return result
}

// syncOne pushes a single pending sale and reports whether it left the
// queue.
func (e *Engine) syncOne(ctx context.Context, ps types.PendingSale) bool {
	remoteID, err := e.create(ctx, ps.Sale)
	if err != nil {
		slog.Warn("pending sale sync failed",
			"component", "salesync",
			"action", "create",
			"local_id", ps.LocalID,
			"client_ref", ps.ClientRef,
			"attempt", ps.Attempts+1,
			"error", err,
		)
		if rerr := e.queue.RecordSyncFailure(ctx, ps.LocalID, err); rerr != nil {
			slog.Warn("failed to record sync failure", "component", "salesync", "local_id", ps.LocalID, "error", rerr)
		}
		return false
	}

	// The remote row exists from here on. If the local delete fails the
	// sale stays queued and the next cycle resolves it through ClientRef.
	if err := e.queue.DeleteSale(ctx, ps.LocalID); err != nil {
		slog.Error("failed to dequeue synced sale",
			"component", "salesync",
			"action", "dequeue",
			"local_id", ps.LocalID,
			"remote_id", remoteID,
			"error", err,
		)
		return false
	}

	if _, err := e.counter.Refresh(ctx); err != nil {
		slog.Warn("pending count refresh failed", "component", "salesync", "error", err)
	}

	slog.Debug("pending sale synced",
		"component", "salesync",
		"local_id", ps.LocalID,
		"remote_id", remoteID,
	)
	return true
}

func (e *Engine) create(ctx context.Context, sale types.Sale) (int64, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	return e.remote.CreateSale(ctx, sale)
}
