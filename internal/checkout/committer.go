// Package checkout commits completed carts so that no sale is ever lost:
// each commit ends in a confirmed remote write or a confirmed local enqueue.
package checkout

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hyperengineering/till/internal/types"
	"github.com/oklog/ulid/v2"
)

// Remote writes sales to the remote store.
type Remote interface {
	CreateSale(ctx context.Context, sale types.Sale) (int64, error)
}

// Queue is the pending-sale queue in the local store.
type Queue interface {
	EnqueueSale(ctx context.Context, sale types.Sale) (int64, error)
}

// Connectivity reports the platform network state.
type Connectivity interface {
	IsOnline() bool
}

// Counter is refreshed after every enqueue.
type Counter interface {
	Refresh(ctx context.Context) (int, error)
}

// Recorder observes commit outcomes.
type Recorder interface {
	SaleCommitted(persistedRemotely bool)
}

// Committer implements the sale capture and commit path.
type Committer struct {
	remote   Remote
	queue    Queue
	conn     Connectivity
	counter  Counter
	timeout  time.Duration
	recorder Recorder
	now      func() time.Time
	newRef   func() string
}

// Option configures a Committer.
type Option func(*Committer)

// WithClock sets the capture timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Committer) { c.now = now }
}

// WithRefGenerator sets the client reference generator.
func WithRefGenerator(fn func() string) Option {
	return func(c *Committer) { c.newRef = fn }
}

// WithRecorder sets a commit outcome observer.
func WithRecorder(r Recorder) Option {
	return func(c *Committer) { c.recorder = r }
}

// NewCommitter creates a Committer. timeout bounds the remote write; zero
// leaves it unbounded.
func NewCommitter(remote Remote, queue Queue, conn Connectivity, counter Counter, timeout time.Duration, opts ...Option) *Committer {
	c := &Committer{
		remote:  remote,
		queue:   queue,
		conn:    conn,
		counter: counter,
		timeout: timeout,
		now:     time.Now,
		newRef:  func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CommitSale records a validated cart. When online it writes the sale to
// the remote store; on any remote failure, or when offline, it enqueues the
// sale locally. The only error returned is a local enqueue failure.
//
// The commit is detached from ctx cancellation: a caller that stops
// waiting does not abandon a completed cart.
func (c *Committer) CommitSale(ctx context.Context, cart types.Cart) (*types.CommitResult, error) {
	ctx = context.WithoutCancel(ctx)
	sale := types.NewSale(cart, c.newRef(), c.now())

	if c.conn.IsOnline() {
		id, err := c.createRemote(ctx, sale)
		if err == nil {
			c.record(true)
			return &types.CommitResult{
				PersistedRemotely: true,
				RemoteID:          id,
				ClientRef:         sale.ClientRef,
				ChangeDue:         sale.ChangeDue,
			}, nil
		}
		slog.Warn("remote commit failed, queueing sale locally",
			"component", "checkout",
			"action", "commit",
			"client_ref", sale.ClientRef,
			"error", err,
		)
	}

	localID, err := c.queue.EnqueueSale(ctx, sale)
	if err != nil {
		slog.Error("local enqueue failed",
			"component", "checkout",
			"action", "enqueue",
			"client_ref", sale.ClientRef,
			"error", err,
		)
		return nil, fmt.Errorf("enqueue sale: %w", err)
	}

	if _, err := c.counter.Refresh(ctx); err != nil {
		slog.Warn("pending count refresh failed", "component", "checkout", "error", err)
	}

	slog.Info("sale queued for sync",
		"component", "checkout",
		"action", "enqueue",
		"local_id", localID,
		"client_ref", sale.ClientRef,
	)
	c.record(false)
	return &types.CommitResult{
		PersistedRemotely: false,
		LocalID:           localID,
		ClientRef:         sale.ClientRef,
		ChangeDue:         sale.ChangeDue,
	}, nil
}

func (c *Committer) createRemote(ctx context.Context, sale types.Sale) (int64, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return c.remote.CreateSale(ctx, sale)
}

func (c *Committer) record(remote bool) {
	if c.recorder != nil {
		c.recorder.SaleCommitted(remote)
	}
}
