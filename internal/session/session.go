// Package session wires the till core for one running terminal: one
// connectivity oracle, one pending counter, and the components that share
// them.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hyperengineering/till/internal/catalog"
	"github.com/hyperengineering/till/internal/checkout"
	"github.com/hyperengineering/till/internal/connectivity"
	"github.com/hyperengineering/till/internal/localstore"
	"github.com/hyperengineering/till/internal/pending"
	"github.com/hyperengineering/till/internal/remote"
	"github.com/hyperengineering/till/internal/salesync"
	"github.com/hyperengineering/till/internal/types"
)

// Recorder receives every observation the core makes. metrics.Metrics
// implements it.
type Recorder interface {
	catalog.Recorder
	checkout.Recorder
	salesync.Recorder
	SetPending(n int)
	SetOnline(online bool)
}

// Options configures a Session.
type Options struct {
	// RemoteTimeout bounds each remote call. Zero means unbounded.
	RemoteTimeout time.Duration

	// SyncOnReconnect runs a sync cycle on every offline to online
	// transition.
	SyncOnReconnect bool

	Recorder Recorder

	// Checkout options, mainly for tests.
	CheckoutOptions []checkout.Option
}

// Session owns the core components and the state they share.
type Session struct {
	local   localstore.Store
	remote  remote.Store
	oracle  *connectivity.Oracle
	counter *pending.Counter
	catalog *catalog.Manager
	commit  *checkout.Committer
	engine  *salesync.Engine
	opts    Options

	mu          sync.Mutex
	unsubscribe func()
	closed      bool
	wg          sync.WaitGroup
}

// New builds a session over the given stores and oracle.
func New(local localstore.Store, rs remote.Store, oracle *connectivity.Oracle, opts Options) *Session {
	counter := pending.NewCounter(local)

	coOpts := append([]checkout.Option(nil), opts.CheckoutOptions...)
	if opts.Recorder != nil {
		coOpts = append(coOpts, checkout.WithRecorder(opts.Recorder))
	}

	s := &Session{
		local:   local,
		remote:  rs,
		oracle:  oracle,
		counter: counter,
		catalog: catalog.NewManager(rs, local, oracle, opts.RemoteTimeout),
		commit:  checkout.NewCommitter(rs, local, oracle, counter, opts.RemoteTimeout, coOpts...),
		engine:  salesync.NewEngine(rs, local, counter, opts.RemoteTimeout),
		opts:    opts,
	}

	if opts.Recorder != nil {
		s.catalog.SetRecorder(opts.Recorder)
		s.engine.SetRecorder(opts.Recorder)
		counter.OnChange(opts.Recorder.SetPending)
		opts.Recorder.SetOnline(oracle.IsOnline())
	}
	return s
}

// Start computes the initial pending count and subscribes to
// connectivity transitions. A till that starts online with sales left from
// a previous run syncs them right away, since no transition will fire.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unsubscribe != nil {
		return fmt.Errorf("session already started")
	}
	n, err := s.counter.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("count pending sales: %w", err)
	}
	s.unsubscribe = s.oracle.Subscribe(s.onTransition)

	if s.opts.SyncOnReconnect && n > 0 && s.oracle.IsOnline() {
		s.goSync("startup")
	}
	return nil
}

// onTransition runs inside Oracle.Report, so the sync it triggers is
// handed to a tracked goroutine.
func (s *Session) onTransition(ev connectivity.Event) {
	slog.Info("connectivity changed",
		"component", "session",
		"state", ev.String(),
	)
	if s.opts.Recorder != nil {
		s.opts.Recorder.SetOnline(ev == connectivity.BecameOnline)
	}
	if ev != connectivity.BecameOnline || !s.opts.SyncOnReconnect {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.goSync("reconnect")
}

// goSync runs one sync cycle in a goroutine tracked by Close. s.mu must be
// held.
func (s *Session) goSync(trigger string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		res := s.engine.SyncPending(context.Background())
		slog.Info("triggered sync finished",
			"component", "session",
			"action", "sync",
			"trigger", trigger,
			"synced", res.Synced,
			"failed", res.Failed,
			"skipped", res.Skipped,
		)
	}()
}

// Close unsubscribes from the oracle and waits for triggered syncs.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// CommitSale records a validated cart.
func (s *Session) CommitSale(ctx context.Context, cart types.Cart) (*types.CommitResult, error) {
	return s.commit.CommitSale(ctx, cart)
}

// LoadCatalog returns the catalog from the remote store or the cache.
func (s *Session) LoadCatalog(ctx context.Context) (*types.Catalog, error) {
	return s.catalog.Load(ctx)
}

// SyncPending runs one sync cycle.
func (s *Session) SyncPending(ctx context.Context) types.SyncResult {
	return s.engine.SyncPending(ctx)
}

// PendingCount returns the SyncCounter value.
func (s *Session) PendingCount() int {
	return s.counter.Value()
}

// Syncing reports whether a sync cycle is running.
func (s *Session) Syncing() bool {
	return s.engine.Running()
}

// IsOnline reports the current connectivity state.
func (s *Session) IsOnline() bool {
	return s.oracle.IsOnline()
}

// ReportConnectivity forwards a platform network-status signal.
func (s *Session) ReportConnectivity(online bool) {
	s.oracle.Report(online)
}

// Status returns the presentation view of the sync subsystem.
func (s *Session) Status() types.SyncStatus {
	return types.SyncStatus{
		Online:  s.IsOnline(),
		Pending: s.PendingCount(),
		Syncing: s.Syncing(),
	}
}

// ListPending returns the queued sales, oldest first.
func (s *Session) ListPending(ctx context.Context) ([]types.PendingSale, error) {
	return s.local.ListPending(ctx)
}

// SchemaVersion returns the local store schema version.
func (s *Session) SchemaVersion(ctx context.Context) (int64, error) {
	return s.local.SchemaVersion(ctx)
}

// DeleteRemoteSale removes a recorded sale and its line items from the
// remote store. It needs connectivity.
func (s *Session) DeleteRemoteSale(ctx context.Context, id int64) error {
	if !s.IsOnline() {
		return remote.Unavailable("delete sale", fmt.Errorf("offline"))
	}
	if s.opts.RemoteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RemoteTimeout)
		defer cancel()
	}
	return s.remote.DeleteSale(ctx, id)
}
