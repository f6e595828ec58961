package session

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hyperengineering/till/internal/checkout"
	"github.com/hyperengineering/till/internal/connectivity"
	"github.com/hyperengineering/till/internal/localstore"
	"github.com/hyperengineering/till/internal/remote"
	"github.com/hyperengineering/till/internal/remote/remotetest"
	"github.com/hyperengineering/till/internal/types"
	"github.com/shopspring/decimal"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func cashCart() types.Cart {
	return types.Cart{
		Items: []types.LineItem{
			{ProductID: 1, Quantity: 2, UnitPrice: dec("15.00")},
			{ProductID: 2, Quantity: 1, UnitPrice: dec("15.00")},
		},
		Total:         dec("45.00"),
		Tendered:      dec("50.00"),
		PaymentMethod: types.PaymentCash,
	}
}

type fakeRecorder struct {
	mu      sync.Mutex
	pending int
	online  bool
	synced  int
}

func (r *fakeRecorder) CatalogLoaded(types.CatalogSource) {}
func (r *fakeRecorder) SaleCommitted(bool)                {}
func (r *fakeRecorder) SyncCompleted(synced, _ int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.synced += synced
}
func (r *fakeRecorder) SetPending(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = n
}
func (r *fakeRecorder) SetOnline(online bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.online = online
}

type harness struct {
	store  *localstore.SQLiteStore
	remote *remotetest.Fake
	oracle *connectivity.Oracle
	rec    *fakeRecorder
	s      *Session
}

func newHarness(t *testing.T, online, syncOnReconnect bool) *harness {
	t.Helper()
	store, err := localstore.Open(filepath.Join(t.TempDir(), "till.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	h := &harness{
		store:  store,
		remote: remotetest.NewFake(),
		oracle: connectivity.New(online),
		rec:    &fakeRecorder{},
	}
	h.s = New(store, h.remote, h.oracle, Options{
		RemoteTimeout:   time.Second,
		SyncOnReconnect: syncOnReconnect,
		Recorder:        h.rec,
	})
	if err := h.s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		h.s.Close()
		store.Close()
	})
	return h
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestSession_OfflineCommitThenReconnectSync(t *testing.T) {
	// Given: An offline till
	h := newHarness(t, false, true)

	// When: A $45.00 cash sale with $50.00 tendered is committed
	res, err := h.s.CommitSale(context.Background(), cashCart())
	if err != nil {
		t.Fatalf("CommitSale() error = %v", err)
	}

	// Then: It is pending
	if res.PersistedRemotely {
		t.Fatal("PersistedRemotely = true while offline")
	}
	if h.s.PendingCount() != 1 {
		t.Fatalf("PendingCount() = %d, want 1", h.s.PendingCount())
	}

	// When: Connectivity returns
	h.s.ReportConnectivity(true)

	// Then: The reconnect sync drains the queue
	waitFor(t, func() bool { return h.s.PendingCount() == 0 && !h.s.Syncing() })
	if n := len(h.remote.Sales()); n != 1 {
		t.Errorf("remote sales = %d, want 1", n)
	}
	h.rec.mu.Lock()
	defer h.rec.mu.Unlock()
	if h.rec.synced != 1 || !h.rec.online || h.rec.pending != 0 {
		t.Errorf("recorder = synced %d online %v pending %d", h.rec.synced, h.rec.online, h.rec.pending)
	}
}

func TestSession_ManualSyncAfterReconnect(t *testing.T) {
	h := newHarness(t, false, false)
	if _, err := h.s.CommitSale(context.Background(), cashCart()); err != nil {
		t.Fatal(err)
	}

	h.s.ReportConnectivity(true)
	got := h.s.SyncPending(context.Background())

	if got != (types.SyncResult{Synced: 1}) {
		t.Errorf("SyncPending() = %+v, want {Synced:1}", got)
	}
	if h.s.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d, want 0", h.s.PendingCount())
	}
}

func TestSession_StartCountsExistingQueue(t *testing.T) {
	dir := t.TempDir()
	store, err := localstore.Open(filepath.Join(dir, "till.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	sale := types.NewSale(cashCart(), "left-over", time.Now())
	if _, err := store.EnqueueSale(context.Background(), sale); err != nil {
		t.Fatal(err)
	}

	s := New(store, remotetest.NewFake(), connectivity.New(false), Options{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Close()

	if s.PendingCount() != 1 {
		t.Errorf("PendingCount() = %d, want 1", s.PendingCount())
	}
	if err := s.Start(context.Background()); err == nil {
		t.Error("second Start() succeeded, want error")
	}
}

func TestSession_StartSyncsLeftoverQueueWhenOnline(t *testing.T) {
	// Given: A store holding a sale left from a previous run
	store, err := localstore.Open(filepath.Join(t.TempDir(), "till.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	sale := types.NewSale(cashCart(), "left-over", time.Now())
	if _, err := store.EnqueueSale(context.Background(), sale); err != nil {
		t.Fatal(err)
	}
	rs := remotetest.NewFake()

	// When: The session starts online with no transition to come
	s := New(store, rs, connectivity.New(true), Options{
		RemoteTimeout:   time.Second,
		SyncOnReconnect: true,
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Close()

	// Then: The leftover sale reaches the remote store
	waitFor(t, func() bool { return s.PendingCount() == 0 })
	if got := len(rs.Sales()); got != 1 {
		t.Errorf("remote sales = %d, want 1", got)
	}
}

func TestSession_StartWithoutAutoSyncLeavesQueue(t *testing.T) {
	store, err := localstore.Open(filepath.Join(t.TempDir(), "till.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	sale := types.NewSale(cashCart(), "left-over", time.Now())
	if _, err := store.EnqueueSale(context.Background(), sale); err != nil {
		t.Fatal(err)
	}
	rs := remotetest.NewFake()

	s := New(store, rs, connectivity.New(true), Options{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	s.Close()

	if rs.CreateCalls() != 0 {
		t.Errorf("CreateCalls() = %d, want 0", rs.CreateCalls())
	}
	if s.PendingCount() != 1 {
		t.Errorf("PendingCount() = %d, want 1", s.PendingCount())
	}
}

func TestSession_NewLeavesCallerOptionsUntouched(t *testing.T) {
	// Given: Caller options with spare capacity in the backing array
	store, err := localstore.Open(filepath.Join(t.TempDir(), "till.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	coOpts := make([]checkout.Option, 1, 4)
	coOpts[0] = checkout.WithRefGenerator(func() string { return "fixed" })

	// When: A session with a recorder is built from them
	s := New(store, remotetest.NewFake(), connectivity.New(false), Options{
		Recorder:        &fakeRecorder{},
		CheckoutOptions: coOpts,
	})
	defer s.Close()

	// Then: Nothing was written past the caller's length
	if spare := coOpts[:2][1]; spare != nil {
		t.Error("New() wrote into the caller's CheckoutOptions backing array")
	}
	if len(coOpts) != 1 {
		t.Errorf("len(CheckoutOptions) = %d, want 1", len(coOpts))
	}
}

func TestSession_NoSaleLossWithSync(t *testing.T) {
	// Given: A till toggling connectivity with a flaky remote
	h := newHarness(t, true, true)
	h.remote.FailCreate(func(call int, _ types.Sale) error {
		if call%2 == 0 {
			return errors.New("flaky")
		}
		return nil
	})

	// When: N commits are interleaved with transitions
	const n = 20
	for i := 0; i < n; i++ {
		h.s.ReportConnectivity(i%3 != 0)
		if _, err := h.s.CommitSale(context.Background(), cashCart()); err != nil {
			t.Fatalf("commit %d: %v", i, err)
		}
	}
	h.s.Close()

	// Then: Every sale is either remote or pending
	pending, err := h.store.CountPending(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if total := len(h.remote.Sales()) + pending; total != n {
		t.Errorf("remote + pending = %d, want %d", total, n)
	}
}

func TestSession_Status(t *testing.T) {
	h := newHarness(t, true, false)

	got := h.s.Status()

	if got != (types.SyncStatus{Online: true}) {
		t.Errorf("Status() = %+v, want online with nothing pending", got)
	}
}

func TestSession_DeleteRemoteSale(t *testing.T) {
	h := newHarness(t, true, false)
	res, err := h.s.CommitSale(context.Background(), cashCart())
	if err != nil {
		t.Fatal(err)
	}

	if err := h.s.DeleteRemoteSale(context.Background(), res.RemoteID); err != nil {
		t.Fatalf("DeleteRemoteSale() error = %v", err)
	}
	if len(h.remote.Sales()) != 0 {
		t.Error("remote sale not deleted")
	}

	err = h.s.DeleteRemoteSale(context.Background(), res.RemoteID)
	if !errors.Is(err, remote.ErrNotFound) {
		t.Errorf("second DeleteRemoteSale() error = %v, want ErrNotFound", err)
	}
}

func TestSession_DeleteRemoteSaleOffline(t *testing.T) {
	h := newHarness(t, false, false)

	err := h.s.DeleteRemoteSale(context.Background(), 1)
	if !errors.Is(err, remote.ErrUnavailable) {
		t.Errorf("DeleteRemoteSale() error = %v, want ErrUnavailable", err)
	}
}

func TestSession_CloseStopsReconnectSync(t *testing.T) {
	h := newHarness(t, false, true)
	if _, err := h.s.CommitSale(context.Background(), cashCart()); err != nil {
		t.Fatal(err)
	}

	h.s.Close()
	h.s.ReportConnectivity(true)

	if h.remote.CreateCalls() != 0 {
		t.Errorf("CreateCalls() = %d after Close, want 0", h.remote.CreateCalls())
	}
}
