package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/hyperengineering/till/internal/localstore"
	"github.com/hyperengineering/till/internal/remote"
	"github.com/hyperengineering/till/internal/types"
)

// --- Mock Implementations for Testing ---

type mockCore struct {
	catalog    *types.Catalog
	catalogErr error

	commitResult *types.CommitResult
	commitErr    error
	commitCalls  int
	lastCart     types.Cart

	syncResult types.SyncResult
	status     types.SyncStatus

	pending    []types.PendingSale
	pendingErr error

	reported []bool

	deleteErr error
	deletedID int64

	schema    int64
	schemaErr error
}

func (m *mockCore) CommitSale(ctx context.Context, cart types.Cart) (*types.CommitResult, error) {
	m.commitCalls++
	m.lastCart = cart
	return m.commitResult, m.commitErr
}

func (m *mockCore) LoadCatalog(ctx context.Context) (*types.Catalog, error) {
	return m.catalog, m.catalogErr
}

func (m *mockCore) SyncPending(ctx context.Context) types.SyncResult {
	return m.syncResult
}

func (m *mockCore) Status() types.SyncStatus {
	return m.status
}

func (m *mockCore) ListPending(ctx context.Context) ([]types.PendingSale, error) {
	return m.pending, m.pendingErr
}

func (m *mockCore) ReportConnectivity(online bool) {
	m.reported = append(m.reported, online)
	m.status.Online = online
}

func (m *mockCore) DeleteRemoteSale(ctx context.Context, id int64) error {
	m.deletedID = id
	return m.deleteErr
}

func (m *mockCore) SchemaVersion(ctx context.Context) (int64, error) {
	return m.schema, m.schemaErr
}

func serve(t *testing.T, core *mockCore, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	captureLogs(t)

	router := NewRouter(NewHandler(core, "1.2.3"), RouterOptions{})

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

const validCashCart = `{
	"items": [{"product_id": 1, "quantity": 2, "unit_price": "15.00"}, {"product_id": 2, "quantity": 1, "unit_price": "15.00"}],
	"total": "45.00",
	"tendered": "50.00",
	"payment_method": "Cash"
}`

func TestHealth(t *testing.T) {
	core := &mockCore{schema: 2, status: types.SyncStatus{Online: true, Pending: 3}}

	w := serve(t, core, http.MethodGet, "/api/v1/health", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp types.HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != "healthy" || resp.Version != "1.2.3" {
		t.Errorf("resp = %+v", resp)
	}
	if !resp.Online || resp.Pending != 3 || resp.SchemaVersion != 2 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestHealth_LocalStoreDown(t *testing.T) {
	core := &mockCore{schemaErr: errors.New("database is closed")}

	w := serve(t, core, http.MethodGet, "/api/v1/health", "")

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestCatalog_ReturnsSnapshot(t *testing.T) {
	core := &mockCore{catalog: &types.Catalog{
		Categories: []types.Category{{ID: 1, Name: "Drinks"}},
		Products:   []types.Product{{ID: 10, Name: "Latte", Price: decimal.RequireFromString("3.50"), CategoryID: 1, CategoryName: "Drinks"}},
		Source:     types.SourceCache,
	}}

	w := serve(t, core, http.MethodGet, "/api/v1/catalog", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var got types.Catalog
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Source != types.SourceCache || len(got.Products) != 1 || got.Products[0].CategoryName != "Drinks" {
		t.Errorf("catalog = %+v", got)
	}
}

func TestCatalog_CacheFailure(t *testing.T) {
	core := &mockCore{catalogErr: fmt.Errorf("read catalog cache: %w", &localstore.StorageError{Op: "read catalog", Err: errors.New("locked")})}

	w := serve(t, core, http.MethodGet, "/api/v1/catalog", "")

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestCommitSale_Created(t *testing.T) {
	// Given: A core that persists remotely
	core := &mockCore{commitResult: &types.CommitResult{
		PersistedRemotely: true,
		RemoteID:          77,
		ClientRef:         "01HREF",
		ChangeDue:         decimal.RequireFromString("5.00"),
	}}

	// When: A valid cash cart is posted with mixed-case payment method
	w := serve(t, core, http.MethodPost, "/api/v1/sales", validCashCart)

	// Then: 201 with the commit result, payment method normalised
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", w.Code, w.Body.String())
	}
	if core.lastCart.PaymentMethod != types.PaymentCash {
		t.Errorf("payment method = %q, want cash", core.lastCart.PaymentMethod)
	}
	var got types.CommitResult
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !got.PersistedRemotely || got.RemoteID != 77 || !got.ChangeDue.Equal(decimal.RequireFromString("5")) {
		t.Errorf("result = %+v", got)
	}
}

func TestCommitSale_ValidationFailure(t *testing.T) {
	core := &mockCore{}
	body := `{"items": [], "total": "10.00", "tendered": "5.00", "payment_method": "cheque"}`

	w := serve(t, core, http.MethodPost, "/api/v1/sales", body)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}
	if core.commitCalls != 0 {
		t.Error("invalid cart reached the commit path")
	}

	var p ProblemWithErrors
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	fields := map[string]bool{}
	for _, e := range p.Errors {
		fields[e.Field] = true
	}
	for _, want := range []string{"items", "payment_method"} {
		if !fields[want] {
			t.Errorf("missing error for %s in %+v", want, p.Errors)
		}
	}
}

func TestCommitSale_InvalidJSON(t *testing.T) {
	core := &mockCore{}

	w := serve(t, core, http.MethodPost, "/api/v1/sales", `{"items": [`)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if core.commitCalls != 0 {
		t.Error("commit called for malformed body")
	}
}

func TestCommitSale_TooLarge(t *testing.T) {
	core := &mockCore{}
	body := `{"payment_method": "` + strings.Repeat("x", maxBodyBytes) + `"}`

	w := serve(t, core, http.MethodPost, "/api/v1/sales", body)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", w.Code)
	}
}

func TestCommitSale_LocalFailure(t *testing.T) {
	core := &mockCore{commitErr: fmt.Errorf("enqueue sale: %w", &localstore.StorageError{Op: "enqueue sale", Err: errors.New("disk full")})}

	w := serve(t, core, http.MethodPost, "/api/v1/sales", validCashCart)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if strings.Contains(w.Body.String(), "disk full") {
		t.Error("storage error detail leaked")
	}
}

func TestDeleteSale(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		err    error
		status int
	}{
		{"deleted", "/api/v1/sales/42", nil, http.StatusNoContent},
		{"not found", "/api/v1/sales/42", fmt.Errorf("delete sale 42: %w", remote.ErrNotFound), http.StatusNotFound},
		{"offline", "/api/v1/sales/42", remote.Unavailable("delete sale", remote.ErrUnavailable), http.StatusServiceUnavailable},
		{"bad id", "/api/v1/sales/abc", nil, http.StatusBadRequest},
		{"zero id", "/api/v1/sales/0", nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core := &mockCore{deleteErr: tt.err}

			w := serve(t, core, http.MethodDelete, tt.path, "")

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			if tt.status != http.StatusBadRequest && core.deletedID != 42 {
				t.Errorf("deleted id = %d, want 42", core.deletedID)
			}
		})
	}
}

func TestSyncStatus(t *testing.T) {
	core := &mockCore{status: types.SyncStatus{Online: false, Pending: 4, Syncing: true}}

	w := serve(t, core, http.MethodGet, "/api/v1/sync/status", "")

	var got types.SyncStatus
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != core.status {
		t.Errorf("status = %+v, want %+v", got, core.status)
	}
}

func TestListPending_EmptyIsArray(t *testing.T) {
	w := serve(t, &mockCore{}, http.MethodGet, "/api/v1/sync/pending", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("body = %s, want []", w.Body.String())
	}
}

func TestListPending_ReturnsQueue(t *testing.T) {
	core := &mockCore{pending: []types.PendingSale{
		{LocalID: 1, SyncState: types.SyncPending, Attempts: 2, LastError: "remote store unavailable", Sale: types.Sale{ClientRef: "a"}},
	}}

	w := serve(t, core, http.MethodGet, "/api/v1/sync/pending", "")

	var got []types.PendingSale
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got) != 1 || got[0].ClientRef != "a" || got[0].Attempts != 2 {
		t.Errorf("pending = %+v", got)
	}
}

func TestTriggerSync(t *testing.T) {
	tests := []struct {
		name   string
		result types.SyncResult
		status int
	}{
		{"ran", types.SyncResult{Synced: 3, Failed: 1}, http.StatusOK},
		{"already running", types.SyncResult{Skipped: true}, http.StatusAccepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(t, &mockCore{syncResult: tt.result}, http.MethodPost, "/api/v1/sync", "")

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			var got types.SyncResult
			if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got != tt.result {
				t.Errorf("result = %+v, want %+v", got, tt.result)
			}
		})
	}
}

func TestSetConnectivity(t *testing.T) {
	core := &mockCore{status: types.SyncStatus{Online: true}}

	w := serve(t, core, http.MethodPut, "/api/v1/connectivity", `{"online": false}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if len(core.reported) != 1 || core.reported[0] {
		t.Errorf("reported = %v, want [false]", core.reported)
	}
	if !strings.Contains(w.Body.String(), `"online":false`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestSetConnectivity_MissingField(t *testing.T) {
	core := &mockCore{}

	w := serve(t, core, http.MethodPut, "/api/v1/connectivity", `{}`)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if len(core.reported) != 0 {
		t.Error("connectivity reported without a value")
	}
}

func TestRouter_MetricsMounted(t *testing.T) {
	captureLogs(t)
	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("till_pending_sales 0\n"))
	})
	router := NewRouter(NewHandler(&mockCore{}, "dev"), RouterOptions{MetricsHandler: metricsHandler, MetricsPath: "/metrics"})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if !strings.Contains(w.Body.String(), "till_pending_sales") {
		t.Errorf("metrics body = %s", w.Body.String())
	}
}
