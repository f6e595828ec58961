package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hyperengineering/till/internal/types"
	"github.com/hyperengineering/till/internal/validation"
)

// maxBodyBytes bounds a sale request body.
const maxBodyBytes = 1 << 20

// Core is the till surface the HTTP layer drives.
type Core interface {
	CommitSale(ctx context.Context, cart types.Cart) (*types.CommitResult, error)
	LoadCatalog(ctx context.Context) (*types.Catalog, error)
	SyncPending(ctx context.Context) types.SyncResult
	Status() types.SyncStatus
	ListPending(ctx context.Context) ([]types.PendingSale, error)
	ReportConnectivity(online bool)
	DeleteRemoteSale(ctx context.Context, id int64) error
	SchemaVersion(ctx context.Context) (int64, error)
}

// Handler implements the API handlers
type Handler struct {
	core    Core
	version string
}

// NewHandler creates a new Handler
func NewHandler(core Core, version string) *Handler {
	return &Handler{
		core:    core,
		version: version,
	}
}

// Health returns the health status
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	schema, err := h.core.SchemaVersion(r.Context())
	if err != nil {
		slog.Error("health check failed", "error", err)
		WriteProblem(w, r, http.StatusServiceUnavailable, "Local store unavailable")
		return
	}

	st := h.core.Status()
	resp := types.HealthResponse{
		Status:        "healthy",
		Version:       h.version,
		Online:        st.Online,
		Pending:       st.Pending,
		SchemaVersion: schema,
	}

	writeJSON(w, http.StatusOK, resp)
}

// Catalog handles GET /api/v1/catalog
func (h *Handler) Catalog(w http.ResponseWriter, r *http.Request) {
	cat, err := h.core.LoadCatalog(r.Context())
	if err != nil {
		slog.Error("catalog load failed", "error", err)
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cat)
}

// CommitSale handles POST /api/v1/sales
func (h *Handler) CommitSale(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var cart types.Cart
	if err := json.NewDecoder(r.Body).Decode(&cart); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteProblem(w, r, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}

	// Accept any casing from the terminal UI; validation stays strict.
	if pm, err := types.ParsePaymentMethod(string(cart.PaymentMethod)); err == nil {
		cart.PaymentMethod = pm
	}

	if errs := validation.ValidateCart(cart); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Cart contains invalid fields", errs)
		return
	}

	result, err := h.core.CommitSale(r.Context(), cart)
	if err != nil {
		slog.Error("sale commit failed", "error", err, "items", len(cart.Items))
		MapError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// DeleteSale handles DELETE /api/v1/sales/{id}
func (h *Handler) DeleteSale(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		WriteProblem(w, r, http.StatusBadRequest, "Sale id must be a positive integer")
		return
	}

	if err := h.core.DeleteRemoteSale(r.Context(), id); err != nil {
		slog.Warn("sale delete failed", "error", err, "sale_id", id)
		MapError(w, r, err)
		return
	}

	slog.Info("sale deleted", "component", "api", "action", "delete_sale", "sale_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
