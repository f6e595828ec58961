package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hyperengineering/till/internal/types"
)

// SyncStatus handles GET /api/v1/sync/status
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.core.Status())
}

// ListPending handles GET /api/v1/sync/pending
func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	pending, err := h.core.ListPending(r.Context())
	if err != nil {
		slog.Error("list pending failed", "error", err)
		MapError(w, r, err)
		return
	}
	if pending == nil {
		pending = []types.PendingSale{}
	}
	writeJSON(w, http.StatusOK, pending)
}

// TriggerSync handles POST /api/v1/sync
//
// Runs one cycle synchronously. A call that finds a cycle already
// running answers 202 with skipped set.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	result := h.core.SyncPending(r.Context())

	status := http.StatusOK
	if result.Skipped {
		status = http.StatusAccepted
	}
	writeJSON(w, status, result)
}

type connectivityRequest struct {
	Online *bool `json:"online"`
}

// SetConnectivity handles PUT /api/v1/connectivity
func (h *Handler) SetConnectivity(w http.ResponseWriter, r *http.Request) {
	var req connectivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}
	if req.Online == nil {
		WriteProblem(w, r, http.StatusBadRequest, "online is required")
		return
	}

	h.core.ReportConnectivity(*req.Online)
	writeJSON(w, http.StatusOK, h.core.Status())
}
