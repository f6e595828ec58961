package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RouterOptions configures optional endpoints.
type RouterOptions struct {
	// MetricsHandler is mounted at MetricsPath when non-nil.
	MetricsHandler http.Handler
	MetricsPath    string
	Observer       HTTPObserver
}

// NewRouter creates a new router with all routes configured
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(opts.Observer))
	r.Use(RecoveryMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/catalog", h.Catalog)

		r.Post("/sales", h.CommitSale)
		r.Delete("/sales/{id}", h.DeleteSale)

		r.Get("/sync/status", h.SyncStatus)
		r.Get("/sync/pending", h.ListPending)
		r.Post("/sync", h.TriggerSync)

		r.Put("/connectivity", h.SetConnectivity)
	})

	if opts.MetricsHandler != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, opts.MetricsHandler)
	}

	return r
}
