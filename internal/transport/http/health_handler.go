package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"licenselock/internal/store"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// HealthHandler reports process and store health.
type HealthHandler struct {
	store   store.Store
	logger  *slog.Logger
	started time.Time
}

// NewHealthHandler creates the health handler.
func NewHealthHandler(s store.Store, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		store:   s,
		logger:  logger.With(slog.String("handler", "health")),
		started: time.Now(),
	}
}

// Routes returns the /api/health router.
func (h *HealthHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.HealthCheck)
	r.Get("/live", h.LivenessCheck)
	return r
}

// HealthCheck handles GET /api/health; it probes the store.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK

	if _, _, err := h.store.Get(r.Context(), store.KeyLicenses); err != nil {
		h.logger.ErrorContext(r.Context(), "store probe failed", slog.String("error", err.Error()))
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	render.Status(r, code)
	render.JSON(w, r, map[string]any{
		"status":  status,
		"version": Version,
		"uptime":  time.Since(h.started).String(),
	})
}

// LivenessCheck handles GET /api/health/live.
func (h *HealthHandler) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]any{"status": "alive"})
}
