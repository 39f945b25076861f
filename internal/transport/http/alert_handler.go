package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"licenselock/internal/alerts"
	"licenselock/internal/license"
)

// AlertHandler handles piracy alert endpoints.
type AlertHandler struct {
	engine   *alerts.Engine
	registry *license.Registry
	logger   *slog.Logger

	sessionAuth func(http.Handler) http.Handler
}

// NewAlertHandler creates the alert handler. The license registry is
// used to scope the listing to the caller's licenses.
func NewAlertHandler(engine *alerts.Engine, registry *license.Registry,
	sessionAuth func(http.Handler) http.Handler, logger *slog.Logger) *AlertHandler {
	return &AlertHandler{
		engine:      engine,
		registry:    registry,
		logger:      logger.With(slog.String("handler", "alert")),
		sessionAuth: sessionAuth,
	}
}

// Routes returns the /api/alerts router.
func (h *AlertHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(h.sessionAuth)

	r.Get("/", h.List)
	r.Post("/{id}/resolve", h.Resolve)

	return r
}

// List handles GET /api/alerts; alerts across all of the caller's
// licenses, newest first.
func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	ctx := r.Context()

	licenses, err := h.registry.List(ctx, user.ID)
	if err != nil {
		renderError(w, r, err)
		return
	}
	ids := make([]string, len(licenses))
	for i, lic := range licenses {
		ids[i] = lic.ID
	}

	list, err := h.engine.List(ctx, ids)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"success": true, "alerts": list})
}

// Resolve handles POST /api/alerts/{id}/resolve. Resolving an already
// resolved or unknown alert is a no-op.
func (h *AlertHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Resolve(r.Context(), chi.URLParam(r, "id")); err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"success": true})
}
