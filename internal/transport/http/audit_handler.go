package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"licenselock/internal/audit"
)

// AuditHandler handles the audit trail endpoints.
type AuditHandler struct {
	log    *audit.Log
	logger *slog.Logger

	sessionAuth func(http.Handler) http.Handler
}

// NewAuditHandler creates the audit handler.
func NewAuditHandler(log *audit.Log, sessionAuth func(http.Handler) http.Handler, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{
		log:         log,
		logger:      logger.With(slog.String("handler", "audit")),
		sessionAuth: sessionAuth,
	}
}

// Routes returns the /api/audit router.
func (h *AuditHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(h.sessionAuth)

	r.Get("/", h.List)
	r.Get("/export", h.Export)
	r.Delete("/", h.Clear)

	return r
}

// List handles GET /api/audit. Optional query params: limit, plus
// resource/resourceId to filter to one record's history.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	ctx := r.Context()

	if resource := r.URL.Query().Get("resource"); resource != "" {
		entries, err := h.log.EntriesByResource(ctx, user.ID, resource, r.URL.Query().Get("resourceId"))
		if err != nil {
			renderError(w, r, err)
			return
		}
		render.JSON(w, r, map[string]any{"success": true, "entries": entries})
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := h.log.Entries(ctx, user.ID, limit)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"success": true, "entries": entries})
}

// Export handles GET /api/audit/export; the trail as a CSV download.
func (h *AuditHandler) Export(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	csvData, err := h.log.ExportCSV(r.Context(), user.ID)
	if err != nil {
		renderError(w, r, err)
		return
	}

	filename := "audit-log-" + time.Now().UTC().Format("2006-01-02") + ".csv"
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(csvData))
}

// Clear handles DELETE /api/audit; it removes only the caller's
// entries.
func (h *AuditHandler) Clear(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	if err := h.log.Clear(r.Context(), user.ID); err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"success": true})
}
