package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"licenselock/internal/audit"
	apierrors "licenselock/internal/errors"
	"licenselock/internal/store"
)

// AdminHandler handles the backup and restore endpoints.
type AdminHandler struct {
	store    store.Store
	auditLog *audit.Log
	logger   *slog.Logger

	sessionAuth func(http.Handler) http.Handler
}

// NewAdminHandler creates the admin handler.
func NewAdminHandler(s store.Store, auditLog *audit.Log, sessionAuth func(http.Handler) http.Handler, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		store:       s,
		auditLog:    auditLog,
		logger:      logger.With(slog.String("handler", "admin")),
		sessionAuth: sessionAuth,
	}
}

// Routes returns the /api/admin router.
func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(h.sessionAuth)

	r.Post("/backup", h.Backup)
	r.Post("/restore", h.Restore)

	return r
}

// Backup handles POST /api/admin/backup; it snapshots the licensing
// collections, replacing any previous snapshot.
func (h *AdminHandler) Backup(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	ctx := r.Context()

	snap, err := store.Backup(ctx, h.store)
	if err != nil {
		renderError(w, r, err)
		return
	}

	h.auditLog.Record(ctx, user.ID, "BACKUP", "system", "", "Data backup created", audit.SeverityInfo)
	render.JSON(w, r, map[string]any{"success": true, "createdAt": snap.CreatedAt})
}

// Restore handles POST /api/admin/restore; it overwrites the licensing
// collections with the stored snapshot.
func (h *AdminHandler) Restore(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	ctx := r.Context()

	snap, err := store.Restore(ctx, h.store)
	if err != nil {
		if errors.Is(err, store.ErrNoBackup) {
			renderAPIError(w, r, apierrors.NotFoundError("Backup snapshot"))
			return
		}
		renderError(w, r, err)
		return
	}

	h.auditLog.Record(ctx, user.ID, "RESTORE", "system", "", "Data restored from backup", audit.SeverityWarning)
	render.JSON(w, r, map[string]any{"success": true, "restoredFrom": snap.CreatedAt})
}
