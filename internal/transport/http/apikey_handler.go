package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"licenselock/internal/auth"
	"licenselock/internal/middleware"
)

// APIKeyHandler handles programmatic-credential endpoints.
type APIKeyHandler struct {
	service *auth.Service
	logger  *slog.Logger
}

// NewAPIKeyHandler creates the API key handler.
func NewAPIKeyHandler(service *auth.Service, logger *slog.Logger) *APIKeyHandler {
	return &APIKeyHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "apikey")),
	}
}

// CreateAPIKeyRequest is the key creation payload. ExpiresInDays of
// zero means the key never expires.
type CreateAPIKeyRequest struct {
	Name          string   `json:"name" validate:"required"`
	Permissions   []string `json:"permissions"`
	ExpiresInDays int      `json:"expiresInDays" validate:"gte=0"`
}

// VerifyAPIKeyRequest carries a raw key for verification.
type VerifyAPIKeyRequest struct {
	Key string `json:"key" validate:"required"`
}

// Routes returns the /api/apikeys router. Verification is open to key
// holders; management requires a session.
func (h *APIKeyHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/verify", h.Verify)

	r.Group(func(r chi.Router) {
		r.Use(middleware.SessionAuth(h.service))
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Post("/{id}/revoke", h.Revoke)
		r.Delete("/{id}", h.Delete)
	})

	return r
}

// Create handles POST /api/apikeys. The full key string is returned
// here and on every subsequent read.
func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFrom(r.Context())

	var req CreateAPIKeyRequest
	if !decodeValid(w, r, &req) {
		return
	}

	key, err := h.service.CreateAPIKey(r.Context(), user.ID, req.Name, req.Permissions, req.ExpiresInDays)
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, map[string]any{"success": true, "apiKey": key})
}

// List handles GET /api/apikeys.
func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFrom(r.Context())

	keys, err := h.service.ListAPIKeys(r.Context(), user.ID)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"success": true, "apiKeys": keys})
}

// Revoke handles POST /api/apikeys/{id}/revoke. Revocation is one-way.
func (h *APIKeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFrom(r.Context())

	if err := h.service.RevokeAPIKey(r.Context(), user.ID, chi.URLParam(r, "id")); err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"success": true})
}

// Delete handles DELETE /api/apikeys/{id}.
func (h *APIKeyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFrom(r.Context())

	if err := h.service.DeleteAPIKey(r.Context(), user.ID, chi.URLParam(r, "id")); err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"success": true})
}

// Verify handles POST /api/apikeys/verify. A valid key gets its
// lastUsed timestamp touched.
func (h *APIKeyHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyAPIKeyRequest
	if !decodeValid(w, r, &req) {
		return
	}

	key, err := h.service.VerifyAPIKey(r.Context(), req.Key)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"success": true, "apiKey": key})
}
