package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	apierrors "licenselock/internal/errors"
	"licenselock/internal/infrastructure"
	"licenselock/internal/keygen"
	"licenselock/internal/license"
)

// LicenseHandler handles the license lifecycle endpoints.
type LicenseHandler struct {
	registry *license.Registry
	devices  *license.DeviceRegistry
	metrics  *infrastructure.BusinessMetrics
	logger   *slog.Logger

	sessionAuth func(http.Handler) http.Handler
	apiKeyAuth  func(http.Handler) http.Handler
}

// NewLicenseHandler creates the license handler. sessionAuth guards the
// management endpoints; apiKeyAuth guards key verification, which is
// called by activation clients rather than the dashboard. metrics may
// be nil.
func NewLicenseHandler(registry *license.Registry, devices *license.DeviceRegistry,
	sessionAuth, apiKeyAuth func(http.Handler) http.Handler,
	metrics *infrastructure.BusinessMetrics, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		registry:    registry,
		devices:     devices,
		metrics:     metrics,
		logger:      logger.With(slog.String("handler", "license")),
		sessionAuth: sessionAuth,
		apiKeyAuth:  apiKeyAuth,
	}
}

// CreateLicenseRequest is the license creation payload.
type CreateLicenseRequest struct {
	Name           string     `json:"name" validate:"required"`
	MaxActivations int        `json:"maxActivations" validate:"required,gte=1"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
}

// VerifyLicenseRequest carries a raw license key.
type VerifyLicenseRequest struct {
	Key string `json:"key" validate:"required"`
}

// RenewLicenseRequest extends a license by whole months.
type RenewLicenseRequest struct {
	Months int `json:"months" validate:"required,gte=1"`
}

// UpdateStatusRequest overwrites the license status.
type UpdateStatusRequest struct {
	Status license.Status `json:"status" validate:"required"`
}

// DetectRequest triggers an anomaly sweep for a license.
type DetectRequest struct {
	ExcludeDeviceID string `json:"excludeDeviceId,omitempty"`
	IPAddress       string `json:"ipAddress,omitempty"`
}

// Routes returns the /api/licenses router.
func (h *LicenseHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(h.apiKeyAuth)
		r.Post("/verify", h.Verify)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.sessionAuth)
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
		r.Post("/{id}/renew", h.Renew)
		r.Patch("/{id}/status", h.UpdateStatus)
		r.Delete("/{id}", h.Delete)
		r.Get("/{id}/devices", h.ListDevices)
		r.Post("/{id}/detect", h.Detect)
	})

	return r
}

// Create handles POST /api/licenses.
func (h *LicenseHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	var req CreateLicenseRequest
	if !decodeValid(w, r, &req) {
		return
	}

	lic, err := h.registry.Create(r.Context(), user.ID, req.Name, req.MaxActivations, req.ExpiresAt)
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, map[string]any{"success": true, "license": lic})
}

// List handles GET /api/licenses.
func (h *LicenseHandler) List(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	licenses, err := h.registry.List(r.Context(), user.ID)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"success": true, "licenses": licenses})
}

// Get handles GET /api/licenses/{id}.
func (h *LicenseHandler) Get(w http.ResponseWriter, r *http.Request) {
	lic, err := h.registry.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		renderError(w, r, err)
		return
	}
	if lic.UserID != currentUser(r).ID {
		renderAPIError(w, r, apierrors.ErrForbidden)
		return
	}
	render.JSON(w, r, map[string]any{"success": true, "license": lic})
}

// Verify handles POST /api/licenses/verify. Unknown keys report
// invalid rather than an error; the caller only learns the verdict.
func (h *LicenseHandler) Verify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("license-handler")

	ctx, span := tracer.Start(ctx, "license_handler.verify",
		trace.WithAttributes(
			attribute.String("http.route", "/api/licenses/verify"),
		),
	)
	defer span.End()
	r = r.WithContext(ctx)

	var req VerifyLicenseRequest
	if !decodeValid(w, r, &req) {
		return
	}

	if !keygen.ValidLicenseKey(req.Key) {
		span.SetAttributes(attribute.String("license.verdict", "invalid"))
		h.countVerification(ctx, string(license.VerifyInvalid))
		render.JSON(w, r, license.VerifyResult{Valid: false, Status: license.VerifyInvalid, Reason: "Invalid license key"})
		return
	}

	result, err := h.registry.Verify(ctx, req.Key)
	if err != nil {
		span.RecordError(err)
		renderError(w, r, err)
		return
	}

	span.SetAttributes(
		attribute.String("license.verdict", string(result.Status)),
		attribute.Bool("license.valid", result.Valid),
	)
	h.countVerification(ctx, string(result.Status))
	render.JSON(w, r, result)
}

func (h *LicenseHandler) countVerification(ctx context.Context, verdict string) {
	if h.metrics == nil {
		return
	}
	h.metrics.LicenseVerifications.Add(ctx, 1,
		metric.WithAttributes(attribute.String("verdict", verdict)))
}

// Renew handles POST /api/licenses/{id}/renew. The extension starts
// from the later of the current expiry and now.
func (h *LicenseHandler) Renew(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	var req RenewLicenseRequest
	if !decodeValid(w, r, &req) {
		return
	}

	lic, err := h.registry.Renew(r.Context(), user.ID, chi.URLParam(r, "id"), req.Months)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"success": true, "license": lic})
}

// UpdateStatus handles PATCH /api/licenses/{id}/status.
func (h *LicenseHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	var req UpdateStatusRequest
	if !decodeValid(w, r, &req) {
		return
	}
	if !req.Status.Valid() {
		renderAPIError(w, r, apierrors.ErrValidation("status", "must be one of active, suspended, expired"))
		return
	}

	lic, err := h.registry.UpdateStatus(r.Context(), user.ID, chi.URLParam(r, "id"), req.Status)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"success": true, "license": lic})
}

// Delete handles DELETE /api/licenses/{id}; device activations go with
// the license.
func (h *LicenseHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	if err := h.registry.Delete(r.Context(), user.ID, chi.URLParam(r, "id")); err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"success": true})
}

// ListDevices handles GET /api/licenses/{id}/devices.
func (h *LicenseHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.devices.ListForLicense(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"success": true, "devices": devices})
}

// Detect handles POST /api/licenses/{id}/detect; it runs the anomaly
// sweep and returns whatever alerts it raised.
func (h *LicenseHandler) Detect(w http.ResponseWriter, r *http.Request) {
	var req DetectRequest
	if !decodeValid(w, r, &req) {
		return
	}

	raised, err := h.devices.DetectAnomalies(r.Context(), chi.URLParam(r, "id"), req.ExcludeDeviceID, req.IPAddress)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"success": true, "alerts": raised})
}

// Stats handles GET /api/stats.
func (h *LicenseHandler) Stats(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	stats, err := h.registry.Stats(r.Context(), user.ID)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, stats)
}
