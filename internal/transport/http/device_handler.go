package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	apierrors "licenselock/internal/errors"
	"licenselock/internal/infrastructure"
	"licenselock/internal/license"
)

// DeviceHandler handles device activation and management endpoints.
type DeviceHandler struct {
	registry *license.Registry
	devices  *license.DeviceRegistry
	metrics  *infrastructure.BusinessMetrics
	logger   *slog.Logger

	sessionAuth func(http.Handler) http.Handler
	apiKeyAuth  func(http.Handler) http.Handler
}

// NewDeviceHandler creates the device handler. Activation is called by
// client machines with an API key; management is a dashboard concern.
// metrics may be nil.
func NewDeviceHandler(registry *license.Registry, devices *license.DeviceRegistry,
	sessionAuth, apiKeyAuth func(http.Handler) http.Handler,
	metrics *infrastructure.BusinessMetrics, logger *slog.Logger) *DeviceHandler {
	return &DeviceHandler{
		registry:    registry,
		devices:     devices,
		metrics:     metrics,
		logger:      logger.With(slog.String("handler", "device")),
		sessionAuth: sessionAuth,
		apiKeyAuth:  apiKeyAuth,
	}
}

// ActivateRequest binds a machine to a license. Clients identify the
// license by key; the dashboard may pass the ID directly.
type ActivateRequest struct {
	LicenseID  string `json:"licenseId,omitempty"`
	LicenseKey string `json:"licenseKey,omitempty"`
	HWID       string `json:"hwid" validate:"required"`
	DeviceName string `json:"deviceName" validate:"required"`
}

// Routes returns the /api/devices router.
func (h *DeviceHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(h.apiKeyAuth)
		r.Post("/activate", h.Activate)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.sessionAuth)
		r.Get("/", h.List)
		r.Delete("/{id}", h.Deactivate)
		r.Post("/{id}/trust", h.ToggleTrust)
	})

	return r
}

// Activate handles POST /api/devices/activate. Re-activating a known
// HWID refreshes its lastSeen; a full license raises an alert and
// refuses.
func (h *DeviceHandler) Activate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("device-handler")

	ctx, span := tracer.Start(ctx, "device_handler.activate",
		trace.WithAttributes(
			attribute.String("http.route", "/api/devices/activate"),
		),
	)
	defer span.End()
	r = r.WithContext(ctx)

	var req ActivateRequest
	if !decodeValid(w, r, &req) {
		return
	}

	licenseID := req.LicenseID
	if licenseID == "" {
		if req.LicenseKey == "" {
			renderAPIError(w, r, apierrors.ErrValidation("licenseId", "licenseId or licenseKey is required"))
			return
		}
		lic, err := h.registry.GetByKey(ctx, req.LicenseKey)
		if err != nil {
			span.RecordError(err)
			renderError(w, r, err)
			return
		}
		licenseID = lic.ID
	}

	device, err := h.devices.Activate(ctx, licenseID, req.HWID, req.DeviceName)
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("activation.result", "refused"))
		h.countActivation(ctx, "refused")
		renderError(w, r, err)
		return
	}

	span.SetAttributes(
		attribute.String("activation.result", "activated"),
		attribute.String("license.id", licenseID),
	)
	h.countActivation(ctx, "activated")

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, map[string]any{"success": true, "device": device})
}

func (h *DeviceHandler) countActivation(ctx context.Context, result string) {
	if h.metrics == nil {
		return
	}
	h.metrics.DeviceActivations.Add(ctx, 1,
		metric.WithAttributes(attribute.String("result", result)))
}

// List handles GET /api/devices; all devices across the user's
// licenses.
func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	devices, err := h.devices.ListForUser(r.Context(), user.ID)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"success": true, "devices": devices})
}

// Deactivate handles DELETE /api/devices/{id}; the owning license's
// activation count is recomputed from the surviving devices.
func (h *DeviceHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.devices.Deactivate(r.Context(), chi.URLParam(r, "id")); err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"success": true})
}

// ToggleTrust handles POST /api/devices/{id}/trust.
func (h *DeviceHandler) ToggleTrust(w http.ResponseWriter, r *http.Request) {
	device, err := h.devices.ToggleTrust(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"success": true, "device": device})
}
