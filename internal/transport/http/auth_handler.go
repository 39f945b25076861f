package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"licenselock/internal/auth"
	apierrors "licenselock/internal/errors"
	"licenselock/internal/middleware"
)

// AuthHandler handles account, session and two-factor endpoints.
type AuthHandler struct {
	service *auth.Service
	logger  *slog.Logger
}

// NewAuthHandler creates the auth handler.
func NewAuthHandler(service *auth.Service, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "auth")),
	}
}

// RegisterRequest is the signup payload. The license key is
// format-checked at registration and bound on first verification.
type RegisterRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=8"`
	Name       string `json:"name" validate:"required"`
	LicenseKey string `json:"licenseKey" validate:"required"`
}

// LoginRequest carries credentials plus the optional two-factor code.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	TOTPCode string `json:"totpCode,omitempty"`
}

// ResetRequestRequest asks for a password reset token.
type ResetRequestRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetRequest completes a password reset.
type ResetRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=8"`
}

// TwoFactorVerifyRequest carries a TOTP or backup code.
type TwoFactorVerifyRequest struct {
	Code string `json:"code" validate:"required"`
}

// Routes returns the /api/auth router.
func (h *AuthHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/register", h.Register)
	r.Post("/login", h.Login)
	r.Post("/reset-request", h.ResetTokenRequest)
	r.Post("/reset", h.ResetPassword)

	r.Group(func(r chi.Router) {
		r.Use(middleware.SessionAuth(h.service))
		r.Post("/logout", h.Logout)
		r.Post("/heartbeat", h.Heartbeat)
		r.Get("/me", h.Me)
	})

	return r
}

// TwoFactorRoutes returns the /api/2fa router. All endpoints require a
// session; they operate on the calling user's account.
func (h *AuthHandler) TwoFactorRoutes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.SessionAuth(h.service))

	r.Post("/setup", h.TwoFactorSetup)
	r.Post("/verify", h.TwoFactorVerify)
	r.Post("/disable", h.TwoFactorDisable)
	r.Get("/status", h.TwoFactorStatus)
	r.Get("/backup-codes", h.TwoFactorBackupCodes)

	return r
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeValid(w, r, &req) {
		return
	}

	user, err := h.service.Register(r.Context(), req.Email, req.Password, req.Name, req.LicenseKey)
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, map[string]any{"success": true, "user": user})
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeValid(w, r, &req) {
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password, req.TOTPCode)
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]any{"success": true, "result": result})
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := middleware.BearerToken(r)
	if err := h.service.Logout(r.Context(), token); err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"success": true})
}

// Heartbeat handles POST /api/auth/heartbeat; it refreshes the
// session's idle timer.
func (h *AuthHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	token := middleware.BearerToken(r)
	if err := h.service.Heartbeat(r.Context(), token); err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"success": true})
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFrom(r.Context())
	if user == nil {
		renderAPIError(w, r, apierrors.ErrUnauthorized)
		return
	}
	render.JSON(w, r, map[string]any{"success": true, "user": user})
}

// ResetTokenRequest handles POST /api/auth/reset-request. Unknown
// emails get the same response as known ones. There is no mail
// delivery; the token rides back in the response.
func (h *AuthHandler) ResetTokenRequest(w http.ResponseWriter, r *http.Request) {
	var req ResetRequestRequest
	if !decodeValid(w, r, &req) {
		return
	}

	token, err := h.service.RequestPasswordReset(r.Context(), req.Email)
	if err != nil {
		renderError(w, r, err)
		return
	}

	resp := map[string]any{"success": true, "message": "If the account exists, a reset token has been issued"}
	if token != "" {
		resp["token"] = token
	}
	render.JSON(w, r, resp)
}

// ResetPassword handles POST /api/auth/reset.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if !decodeValid(w, r, &req) {
		return
	}

	if err := h.service.ResetPassword(r.Context(), req.Email, req.Token, req.NewPassword); err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"success": true})
}

// TwoFactorSetup handles POST /api/2fa/setup.
func (h *AuthHandler) TwoFactorSetup(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFrom(r.Context())

	setup, err := h.service.SetupTwoFactor(r.Context(), user.Email)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"success": true, "setup": setup})
}

// TwoFactorVerify handles POST /api/2fa/verify. The first successful
// verification enables two-factor for the account.
func (h *AuthHandler) TwoFactorVerify(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFrom(r.Context())

	var req TwoFactorVerifyRequest
	if !decodeValid(w, r, &req) {
		return
	}

	if err := h.service.VerifyTwoFactor(r.Context(), user.Email, req.Code); err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"success": true})
}

// TwoFactorDisable handles POST /api/2fa/disable.
func (h *AuthHandler) TwoFactorDisable(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFrom(r.Context())

	if err := h.service.DisableTwoFactor(r.Context(), user.Email); err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"success": true})
}

// TwoFactorStatus handles GET /api/2fa/status.
func (h *AuthHandler) TwoFactorStatus(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFrom(r.Context())

	status, err := h.service.TwoFactorStatus(r.Context(), user.Email)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, status)
}

// TwoFactorBackupCodes handles GET /api/2fa/backup-codes. Codes are
// single-use; consumed ones no longer appear.
func (h *AuthHandler) TwoFactorBackupCodes(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFrom(r.Context())

	codes, err := h.service.TwoFactorBackupCodes(r.Context(), user.Email)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"success": true, "backupCodes": codes})
}
