// Package errors defines the structured API error body shared by every
// HTTP handler, plus the mapping from domain sentinel errors to HTTP
// responses.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/render"

	"licenselock/internal/auth"
	"licenselock/internal/license"
)

// APIError is the JSON error body for all endpoints.
type APIError struct {
	StatusCode int    `json:"status_code"`
	ErrorCode  string `json:"error_code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}

// Render implements render.Renderer.
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// ValidationError carries one failed field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// New creates an APIError.
func New(statusCode int, errorCode, message string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
	}
}

// NewWithDetails creates an APIError with a details payload.
func NewWithDetails(statusCode int, errorCode, message string, details any) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
		Details:    details,
	}
}

// Predefined errors for common scenarios.
var (
	ErrInvalidRequest   = New(http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format")
	ErrValidationFailed = New(http.StatusBadRequest, "VALIDATION_FAILED", "Request validation failed")

	ErrUnauthorized = New(http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
	ErrForbidden    = New(http.StatusForbidden, "FORBIDDEN", "Access denied")

	ErrNotFound = New(http.StatusNotFound, "NOT_FOUND", "Resource not found")

	ErrRateLimitExceeded = New(http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Rate limit exceeded")

	ErrInternalServer = New(http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Internal server error")
)

// InvalidRequestWithError wraps a body decode failure.
func InvalidRequestWithError(err error) *APIError {
	return NewWithDetails(http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format", err.Error())
}

// ErrValidation reports a single failed field.
func ErrValidation(field, message string) *APIError {
	return NewWithDetails(http.StatusBadRequest, "VALIDATION_FAILED", "Request validation failed", ValidationError{
		Field:   field,
		Message: message,
	})
}

// NewValidationErrors reports several failed fields at once.
func NewValidationErrors(errs []ValidationError) *APIError {
	return NewWithDetails(http.StatusBadRequest, "VALIDATION_FAILED", "Request validation failed",
		map[string][]ValidationError{"errors": errs})
}

// NotFoundError names the missing resource.
func NotFoundError(resource string) *APIError {
	return New(http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("%s not found", resource))
}

// ErrPanic is the body returned by the recoverer middleware.
func ErrPanic(rec any) *APIError {
	return NewWithDetails(http.StatusInternalServerError, "INTERNAL_SERVER_ERROR",
		"Internal server error", map[string]string{"message": fmt.Sprintf("%v", rec)})
}

// FromDomain translates sentinel errors from the service layer into API
// errors. Anything unrecognized becomes a 500 with the message hidden.
func FromDomain(err error) *APIError {
	switch {
	case err == nil:
		return nil

	case errors.Is(err, license.ErrNotFound):
		return New(http.StatusNotFound, "LICENSE_NOT_FOUND", "License not found")
	case errors.Is(err, license.ErrDeviceNotFound):
		return New(http.StatusNotFound, "DEVICE_NOT_FOUND", "Device not found")
	case errors.Is(err, license.ErrNotActive):
		return New(http.StatusConflict, "LICENSE_NOT_ACTIVE", "License is not active")
	case errors.Is(err, license.ErrActivationLimit):
		return New(http.StatusConflict, "ACTIVATION_LIMIT_REACHED", "Maximum activations reached")
	case errors.Is(err, license.ErrInvalidMaxActivations):
		return ErrValidation("maxActivations", "must be at least 1")

	case errors.Is(err, auth.ErrEmailTaken):
		return New(http.StatusConflict, "EMAIL_TAKEN", "Email already registered")
	case errors.Is(err, auth.ErrInvalidLicenseKey):
		return ErrValidation("licenseKey", "invalid license key")
	case errors.Is(err, auth.ErrInvalidCredentials):
		return New(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid credentials")
	case errors.Is(err, auth.ErrSessionInvalid):
		return New(http.StatusUnauthorized, "SESSION_INVALID", "Session invalid or expired")
	case errors.Is(err, auth.ErrResetTokenInvalid):
		return New(http.StatusBadRequest, "RESET_TOKEN_INVALID", "Invalid or expired reset token")
	case errors.Is(err, auth.ErrResetTokenExpired):
		return New(http.StatusBadRequest, "RESET_TOKEN_EXPIRED", "Reset token has expired")
	case errors.Is(err, auth.ErrUserNotFound):
		return New(http.StatusNotFound, "USER_NOT_FOUND", "User not found")
	case errors.Is(err, auth.ErrTwoFactorNotSetup):
		return New(http.StatusBadRequest, "2FA_NOT_SETUP", "Two-factor authentication not set up")
	case errors.Is(err, auth.ErrTwoFactorCode):
		return New(http.StatusUnauthorized, "2FA_CODE_INVALID", "Invalid two-factor code")
	case errors.Is(err, auth.ErrAPIKeyInvalid):
		return New(http.StatusUnauthorized, "API_KEY_INVALID", "Invalid API key")
	case errors.Is(err, auth.ErrAPIKeyRevoked):
		return New(http.StatusUnauthorized, "API_KEY_REVOKED", "API key has been revoked")
	case errors.Is(err, auth.ErrAPIKeyExpired):
		return New(http.StatusUnauthorized, "API_KEY_EXPIRED", "API key has expired")
	case errors.Is(err, auth.ErrAPIKeyNotFound):
		return New(http.StatusNotFound, "API_KEY_NOT_FOUND", "API key not found")

	default:
		return ErrInternalServer
	}
}

// ErrorResponse is the envelope every error renders into.
type ErrorResponse struct {
	Success bool      `json:"success"`
	Error   *APIError `json:"error"`
}

// NewErrorResponse wraps an APIError for rendering.
func NewErrorResponse(err *APIError) *ErrorResponse {
	return &ErrorResponse{Success: false, Error: err}
}

// Render implements render.Renderer.
func (e *ErrorResponse) Render(w http.ResponseWriter, r *http.Request) error {
	return e.Error.Render(w, r)
}
