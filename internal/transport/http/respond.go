package http

import (
	"net/http"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"licenselock/internal/auth"
	apierrors "licenselock/internal/errors"
	"licenselock/internal/infrastructure"
	"licenselock/internal/middleware"
)

// currentUser returns the session user; handlers behind SessionAuth can
// rely on it being non-nil.
func currentUser(r *http.Request) *auth.User {
	return middleware.UserFrom(r.Context())
}

// validate is the shared struct validator for request bindings.
var validate = validator.New(validator.WithRequiredStructEnabled())

// renderError writes a mapped domain error. Server faults are logged
// with the request's trace ID; client errors are the caller's problem.
func renderError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := apierrors.FromDomain(err)
	if apiErr.StatusCode >= http.StatusInternalServerError {
		infrastructure.LoggerFromContext(r.Context()).Error("request failed",
			"error", err.Error(),
			"path", r.URL.Path,
		)
	}
	render.Render(w, r, apierrors.NewErrorResponse(apiErr))
}

// renderAPIError writes a transport-level error directly.
func renderAPIError(w http.ResponseWriter, r *http.Request, apiErr *apierrors.APIError) {
	render.Render(w, r, apierrors.NewErrorResponse(apiErr))
}

// decodeValid decodes the JSON body into v and runs struct validation.
// A false return means the error response has already been written.
func decodeValid(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := render.DecodeJSON(r.Body, v); err != nil {
		renderAPIError(w, r, apierrors.InvalidRequestWithError(err))
		return false
	}
	if err := validate.Struct(v); err != nil {
		var fields []apierrors.ValidationError
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				fields = append(fields, apierrors.ValidationError{
					Field:   fe.Field(),
					Message: fe.Tag(),
				})
			}
		}
		renderAPIError(w, r, apierrors.NewValidationErrors(fields))
		return false
	}
	return true
}
