package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"licenselock/internal/auth"
	"licenselock/internal/license"
)

func TestFromDomain(t *testing.T) {
	tests := []struct {
		err        error
		statusCode int
		errorCode  string
	}{
		{license.ErrNotFound, http.StatusNotFound, "LICENSE_NOT_FOUND"},
		{license.ErrDeviceNotFound, http.StatusNotFound, "DEVICE_NOT_FOUND"},
		{license.ErrNotActive, http.StatusConflict, "LICENSE_NOT_ACTIVE"},
		{license.ErrActivationLimit, http.StatusConflict, "ACTIVATION_LIMIT_REACHED"},
		{auth.ErrEmailTaken, http.StatusConflict, "EMAIL_TAKEN"},
		{auth.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{auth.ErrSessionInvalid, http.StatusUnauthorized, "SESSION_INVALID"},
		{auth.ErrAPIKeyRevoked, http.StatusUnauthorized, "API_KEY_REVOKED"},
		{auth.ErrAPIKeyNotFound, http.StatusNotFound, "API_KEY_NOT_FOUND"},
		{fmt.Errorf("disk on fire"), http.StatusInternalServerError, "INTERNAL_SERVER_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.errorCode, func(t *testing.T) {
			apiErr := FromDomain(tt.err)
			assert.Equal(t, tt.statusCode, apiErr.StatusCode)
			assert.Equal(t, tt.errorCode, apiErr.ErrorCode)
		})
	}
}

func TestFromDomainWrappedError(t *testing.T) {
	wrapped := fmt.Errorf("activate device: %w", license.ErrActivationLimit)
	apiErr := FromDomain(wrapped)
	assert.Equal(t, "ACTIVATION_LIMIT_REACHED", apiErr.ErrorCode)
}

func TestFromDomainNil(t *testing.T) {
	assert.Nil(t, FromDomain(nil))
}

func TestUnknownErrorHidesMessage(t *testing.T) {
	apiErr := FromDomain(fmt.Errorf("secret internal detail"))
	assert.NotContains(t, apiErr.Message, "secret")
}
