package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) *Application {
	t.Helper()

	t.Setenv("LLOCK_STORE_BACKEND", "memory")
	t.Setenv("LLOCK_LOGGING_OUTPUT", "console")
	t.Setenv("LLOCK_SECURITY_RATE_LIMIT_ENABLED", "false")

	a, err := New()
	require.NoError(t, err)
	t.Cleanup(func() { a.Store.Close() })
	return a
}

func TestNew_WiresEverything(t *testing.T) {
	a := newTestApp(t)

	assert.NotNil(t, a.Router)
	assert.NotNil(t, a.Server)
	assert.NotNil(t, a.Store)
	assert.NotNil(t, a.Hub)
	assert.NotNil(t, a.AuthService)
	assert.NotNil(t, a.Registry)
	assert.NotNil(t, a.Devices)
	assert.NotNil(t, a.Alerts)
	assert.NotNil(t, a.Audit)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	a := newTestApp(t)

	rec := httptest.NewRecorder()
	a.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	a.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_UnknownRoute(t *testing.T) {
	a := newTestApp(t)

	rec := httptest.NewRecorder()
	a.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_FOUND")
}

func TestRouter_ProtectedRoutesRequireAuth(t *testing.T) {
	a := newTestApp(t)

	for _, path := range []string{"/api/licenses", "/api/devices", "/api/alerts", "/api/audit", "/api/stats"} {
		rec := httptest.NewRecorder()
		a.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestOpenStore_UnknownBackend(t *testing.T) {
	a := newTestApp(t)
	a.Config.Store.Backend = "cassandra"

	_, err := openStore(a.Config)
	assert.Error(t, err)
}
