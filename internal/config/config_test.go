package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LLOCK_CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "file", cfg.Store.Backend)
	assert.Equal(t, "data", cfg.Store.DataDir)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 5*time.Minute, cfg.Sessions.ReapInterval)
	assert.True(t, cfg.RateLimitEnabled())
	assert.True(t, cfg.CORSEnabled())
	assert.Equal(t, ":8080", cfg.ListenAddr())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("LLOCK_CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("LLOCK_SERVER_PORT", "9999")
	t.Setenv("LLOCK_STORE_BACKEND", "memory")
	t.Setenv("LLOCK_LOGGING_LEVEL", "debug")
	t.Setenv("LLOCK_SECURITY_RATE_LIMIT_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.False(t, cfg.RateLimitEnabled())
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
store:
  backend: redis
  redis_url: redis://cache:6379/1
logging:
  level: warn
`), 0o644))
	t.Setenv("LLOCK_CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, "redis://cache:6379/1", cfg.Store.RedisURL)
	assert.Equal(t, "warn", cfg.Logging.Level)
	// Untouched sections still get defaults.
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
}

func TestEnvBeatsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0o644))
	t.Setenv("LLOCK_CONFIG_FILE", path)
	t.Setenv("LLOCK_SERVER_PORT", "7777")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad port", func(c *Config) { c.Server.Port = -1 }, "invalid server port"},
		{"bad backend", func(c *Config) { c.Store.Backend = "cassandra" }, "unknown store backend"},
		{"bad log output", func(c *Config) { c.Logging.Output = "syslog" }, "unknown logging output"},
		{"bad rate limit", func(c *Config) { c.Security.RateLimit.RPS = -3 }, "rate limit rps"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.applyDefaults()
			tt.mutate(cfg)
			err := cfg.validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
