// Package config loads the service configuration from environment
// variables (LLOCK_ prefix) and an optional YAML file. Precedence is
// environment, then file, then built-in defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config is the complete service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server" envconfig:"SERVER"`
	Store    StoreConfig    `yaml:"store" envconfig:"STORE"`
	Security SecurityConfig `yaml:"security" envconfig:"SECURITY"`
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
	Sessions SessionsConfig `yaml:"sessions" envconfig:"SESSIONS"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	RequestTimeout  time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

// StoreConfig selects and parameterizes the persistence backend.
type StoreConfig struct {
	// Backend is "file", "memory" or "redis".
	Backend  string `yaml:"backend" envconfig:"BACKEND"`
	DataDir  string `yaml:"data_dir" envconfig:"DATA_DIR"`
	RedisURL string `yaml:"redis_url" envconfig:"REDIS_URL"`
}

// SecurityConfig holds CORS and rate limiting settings.
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	EnableCORS     *bool           `yaml:"enable_cors" envconfig:"ENABLE_CORS"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig bounds request rates per client IP.
type RateLimitConfig struct {
	Enabled *bool   `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS"`
	Burst   int     `yaml:"burst" envconfig:"BURST"`
}

// LoggingConfig holds slog settings. Output is "console", "file" or
// "both".
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL"`
	Output   string `yaml:"output" envconfig:"OUTPUT"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// SessionsConfig tunes the background session reaper.
type SessionsConfig struct {
	ReapInterval time.Duration `yaml:"reap_interval" envconfig:"REAP_INTERVAL"`
}

// envPrefix namespaces all environment variables, e.g. LLOCK_SERVER_PORT.
const envPrefix = "LLOCK"

// Load builds the configuration. The optional file at LLOCK_CONFIG_FILE
// (default config.yaml, if present) fills anything the environment
// leaves unset; built-in defaults fill the rest.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	configFile := os.Getenv(envPrefix + "_CONFIG_FILE")
	if configFile == "" {
		configFile = "config.yaml"
	}
	if _, err := os.Stat(configFile); err == nil {
		fileCfg, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configFile, err)
		}
		cfg = merge(*fileCfg, cfg)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// merge overlays env values onto file values: the file only fills
// fields the environment left at zero.
func merge(file, env Config) Config {
	if env.Server.Port == 0 {
		env.Server.Port = file.Server.Port
	}
	if env.Server.ReadTimeout == 0 {
		env.Server.ReadTimeout = file.Server.ReadTimeout
	}
	if env.Server.WriteTimeout == 0 {
		env.Server.WriteTimeout = file.Server.WriteTimeout
	}
	if env.Server.IdleTimeout == 0 {
		env.Server.IdleTimeout = file.Server.IdleTimeout
	}
	if env.Server.RequestTimeout == 0 {
		env.Server.RequestTimeout = file.Server.RequestTimeout
	}
	if env.Server.ShutdownTimeout == 0 {
		env.Server.ShutdownTimeout = file.Server.ShutdownTimeout
	}
	if env.Store.Backend == "" {
		env.Store.Backend = file.Store.Backend
	}
	if env.Store.DataDir == "" {
		env.Store.DataDir = file.Store.DataDir
	}
	if env.Store.RedisURL == "" {
		env.Store.RedisURL = file.Store.RedisURL
	}
	if len(env.Security.AllowedOrigins) == 0 {
		env.Security.AllowedOrigins = file.Security.AllowedOrigins
	}
	if env.Security.EnableCORS == nil {
		env.Security.EnableCORS = file.Security.EnableCORS
	}
	if env.Security.RateLimit.Enabled == nil {
		env.Security.RateLimit.Enabled = file.Security.RateLimit.Enabled
	}
	if env.Security.RateLimit.RPS == 0 {
		env.Security.RateLimit.RPS = file.Security.RateLimit.RPS
	}
	if env.Security.RateLimit.Burst == 0 {
		env.Security.RateLimit.Burst = file.Security.RateLimit.Burst
	}
	if env.Logging.Level == "" {
		env.Logging.Level = file.Logging.Level
	}
	if env.Logging.Output == "" {
		env.Logging.Output = file.Logging.Output
	}
	if env.Logging.FilePath == "" {
		env.Logging.FilePath = file.Logging.FilePath
	}
	if env.Sessions.ReapInterval == 0 {
		env.Sessions.ReapInterval = file.Sessions.ReapInterval
	}
	return env
}

func (c *Config) applyDefaults() {
	boolPtr := func(v bool) *bool { return &v }

	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = 30 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "file"
	}
	if c.Store.DataDir == "" {
		c.Store.DataDir = "data"
	}
	if c.Store.RedisURL == "" {
		c.Store.RedisURL = "redis://localhost:6379/0"
	}
	if len(c.Security.AllowedOrigins) == 0 {
		c.Security.AllowedOrigins = []string{"http://localhost:8080"}
	}
	if c.Security.EnableCORS == nil {
		c.Security.EnableCORS = boolPtr(true)
	}
	if c.Security.RateLimit.Enabled == nil {
		c.Security.RateLimit.Enabled = boolPtr(true)
	}
	if c.Security.RateLimit.RPS == 0 {
		c.Security.RateLimit.RPS = 100
	}
	if c.Security.RateLimit.Burst == 0 {
		c.Security.RateLimit.Burst = 50
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "console"
	}
	if c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/licenselock.log"
	}
	if c.Sessions.ReapInterval == 0 {
		c.Sessions.ReapInterval = 5 * time.Minute
	}
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	switch c.Store.Backend {
	case "file", "memory", "redis":
	default:
		return fmt.Errorf("unknown store backend: %q", c.Store.Backend)
	}
	switch c.Logging.Output {
	case "", "console", "file", "both":
	default:
		return fmt.Errorf("unknown logging output: %q", c.Logging.Output)
	}
	if c.RateLimitEnabled() && c.Security.RateLimit.RPS <= 0 {
		return fmt.Errorf("rate limit rps must be positive")
	}
	return nil
}

// CORSEnabled reports whether the CORS middleware should be mounted.
func (c *Config) CORSEnabled() bool {
	return c.Security.EnableCORS == nil || *c.Security.EnableCORS
}

// RateLimitEnabled reports whether the rate limiter should be mounted.
func (c *Config) RateLimitEnabled() bool {
	return c.Security.RateLimit.Enabled == nil || *c.Security.RateLimit.Enabled
}

// ListenAddr is the address for the HTTP server.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
