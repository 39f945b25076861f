package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"golang.org/x/sync/errgroup"

	"licenselock/internal/alerts"
	"licenselock/internal/audit"
	"licenselock/internal/auth"
	"licenselock/internal/config"
	"licenselock/internal/events"
	"licenselock/internal/infrastructure"
	"licenselock/internal/license"
	"licenselock/internal/middleware"
	"licenselock/internal/store"
	handlers "licenselock/internal/transport/http"
)

// Application wires the store, registries, event hub and HTTP server.
type Application struct {
	Config        *config.Config
	Router        *chi.Mux
	Server        *http.Server
	Store         store.Store
	Hub           *events.Hub
	AuthService   *auth.Service
	Registry      *license.Registry
	Devices       *license.DeviceRegistry
	Alerts        *alerts.Engine
	Audit         *audit.Log
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
}

// New builds a fully wired application from configuration.
func New() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	logger.Info("application starting",
		slog.String("version", handlers.Version),
		slog.String("store_backend", cfg.Store.Backend))

	otelProviders, err := infrastructure.InitializeOTel(infrastructure.DefaultOTelConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("initialize telemetry: %w", err)
	}

	s, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Store:         s,
		Logger:        logger,
		OTelProviders: otelProviders,
	}

	app.initializeServices()
	app.setupRouter()

	app.Server = &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      app.Router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return app, nil
}

// openStore selects the persistence backend from configuration.
func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case "memory":
		return store.NewMemoryStore(), nil
	case "file":
		return store.NewFileStore(cfg.Store.DataDir)
	case "redis":
		return store.NewRedisStore(context.Background(), cfg.Store.RedisURL)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func (a *Application) initializeServices() {
	a.Hub = events.NewHub(a.Logger)

	a.Audit = audit.NewLog(a.Store, infrastructure.WithComponent(a.Logger, "audit"), a.Hub)
	a.Alerts = alerts.NewEngine(a.Store, infrastructure.WithComponent(a.Logger, "alerts"), a.Hub)
	a.Registry = license.NewRegistry(a.Store, a.Audit, a.Alerts, infrastructure.WithComponent(a.Logger, "licenses"))
	a.Devices = license.NewDeviceRegistry(a.Store, a.Alerts, infrastructure.WithComponent(a.Logger, "devices"))
	a.AuthService = auth.NewService(a.Store, a.Audit, infrastructure.WithComponent(a.Logger, "auth"))
}

// setupRouter assembles the middleware chain and the API surface. The
// websocket endpoint registers before the heavy middleware group; the
// wrapped ResponseWriters there break the upgrade.
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(chimiddleware.StripSlashes)

	r.Get("/ws", a.Hub.ServeWS)

	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	sessionAuth := middleware.SessionAuth(a.AuthService)
	apiKeyAuth := middleware.APIKeyAuth(a.AuthService)

	r.Group(func(r chi.Router) {
		r.Use(middleware.StructuredLogger(a.Logger))
		r.Use(middleware.Metrics(a.OTelProviders.Metrics))
		r.Use(middleware.Recoverer(a.Logger))
		r.Use(middleware.SecurityHeaders)
		r.Use(middleware.Compress(5))

		if a.Config.CORSEnabled() {
			r.Use(middleware.CORS(middleware.CORSConfig{
				AllowedOrigins:   a.Config.Security.AllowedOrigins,
				ExposedHeaders:   []string{"X-Request-ID"},
				AllowCredentials: true,
				Logger:           a.Logger,
			}))
		}

		if a.Config.RateLimitEnabled() {
			r.Use(middleware.NewRateLimiter(
				a.Config.Security.RateLimit.RPS,
				a.Config.Security.RateLimit.Burst,
				a.Logger,
			).Handler)
		}

		r.Route("/api", func(r chi.Router) {
			r.Use(render.SetContentType(render.ContentTypeJSON))
			r.Use(middleware.Timeout(a.Config.Server.RequestTimeout, a.Logger))

			authHandler := handlers.NewAuthHandler(a.AuthService, a.Logger)
			apiKeyHandler := handlers.NewAPIKeyHandler(a.AuthService, a.Logger)
			licenseHandler := handlers.NewLicenseHandler(a.Registry, a.Devices, sessionAuth, apiKeyAuth, a.OTelProviders.Metrics, a.Logger)
			deviceHandler := handlers.NewDeviceHandler(a.Registry, a.Devices, sessionAuth, apiKeyAuth, a.OTelProviders.Metrics, a.Logger)
			alertHandler := handlers.NewAlertHandler(a.Alerts, a.Registry, sessionAuth, a.Logger)
			auditHandler := handlers.NewAuditHandler(a.Audit, sessionAuth, a.Logger)
			adminHandler := handlers.NewAdminHandler(a.Store, a.Audit, sessionAuth, a.Logger)
			healthHandler := handlers.NewHealthHandler(a.Store, a.Logger)

			r.Mount("/auth", authHandler.Routes())
			r.Mount("/2fa", authHandler.TwoFactorRoutes())
			r.Mount("/apikeys", apiKeyHandler.Routes())
			r.Mount("/licenses", licenseHandler.Routes())
			r.Mount("/devices", deviceHandler.Routes())
			r.Mount("/alerts", alertHandler.Routes())
			r.Mount("/audit", auditHandler.Routes())
			r.Mount("/admin", adminHandler.Routes())
			r.Mount("/health", healthHandler.Routes())
			r.With(sessionAuth).Get("/stats", licenseHandler.Stats)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"success":false,"error":{"status_code":404,"error_code":"NOT_FOUND","message":"Resource not found"}}`))
	})

	a.Router = r
}

// Run serves until ctx is cancelled, then shuts everything down.
func (a *Application) Run(ctx context.Context) error {
	a.Hub.Start()
	defer a.Hub.Stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfoContext(ctx, "http server listening", slog.String("addr", a.Server.Addr))
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		a.AuthService.RunSessionReaper(ctx, a.Config.Sessions.ReapInterval)
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		return a.shutdown()
	})

	return g.Wait()
}

func (a *Application) shutdown() error {
	a.Logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error("server shutdown error", slog.String("error", err.Error()))
	}

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	if err := a.Store.Close(); err != nil {
		a.Logger.Error("store close error", slog.String("error", err.Error()))
	}

	infrastructure.CloseLogFile()

	a.Logger.Info("shutdown complete")
	return nil
}
