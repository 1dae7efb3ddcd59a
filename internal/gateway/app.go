package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/chris12pannapara-hub/client-portal/internal/auth"
	"github.com/chris12pannapara-hub/client-portal/pkg/health"
	"github.com/chris12pannapara-hub/client-portal/pkg/middleware"
)

// App is the gateway process: edge middleware in front of a reverse proxy.
type App struct {
	cfg    *Config
	logger *slog.Logger
	server *http.Server
}

func New(cfg *Config, logger *slog.Logger) (*App, error) {
	proxy, err := NewProxy(cfg.UpstreamURL, logger)
	if err != nil {
		return nil, err
	}

	tokens := auth.NewTokenManager(cfg.JWTSecret, 0, cfg.Issuer)

	r := chi.NewRouter()
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))
	r.Use(RateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst))

	healthHandler := health.NewHandler()
	r.Get("/healthz", healthHandler.Live)
	r.Get("/readyz", healthHandler.Ready)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(tokens))
		r.Handle("/api/v1/*", proxy)
	})

	return &App{
		cfg:    cfg,
		logger: logger,
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
	}, nil
}

// Run serves until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("gateway listening",
			slog.String("addr", a.server.Addr),
			slog.String("upstream", a.cfg.UpstreamURL),
		)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("gateway server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("gateway shutdown: %w", err)
	}
	return nil
}
