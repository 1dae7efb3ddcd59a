package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/chris12pannapara-hub/client-portal/internal/audit"
	"github.com/chris12pannapara-hub/client-portal/internal/auth"
	"github.com/chris12pannapara-hub/client-portal/internal/config"
	"github.com/chris12pannapara-hub/client-portal/internal/event"
	handler "github.com/chris12pannapara-hub/client-portal/internal/handler/http"
	"github.com/chris12pannapara-hub/client-portal/internal/repository/postgres"
	"github.com/chris12pannapara-hub/client-portal/internal/service"
	"github.com/chris12pannapara-hub/client-portal/migrations"
	"github.com/chris12pannapara-hub/client-portal/pkg/database"
	"github.com/chris12pannapara-hub/client-portal/pkg/health"
	"github.com/chris12pannapara-hub/client-portal/pkg/kafka"
	"github.com/chris12pannapara-hub/client-portal/pkg/middleware"
	"github.com/chris12pannapara-hub/client-portal/pkg/tracing"
	"github.com/jackc/pgx/v5/pgxpool"
)

// App wires the portal service together and owns its lifecycle.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	pool     *pgxpool.Pool
	server   *http.Server
	recorder *audit.Recorder
	producer *kafka.Producer
	consumer *kafka.Consumer

	shutdownTracing func(context.Context) error
}

// New builds the application: database, migrations, repositories, services,
// handlers, and the optional Kafka and tracing integrations.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	pool, err := database.NewPostgresPool(ctx, database.PostgresConfig{
		DSN:      cfg.Database.DSN,
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	a.pool = pool

	if err := database.Migrate(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	if cfg.Tracing.Enabled {
		shutdown, err := tracing.Init(ctx, cfg.ServiceName, cfg.Tracing.Endpoint)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("init tracing: %w", err)
		}
		a.shutdownTracing = shutdown
	}

	userRepo := postgres.NewUserRepository(pool)
	sessionRepo := postgres.NewSessionRepository(pool)
	auditRepo := postgres.NewAuditRepository(pool)
	notificationRepo := postgres.NewNotificationRepository(pool)

	a.recorder = audit.NewRecorder(auditRepo, logger)

	var publisher service.EventPublisher
	if cfg.Kafka.Enabled {
		a.producer = kafka.NewProducer(cfg.Kafka.Brokers, kafka.TopicAuth, logger)
		publisher = a.producer
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL, cfg.Auth.Issuer)

	authSvc := service.NewAuthService(userRepo, sessionRepo, tokens, a.recorder, publisher, logger,
		service.AuthConfig{
			LockoutThreshold: cfg.Auth.LockoutThreshold,
			LockoutCooldown:  cfg.Auth.LockoutCooldown,
			RefreshTTL:       cfg.Auth.RefreshTokenTTL,
		})
	userSvc := service.NewUserService(userRepo, sessionRepo, a.recorder, publisher, logger)
	notificationSvc := service.NewNotificationService(notificationRepo)

	if cfg.Kafka.Enabled {
		eventHandler := event.NewHandler(notificationSvc, logger)
		a.consumer = kafka.NewConsumer(cfg.Kafka.Brokers, kafka.TopicAuth, cfg.Kafka.GroupID,
			eventHandler.Handle, logger)
	}

	healthHandler := health.NewHandler()
	healthHandler.Register("postgres", pool.Ping)

	router := handler.NewRouter(handler.RouterConfig{
		Auth:          handler.NewAuthHandler(authSvc),
		Users:         handler.NewUserHandler(userSvc),
		Notifications: handler.NewNotificationHandler(notificationSvc),
		Admin:         handler.NewAdminHandler(auditRepo),
		Health:        healthHandler,
		TokenValidator: func(token string) (*middleware.Claims, error) {
			claims, err := tokens.VerifyAccessToken(token)
			if err != nil {
				return nil, err
			}
			return &middleware.Claims{UserID: claims.Subject, Role: claims.Role}, nil
		},
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Logger:         logger,
		ServiceName:    cfg.ServiceName,
	})

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return a, nil
}

// Run serves until the context is cancelled, then shuts everything down in
// dependency order: HTTP first so no new work arrives, then the consumer,
// the audit queue, the producer, and finally the pool.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		a.logger.Info("http server listening", slog.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	consumerCtx, cancelConsumer := context.WithCancel(ctx)
	defer cancelConsumer()
	if a.consumer != nil {
		go func() {
			if err := a.consumer.Run(consumerCtx); err != nil {
				errCh <- fmt.Errorf("kafka consumer: %w", err)
			}
		}()
	}

	go database.CollectPoolMetrics(ctx, a.pool, a.cfg.ServiceName)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		a.shutdown(context.Background())
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	a.shutdown(shutdownCtx)

	return nil
}

func (a *App) shutdown(ctx context.Context) {
	a.logger.Info("shutting down")

	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Error("http shutdown failed", slog.String("error", err.Error()))
	}

	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			a.logger.Error("consumer close failed", slog.String("error", err.Error()))
		}
	}

	a.recorder.Close()

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("producer close failed", slog.String("error", err.Error()))
		}
	}

	if a.shutdownTracing != nil {
		traceCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.shutdownTracing(traceCtx); err != nil {
			a.logger.Error("tracing shutdown failed", slog.String("error", err.Error()))
		}
	}

	a.pool.Close()
	a.logger.Info("shutdown complete")
}
