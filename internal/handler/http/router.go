package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chris12pannapara-hub/client-portal/internal/domain"
	"github.com/chris12pannapara-hub/client-portal/pkg/health"
	"github.com/chris12pannapara-hub/client-portal/pkg/middleware"
)

// RouterConfig collects the handlers and middleware inputs for the portal
// HTTP surface.
type RouterConfig struct {
	Auth          *AuthHandler
	Users         *UserHandler
	Notifications *NotificationHandler
	Admin         *AdminHandler
	Health        *health.Handler

	TokenValidator middleware.TokenValidator
	AllowedOrigins []string
	Logger         *slog.Logger
	ServiceName    string
}

// NewRouter builds the chi router with the shared middleware chain. Login
// and refresh are public; everything else under /api/v1 requires a valid
// access token.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestLogging(cfg.Logger))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))

	r.Get("/healthz", cfg.Health.Live)
	r.Get("/readyz", cfg.Health.Ready)
	r.Handle("/metrics", promhttp.Handler())

	requireAuth := middleware.Auth(cfg.TokenValidator)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", cfg.Auth.Login)
			r.Post("/refresh", cfg.Auth.Refresh)
			r.With(requireAuth).Post("/logout", cfg.Auth.Logout)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Route("/users/me", func(r chi.Router) {
				r.Get("/", cfg.Users.GetMe)
				r.Patch("/", cfg.Users.UpdateMe)
				r.Post("/change-password", cfg.Auth.ChangePassword)
				r.Get("/sessions", cfg.Users.ListSessions)
				r.Delete("/sessions/{sessionID}", cfg.Users.RevokeSession)
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", cfg.Notifications.List)
				r.Post("/{notificationID}/read", cfg.Notifications.MarkRead)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireRole(string(domain.RoleAdmin)))
				r.Get("/audit-log", cfg.Admin.ListAuditLog)
			})
		})
	})

	return r
}
