// Command seed creates the initial admin account. It is idempotent: an
// existing account with the same email is left untouched.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/chris12pannapara-hub/client-portal/internal/config"
	"github.com/chris12pannapara-hub/client-portal/migrations"
	"github.com/chris12pannapara-hub/client-portal/pkg/database"
	"github.com/chris12pannapara-hub/client-portal/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log := logger.New("portal-seed", cfg.LogLevel)

	email := envOr("SEED_ADMIN_EMAIL", "admin@example.com")
	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if password == "" {
		log.Error("SEED_ADMIN_PASSWORD is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, database.PostgresConfig{DSN: cfg.Database.DSN})
	if err != nil {
		log.Error("failed to connect", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, migrations.FS, log); err != nil {
		log.Error("failed to migrate", slog.String("error", err.Error()))
		os.Exit(1)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to hash password", slog.String("error", err.Error()))
		os.Exit(1)
	}

	tag, err := pool.Exec(ctx, `
		INSERT INTO users (id, email, username, password_hash, first_name, last_name, role, is_active)
		VALUES ($1, $2, $3, $4, 'Portal', 'Admin', 'admin', TRUE)
		ON CONFLICT (email) DO NOTHING`,
		uuid.New(), email, envOr("SEED_ADMIN_USERNAME", "admin"), string(hash),
	)
	if err != nil {
		log.Error("failed to seed admin", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if tag.RowsAffected() == 0 {
		log.Info("admin account already exists", slog.String("email", email))
	} else {
		log.Info("admin account created", slog.String("email", email))
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
