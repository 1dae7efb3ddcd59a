package config

import (
	"fmt"
	"time"

	"github.com/chris12pannapara-hub/client-portal/pkg/config"
)

// Config is the portal service configuration, loaded from the environment.
type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"portal"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	HTTP     HTTPConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Kafka    KafkaConfig
	Tracing  TracingConfig
}

type HTTPConfig struct {
	Port            int           `env:"HTTP_PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"15s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"15s"`
	AllowedOrigins  []string      `env:"HTTP_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
}

type DatabaseConfig struct {
	DSN      string `env:"DATABASE_DSN,required"`
	MaxConns int32  `env:"DATABASE_MAX_CONNS" envDefault:"10"`
	MinConns int32  `env:"DATABASE_MIN_CONNS" envDefault:"2"`
}

type AuthConfig struct {
	JWTSecret        string        `env:"JWT_SECRET,required"`
	AccessTokenTTL   time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTokenTTL  time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h"`
	LockoutThreshold int           `env:"LOCKOUT_THRESHOLD" envDefault:"5"`
	LockoutCooldown  time.Duration `env:"LOCKOUT_COOLDOWN" envDefault:"15m"`
	Issuer           string        `env:"JWT_ISSUER" envDefault:"client-portal"`
}

type KafkaConfig struct {
	Enabled bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	Brokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	GroupID string   `env:"KAFKA_GROUP_ID" envDefault:"portal-notifications"`
}

type TracingConfig struct {
	Enabled  bool   `env:"TRACING_ENABLED" envDefault:"false"`
	Endpoint string `env:"TRACING_ENDPOINT" envDefault:"localhost:4318"`
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := config.Load(cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if len(cfg.Auth.JWTSecret) < 32 {
		return nil, fmt.Errorf("JWT_SECRET must be at least 32 bytes")
	}
	if cfg.Auth.LockoutThreshold < 1 {
		return nil, fmt.Errorf("LOCKOUT_THRESHOLD must be positive")
	}

	return cfg, nil
}
