package gateway

import (
	"fmt"
	"time"

	"github.com/chris12pannapara-hub/client-portal/pkg/config"
)

// Config is the gateway configuration, loaded from the environment.
type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"portal-gateway"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	Port            int           `env:"HTTP_PORT" envDefault:"8000"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"15s"`

	UpstreamURL string `env:"UPSTREAM_URL,required"`

	JWTSecret string `env:"JWT_SECRET,required"`
	Issuer    string `env:"JWT_ISSUER" envDefault:"client-portal"`

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"40"`

	AllowedOrigins []string `env:"HTTP_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
}

// LoadConfig reads the gateway configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := config.Load(cfg); err != nil {
		return nil, fmt.Errorf("load gateway config: %w", err)
	}
	if len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("JWT_SECRET must be at least 32 bytes")
	}
	return cfg, nil
}
