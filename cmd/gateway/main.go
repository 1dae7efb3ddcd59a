package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/chris12pannapara-hub/client-portal/internal/gateway"
	"github.com/chris12pannapara-hub/client-portal/pkg/logger"
)

func main() {
	cfg, err := gateway.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log := logger.New(cfg.ServiceName, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := gateway.New(cfg, log)
	if err != nil {
		log.Error("failed to build gateway", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		log.Error("gateway exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
