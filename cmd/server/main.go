package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/opensensor/sensorcache/internal/config"
	"github.com/opensensor/sensorcache/internal/errorreporting"
	"github.com/opensensor/sensorcache/internal/logger"
	"github.com/opensensor/sensorcache/internal/secrets"
	"github.com/opensensor/sensorcache/internal/server"
	"github.com/opensensor/sensorcache/internal/tracing"
)

func main() {
	// .env is a dev convenience; system env is authoritative
	_ = godotenv.Load()

	cfg := config.Load()
	logger.Init(cfg.LogLevel)
	log := logger.Get()

	if err := secrets.ValidateRequired(map[string]string{
		"MONGODB_URI": cfg.MongoURI,
	}); err != nil {
		log.Error("Configuration invalid", "error", err)
		os.Exit(1)
	}

	if err := errorreporting.Init(cfg.SentryEnvironment); err != nil {
		log.Warn("Sentry init failed, continuing without error reporting", "error", err)
	}

	shutdownTracing, err := tracing.Init("sensorcache")
	if err != nil {
		log.Warn("Tracing init failed, continuing without traces", "error", err)
		shutdownTracing = func(context.Context) error { return nil }
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, err := server.New(ctx, cfg)
	if err != nil {
		log.Error("Failed to initialize server", "error", err)
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			log.Error("Server failed", "error", err)
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Shutdown error", "error", err)
	}
	shutdownTracing(shutdownCtx)
	errorreporting.Flush(2 * time.Second)
	log.Info("Server stopped")
}
