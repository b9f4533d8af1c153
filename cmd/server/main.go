// Package main provides the entry point for the media generation API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pdtx/mediagen-api/internal/bootstrap"
	"github.com/pdtx/mediagen-api/internal/config"
	"github.com/pdtx/mediagen-api/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Create structured logger
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting media generation API",
		slog.Int("port", cfg.Port),
		slog.String("redis_addr", cfg.RedisAddr),
		slog.String("log_format", cfg.LogFormat),
		slog.String("log_level", cfg.LogLevel),
		slog.Duration("long_poll_timeout", cfg.LongPollTimeout),
		slog.Duration("keep_alive_interval", cfg.KeepAliveInterval),
	)

	// Initialize dependencies using bootstrap
	deps, err := bootstrap.NewServerDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}
	defer deps.Redis.Close()

	// Background loops: keep-alive broadcast and the Redis event relay.
	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()
	go deps.Hub.Run(bgCtx)
	go func() {
		if err := deps.Relay.Run(bgCtx); err != nil && bgCtx.Err() == nil {
			logger.Error("event relay stopped", slog.String("error", err.Error()))
		}
	}()

	router := server.NewRouter(deps.Service, deps.Hub, deps.Gateway, logger, server.DefaultConfig())

	// Create HTTP server. WriteTimeout stays zero so long-lived event
	// streams are not cut off mid-connection.
	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Graceful shutdown handling
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening",
			slog.String("addr", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-shutdownCh:
		logger.Info("received shutdown signal",
			slog.String("signal", sig.String()),
		)
	case err := <-errCh:
		return err
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("shutting down server...")
	stopBackground()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}
