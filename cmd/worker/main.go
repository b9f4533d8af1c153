// Package main provides the entry point for the media generation worker.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pdtx/mediagen-api/internal/bootstrap"
	"github.com/pdtx/mediagen-api/internal/config"
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

	logger.Info("starting media generation worker",
		slog.String("redis_addr", cfg.RedisAddr),
		slog.Int("worker_count", cfg.WorkerCount),
		slog.Duration("poll_interval", cfg.WorkerPollInterval),
		slog.Duration("visibility_timeout", cfg.QueueVisibilityTimeout),
		slog.Bool("s3_enabled", cfg.S3Enabled()),
	)

	// Initialize dependencies using bootstrap
	deps, err := bootstrap.NewWorkerDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}
	defer deps.Redis.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Blocks until the context is cancelled and every worker drains.
	deps.Executor.Run(ctx)

	logger.Info("worker stopped gracefully")
	return nil
}
