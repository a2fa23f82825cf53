// Package main is the entrypoint for a SeqDispatch consumer worker.
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

	"github.com/nucleohub/seqdispatch/internal/config"
	"github.com/nucleohub/seqdispatch/internal/consumer"
	"github.com/nucleohub/seqdispatch/internal/registry"
	"github.com/nucleohub/seqdispatch/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("consumer failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConsumer()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "host", cfg.Host, "port", cfg.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	pgStore := store.NewPostgresStore(pool)
	reg := registry.New(pgStore)
	runner := consumer.NewExecRunner(cfg.Tool)

	worker := consumer.New(pgStore, reg, runner, consumer.NoopParser{}, cfg.Host, cfg.Port)

	// Self-registration: an upsert, so restarting after a crash resets
	// any stale busy state.
	if err := worker.Register(ctx); err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}
	slog.Info("registered as available consumer")

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      worker.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("consumer listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	// Let the in-flight search finish writing its results, but never past
	// the shutdown deadline. An abandoned unit is reclaimed by the
	// producer's reconcile pass.
	if !worker.Drain(shutdownCtx) {
		slog.Warn("shutdown deadline reached, abandoning in-flight search")
	}

	slog.Info("consumer stopped gracefully")
	return nil
}
