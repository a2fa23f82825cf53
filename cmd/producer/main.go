// Package main is the entrypoint for the SeqDispatch producer: the HTTP
// API plus the scheduler loop.
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

	"github.com/nucleohub/seqdispatch/internal/api"
	"github.com/nucleohub/seqdispatch/internal/api/handler"
	mw "github.com/nucleohub/seqdispatch/internal/api/middleware"
	"github.com/nucleohub/seqdispatch/internal/api/response"
	"github.com/nucleohub/seqdispatch/internal/cache"
	"github.com/nucleohub/seqdispatch/internal/config"
	"github.com/nucleohub/seqdispatch/internal/delegate"
	"github.com/nucleohub/seqdispatch/internal/jobs"
	"github.com/nucleohub/seqdispatch/internal/registry"
	"github.com/nucleohub/seqdispatch/internal/scheduler"
	"github.com/nucleohub/seqdispatch/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("producer failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, failing fast when it is invalid
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "databases", len(cfg.Search.Databases))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create cache (optional)
	var c cache.Cache = cache.Noop{}
	if cfg.Redis.URL != "" {
		redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("create redis cache: %w", err)
		}
		defer redisCache.Close()
		if err := redisCache.Ping(ctx); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		c = redisCache
		slog.Info("redis connected")
	} else {
		slog.Info("redis not configured, running without cache")
	}

	// 5. Wire the core: store, registry, delegation client, scheduler
	pgStore := store.NewPostgresStore(pool)
	reg := registry.New(pgStore)
	client := delegate.NewClient(pgStore, reg, cfg.Delegation.Timeout)
	sched := scheduler.New(pgStore, reg, client, cfg.Scheduler.Interval)
	jobService := jobs.NewService(pgStore, cfg.Search)

	// 6. Start the scheduler loop in the background
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		sched.Run(ctx)
	}()

	// 7. Build router with dependencies
	deps := api.Dependencies{
		AdminAuth: mw.NewAdminAuth(cfg.Admin.TokenHash),
		RateLimit: mw.NewRateLimit(c, 30),

		HealthHandler:  healthHandler(pgStore, c),
		SubmitHandler:  handler.NewSubmitHandler(jobService),
		StatusHandler:  handler.NewStatusHandler(jobService, c),
		ResultsHandler: handler.NewResultsHandler(jobService),
		PurgeHandler:   handler.NewPurgeHandler(jobService, c),
	}
	router := api.NewRouter(deps)

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("producer listening", "addr", addr)
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

	// Graceful shutdown: stop accepting requests, then await the
	// scheduler's in-flight tick.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	select {
	case <-schedDone:
	case <-shutdownCtx.Done():
		slog.Warn("scheduler did not stop before shutdown deadline")
	}

	slog.Info("producer stopped gracefully")
	return nil
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		if checks["database"] != "ok" || checks["cache"] != "ok" {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
