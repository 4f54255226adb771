package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"taxonomy/internal/cache"
	"taxonomy/internal/config"
	"taxonomy/internal/database"
	"taxonomy/internal/handlers"
	"taxonomy/internal/hierarchy"
	"taxonomy/internal/metrics"
	"taxonomy/internal/middleware"
	"taxonomy/internal/router"
	"taxonomy/internal/store"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := setup(root)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	pool, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	// Valkey backs the tree cache and the shared rate limiter. The service
	// works without it, reading every tree from PostgreSQL.
	var valkey *redis.Client
	if addr := cfg.ValkeyAddr(); addr != "" {
		valkey, err = cache.ConnectValkey(ctx, addr, cfg.Valkey.Password, cfg.Valkey.DB)
		if err != nil {
			return fmt.Errorf("connect valkey: %w", err)
		}
		defer valkey.Close()
	} else {
		slog.Warn("valkey disabled, tree cache off and rate limits are per instance")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	svcCfg := hierarchy.ServiceConfig{
		Repo:    store.NewNodeStore(pool),
		Tx:      store.NewTransactor(pool),
		Metrics: metrics.New(reg),
		Logger:  slog.Default(),
	}
	if valkey != nil && cfg.TreeCacheTTL > 0 {
		svcCfg.Cache = cache.NewTreeCache(valkey, cfg.TreeCacheTTL)
	}
	svc := hierarchy.NewService(svcCfg)

	if cfg.IsDev() && cfg.AutoSeed {
		if err := database.Seed(ctx, pool, svc); err != nil {
			return fmt.Errorf("seed database: %w", err)
		}
	}

	var limiter middleware.Limiter
	if cfg.RateLimit.Enabled {
		if valkey != nil {
			limiter = middleware.NewValkeyLimiter(valkey, cfg.RateLimit.Requests, cfg.RateLimit.Window)
		} else {
			mem := middleware.NewMemoryLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
			defer mem.Stop()
			limiter = mem
		}
	}

	r := router.New(router.Deps{
		Nodes:      handlers.NewNodes(svc, slog.Default()),
		Storefront: handlers.NewStorefront(svc, slog.Default()),
		Limiter:    limiter,
		Gatherer:   reg,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Graceful shutdown: wait for SIGINT or SIGTERM, then drain connections.
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}
