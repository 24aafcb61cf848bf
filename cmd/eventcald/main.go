// Command eventcald serves the recurring-event occurrence engine over HTTP.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zemetia/eventcal/internal/config"
	"github.com/zemetia/eventcal/recurrence"
	"github.com/zemetia/eventcal/schedule"
	"github.com/zemetia/eventcal/server"
	"github.com/zemetia/eventcal/storage"
	"github.com/zemetia/eventcal/storage/memory"
	"github.com/zemetia/eventcal/storage/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store storage.Store
	switch cfg.StoreBackend {
	case "postgres":
		pg, err := postgres.New(ctx, cfg.PostgresDSN)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			logger.Error("failed to migrate schema", "error", err)
			os.Exit(1)
		}
		store = pg
	default:
		store = memory.New()
	}

	expandOpts := recurrence.Options{MaxIterations: cfg.MaxIterations}

	var cache *schedule.ExpansionCache
	if cfg.CacheEnabled {
		cacheCfg := schedule.DefaultCacheConfig
		cacheCfg.TTL = cfg.CacheTTL
		cache = schedule.NewExpansionCache(cacheCfg)
		defer cache.Close()
	}

	query := schedule.NewQueryService(store, expandOpts, cache, logger)
	splitter := schedule.NewSplitter(store, expandOpts, logger)

	srv, err := server.New(store, query, splitter, logger)
	if err != nil {
		logger.Error("failed to build server", "error", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("eventcald listening",
		"addr", cfg.ListenAddr,
		"backend", cfg.StoreBackend,
		"cache", cfg.CacheEnabled)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}
