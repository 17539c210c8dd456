package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bezhai/inner-bot-server-sub001/internal/api"
	"github.com/bezhai/inner-bot-server-sub001/internal/app"
	"github.com/bezhai/inner-bot-server-sub001/internal/audit"
	"github.com/bezhai/inner-bot-server-sub001/internal/config"
	"github.com/bezhai/inner-bot-server-sub001/internal/ratelimit"
	"github.com/bezhai/inner-bot-server-sub001/internal/store"
	"github.com/bezhai/inner-bot-server-sub001/internal/telemetry"
)

var version = "dev"

func main() {
	configDir := flag.String("config", "configs", "path to configuration directory")
	flag.Parse()

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// Load configuration
	loader := config.NewLoader(*configDir, logger)
	if err := loader.Load(); err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := loader.Watch(); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	}
	defer loader.Close()

	cfg := loader.Config()
	level.Set(parseLevel(cfg.Telemetry.LogLevel))
	if strings.EqualFold(cfg.Telemetry.LogFormat, "text") {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		}))
		slog.SetDefault(logger)
	}

	// Connect to PostgreSQL
	dbPool, err := store.OpenPool(context.Background(), cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(context.Background()); err != nil {
		logger.Warn("database not reachable (banned words fail open, audit writes will fail)", "error", err)
	} else {
		logger.Info("database connected")
	}

	// Connect to Redis
	rdb := store.NewRedis(cfg.Redis)
	if rdb != nil {
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis not reachable (banned words read from database)", "error", err)
			rdb.Close()
			rdb = nil
		} else {
			logger.Info("redis connected")
			defer rdb.Close()
		}
	}

	metrics := telemetry.NewMetrics()
	words := store.NewCachedWordStore(dbPool, rdb)
	auditWriter := audit.NewWriter(dbPool, func() config.AuditConfig { return loader.Config().Audit }, 0)
	defer auditWriter.Close()

	g, err := app.Build(loader, app.Options{
		Words:   words,
		Auditor: auditWriter,
		Metrics: metrics,
	})
	if err != nil {
		logger.Error("failed to build gate", "error", err)
		os.Exit(1)
	}
	defer g.Close()

	loader.OnReload(func() {
		level.Set(parseLevel(loader.Config().Telemetry.LogLevel))
		if err := g.Reload(); err != nil {
			logger.Error("gate reload failed, keeping previous state", "error", err)
			return
		}
		logger.Info("gate reloaded")
	})

	handler := api.NewHandler(g.Orchestrator, g.Tables, g.ProviderHealth, version)
	limit := ratelimit.Middleware(
		ratelimit.NewLimiter(rdb),
		func() config.RateLimitConfig { return loader.Config().RateLimit },
		metrics,
	)
	r := api.NewRouter(handler, promhttp.Handler(), cfg.Telemetry.MetricsPath, limit)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("gate starting", "addr", addr, "version", version)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("gate stopped")
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
