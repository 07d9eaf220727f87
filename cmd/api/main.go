package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/CandleNFT/forge/internal/api"
	"github.com/CandleNFT/forge/internal/archive"
	"github.com/CandleNFT/forge/internal/config"
	"github.com/CandleNFT/forge/internal/orchestrator"
	"github.com/CandleNFT/forge/internal/ratelimit"
	"github.com/CandleNFT/forge/internal/store"
)

func main() {
	cfg := config.Load()
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	opts := []orchestrator.Option{orchestrator.WithLogger(logger)}

	if cfg.PostgresDSN != "" {
		audit, err := store.NewAuditLog(ctx, cfg.PostgresDSN)
		if err != nil {
			logger.Error("connect postgres", "error", err)
			os.Exit(1)
		}
		defer audit.Close()
		if err := audit.RunMigrations(ctx); err != nil {
			logger.Error("migrations", "error", err)
			os.Exit(1)
		}
		opts = append(opts, orchestrator.WithAuditSink(audit))
	}

	reports, err := archive.New(ctx, cfg)
	if err != nil {
		logger.Error("init report archive", "error", err)
		os.Exit(1)
	}
	if reports != nil {
		opts = append(opts, orchestrator.WithArchiver(reports))
	}

	builds, err := orchestrator.New(cfg, opts...)
	if err != nil {
		logger.Error("init orchestrator", "error", err)
		os.Exit(1)
	}

	limiter := ratelimit.FromConfig(cfg)
	if limiter != nil {
		defer limiter.Close()
	}

	server := api.New(builds, limiter, logger)
	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("api listening",
		"addr", httpServer.Addr,
		"gateway", cfg.GatewayConfigured(),
		"poll_interval", cfg.PollInterval.String(),
		"build_timeout", cfg.BuildTimeout.String(),
		"rate_limit", limiter != nil,
		"audit", cfg.PostgresDSN != "",
		"reports", reports != nil,
	)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
	builds.Close()
	logger.Info("api stopped")
}

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Env == "dev" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
