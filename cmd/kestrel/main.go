// Kestrel - Explainable risk scoring for online profiles.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/kestrel/internal/analyzer"
	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/config"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/observability"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	config.LoadEnv()

	configPath := os.Getenv("KESTREL_CONFIG")
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	observability.InitLogger(os.Stdout, cfg.Logging, os.Getenv("KESTREL_DEBUG") == "true")
	metrics := observability.NewMetrics()

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"estimator", cfg.Engine.Estimator,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Corpus repository is optional; "none" keeps corpora in memory.
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	if repo != nil {
		defer repo.Close()
		slog.Info("repository initialized", "driver", cfg.Repository.Driver)
	}

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	build := func(ctx context.Context, engine domain.EngineConfig) (*analyzer.Analyzer, error) {
		return analyzer.New(ctx, engine,
			analyzer.WithCorpusRepository(repo),
			analyzer.WithMetrics(metrics),
		)
	}

	a, err := build(ctx, cfg.Engine)
	if err != nil {
		slog.Error("failed to build analyzer", "error", err)
		os.Exit(1)
	}
	holder := analyzer.NewHolder(a)

	// Reload re-reads the configuration so estimator changes apply without a restart.
	rebuild := func(ctx context.Context) (*analyzer.Analyzer, error) {
		next, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		return build(ctx, next.Engine)
	}

	var asyncWorker *worker.Worker
	if cfg.Worker.Enabled {
		asyncWorker = worker.NewWorker(busImpl, holder, cacheImpl, metrics, cfg.Worker)
		if err := asyncWorker.Start(); err != nil {
			slog.Error("failed to start async worker", "error", err)
			asyncWorker = nil
		}
	}

	srv := api.NewServer(cfg, api.Dependencies{
		Analyzers: holder,
		Rebuild:   rebuild,
		Corpora:   repo,
		Cache:     cacheImpl,
		Bus:       busImpl,
		Worker:    asyncWorker,
		Metrics:   metrics,
		Version:   Version,
	})

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               KESTREL                     ║")
	fmt.Println("  ║      Suspicious Profile Analyzer          ║")
	fmt.Println("  ║    Every score comes with a reason.       ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:   %s\n", version)
	fmt.Printf("  Tier:      %s\n", cfg.Tier)
	fmt.Printf("  Estimator: %s\n", cfg.Engine.Estimator)
	fmt.Printf("  Server:    http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /analyze-profile            - Score a profile")
	fmt.Println("    POST /analyze-profile/async      - Queue a profile for scoring")
	fmt.Println("    GET  /analyze-profile/async/{id} - Fetch a queued result")
	fmt.Println("    GET  /demo-data                  - Sample profiles")
	fmt.Println("    GET  /model                      - Active estimator details")
	fmt.Println("    POST /reload                     - Rebuild the analyzer")
	fmt.Println("    GET  /health                     - Health check")
	if cfg.Metrics.Enabled {
		fmt.Printf("    GET  %-28s - Prometheus metrics\n", cfg.Metrics.Path)
	}
	fmt.Println()
}
