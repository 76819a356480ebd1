// RiskDesk - fraud analyst workstation on top of an external scoring model.

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

	"github.com/opensource-finance/riskdesk/internal/api"
	"github.com/opensource-finance/riskdesk/internal/audit"
	"github.com/opensource-finance/riskdesk/internal/bus"
	"github.com/opensource-finance/riskdesk/internal/cache"
	"github.com/opensource-finance/riskdesk/internal/config"
	"github.com/opensource-finance/riskdesk/internal/decision"
	"github.com/opensource-finance/riskdesk/internal/domain"
	"github.com/opensource-finance/riskdesk/internal/feed"
	"github.com/opensource-finance/riskdesk/internal/repository"
	"github.com/opensource-finance/riskdesk/internal/scoring"
	"github.com/opensource-finance/riskdesk/internal/simulation"
	"github.com/opensource-finance/riskdesk/internal/traces"
	"github.com/opensource-finance/riskdesk/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := config.NewLogger(cfg.Logging, os.Stdout)
	slog.SetDefault(logger)

	slog.Info("starting riskdesk",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"scoring", cfg.Scoring.BaseURL,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	shutdownTracing, err := traces.Init(ctx, cfg.Tracing, Version, logger)
	if err != nil {
		slog.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Scoring service client
	scoringClient := scoring.NewClientFromConfig(cfg.Scoring)
	if err := scoringClient.Health(ctx); err != nil {
		// Not fatal: the feed falls back to snapshots until the service is back
		slog.Warn("scoring service unreachable at startup", "url", cfg.Scoring.BaseURL, "error", err)
	}

	engine := decision.NewEngineFromConfig(cfg.Decision)
	slog.Info("decision engine initialized",
		"default_threshold", engine.DefaultThreshold,
		"audit_threshold", engine.AuditThreshold,
		"references", len(engine.References),
	)

	feedSvc := feed.NewService(scoringClient, cacheImpl, cfg.Feed)
	auditBuilder := audit.NewBuilder(engine, scoringClient, cacheImpl, repo, cfg.Feed.SnapshotTTL)

	store := simulation.NewStore(engine.DefaultThreshold)
	defer store.Close()
	orchestrator := simulation.NewOrchestrator(store, scoringClient, engine, busImpl,
		time.Duration(cfg.Scoring.PhaseTimeout)*time.Second)

	// Recorder persists finished simulations from the bus
	recorder := worker.NewWorker(busImpl, repo)
	if err := recorder.Start(worker.Config{}); err != nil {
		slog.Error("failed to start simulation recorder", "error", err)
		os.Exit(1)
	}
	slog.Info("simulation recorder started", "topics", recorder.GetStats().Topics)

	srv := api.NewServer(cfg.Server, api.Deps{
		Repo:         repo,
		Cache:        cacheImpl,
		Bus:          busImpl,
		Scoring:      scoringClient,
		Feed:         feedSvc,
		Audit:        auditBuilder,
		Orchestrator: orchestrator,
	}, Version)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("riskdesk is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// After the server, so events from the last requests are drained and saved
	if err := recorder.Stop(); err != nil {
		slog.Error("failed to stop simulation recorder", "error", err)
	}

	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Error("failed to flush traces", "error", err)
	}

	slog.Info("riskdesk shutdown complete")
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  +-------------------------------------------+")
	fmt.Println("  |                 RISKDESK                  |")
	fmt.Println("  |       Fraud Analyst Workstation           |")
	fmt.Println("  +-------------------------------------------+")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("  Scoring:  %s\n", cfg.Scoring.BaseURL)
	fmt.Println()
	fmt.Println("  Endpoints (X-Analyst-ID required under /api):")
	fmt.Println("    GET  /api/feed                      - Scored feed, riskiest first")
	fmt.Println("    GET  /api/feed/{id}/audit           - Audit view of a transaction")
	fmt.Println("    POST /api/feed/{id}/explain         - Explain a transaction")
	fmt.Println("    GET  /api/model/metrics             - Model health")
	fmt.Println("    POST /api/sessions                  - Open a simulator session")
	fmt.Println("    PUT  /api/sessions/{id}/threshold   - Set the session threshold")
	fmt.Println("    PUT  /api/sessions/{id}/selection   - Select a feed transaction")
	fmt.Println("    POST /api/sessions/{id}/simulations - Run a what-if simulation")
	fmt.Println("    GET  /api/simulations               - Simulation audit log")
	fmt.Println("    GET  /health                        - Health check")
	fmt.Println("    GET  /metrics                       - Prometheus metrics")
	fmt.Println()
}
