// Kestrel - Credit decisions you can read, audit, and change at runtime.
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
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/decision"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/ranges"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/scoring"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// DefaultTenantID scopes the configuration loaded at startup. Requests carry
// their own tenant via X-Tenant-ID.
const DefaultTenantID = "default"

func main() {
	// Optional .env for local development; real deployments set env directly
	_ = godotenv.Load()

	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("KESTREL_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	applyEnvOverrides(cfg)

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
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

	tenantID := os.Getenv("KESTREL_TENANT")
	if tenantID == "" {
		tenantID = DefaultTenantID
	}

	// Initialize Scoring Engine
	scorer := scoring.NewEngine()
	if factors, err := repo.ListScoringFactors(ctx, tenantID, true); err != nil {
		slog.Warn("failed to list scoring factors, starting empty", "error", err)
	} else {
		scorer.LoadFactors(factors)
	}
	slog.Info("scoring engine initialized", "factor_count", scorer.FactorCount())

	// Initialize Score Range Interpreter
	interpreter := ranges.NewInterpreter()
	if rangeCfgs, err := repo.ListScoreRanges(ctx, tenantID, true); err != nil {
		slog.Warn("failed to list score ranges, starting empty", "error", err)
	} else {
		interpreter.LoadRanges(rangeCfgs)
	}
	slog.Info("range interpreter initialized", "range_count", interpreter.RangeCount())

	// Initialize Rule Engine
	ruleEngine, err := rules.NewEngine()
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}
	if ruleCfgs, err := repo.ListRules(ctx, tenantID, true); err != nil {
		slog.Warn("failed to list rules, starting empty", "error", err)
	} else if err := ruleEngine.LoadRules(ruleCfgs); err != nil {
		slog.Error("failed to load rules", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engine initialized", "rules_count", ruleEngine.RulesCount())

	// Initialize Decision Processor
	processor := decision.NewProcessor(scorer, interpreter, ruleEngine)
	slog.Info("decision processor initialized", "engine_version", decision.EngineVersion)

	// Start the async audit writer so every /predict leaves a durable trail.
	// Without an explicit KESTREL_TENANTS list it subscribes the wildcard, so
	// decisions for a tenant first seen at request time are still persisted.
	auditWriter := worker.NewAuditWriter(busImpl, repo)
	tenantIDs := []string{domain.TenantWildcard}
	if envTenants := os.Getenv("KESTREL_TENANTS"); envTenants != "" {
		tenantIDs = strings.Split(envTenants, ",")
	}
	if err := auditWriter.Start(worker.Config{TenantIDs: tenantIDs}); err != nil {
		slog.Error("failed to start audit writer", "error", err)
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, scorer, interpreter, ruleEngine, processor, Version, cfg.RateLimit)

	// Start Server in goroutine
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

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop audit writer first so in-flight events drain
	if err := auditWriter.Stop(); err != nil {
		slog.Error("failed to stop audit writer", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// applyEnvOverrides layers KESTREL_* environment settings over the tier
// defaults.
func applyEnvOverrides(cfg *domain.Config) {
	if v := os.Getenv("KESTREL_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("KESTREL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("KESTREL_SQLITE_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("KESTREL_POSTGRES_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v := os.Getenv("KESTREL_POSTGRES_USER"); v != "" {
		cfg.Repository.PostgresUser = v
	}
	if v := os.Getenv("KESTREL_POSTGRES_PASSWORD"); v != "" {
		cfg.Repository.PostgresPassword = v
	}
	if v := os.Getenv("KESTREL_POSTGRES_DB"); v != "" {
		cfg.Repository.PostgresDB = v
	}
	if v := os.Getenv("KESTREL_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("KESTREL_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv("KESTREL_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.MaxPerMin = n
			cfg.RateLimit.Enabled = n > 0
		}
	}
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ==============================================")
	fmt.Println("                  KESTREL")
	fmt.Println("          Credit Decision Engine")
	fmt.Println("       Every decision, explained.")
	fmt.Println("  ==============================================")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /predict                - Evaluate an applicant")
	fmt.Println("    GET  /decisions/{id}         - Get decision by ID")
	fmt.Println("    GET  /rules                  - List rules")
	fmt.Println("    POST /rules                  - Create a rule")
	fmt.Println("    POST /rules/execute          - Run rules standalone")
	fmt.Println("    POST /rules/reload           - Hot-reload rules")
	fmt.Println("    GET  /score-range            - List score ranges")
	fmt.Println("    GET  /score-range/validate   - Check overlaps and gaps")
	fmt.Println("    POST /score-range/seed       - Install default tiers")
	fmt.Println("    GET  /scoring-config         - List scoring factors")
	fmt.Println("    POST /scoring-config/seed    - Install default factors")
	fmt.Println("    GET  /health                 - Health check")
	fmt.Println()
}
