// Package main is the entry point for the pharmastock API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"pharmastock/internal/domain/auth"
	"pharmastock/internal/domain/movement"
	"pharmastock/internal/infrastructure/config"
	v1 "pharmastock/internal/infrastructure/http/v1"
	"pharmastock/internal/infrastructure/numerator"
	"pharmastock/internal/infrastructure/storage/postgres"
	"pharmastock/internal/infrastructure/storage/postgres/movement_repo"
	"pharmastock/internal/infrastructure/telemetry"
	"pharmastock/pkg/logger"
)

func main() {
	cfg, err := config.Load("./configs")
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.App.Env == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if cfg.JWT.Secret == "" {
		log.Fatal("jwt.secret is required")
	}

	ctx := logger.WithLogger(context.Background(), log)
	log.Infow("starting pharmastock server", "env", cfg.App.Env)

	// --- Telemetry ---
	tracer, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Tracing.Enabled,
		CollectorEndpoint: cfg.Tracing.Endpoint,
		SamplingRatio:     cfg.Tracing.SamplingRatio,
		ServiceName:       cfg.App.Name,
		Insecure:          cfg.Tracing.Insecure,
	}, log.Zap())
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}
	defer func() {
		if err := tracer.Shutdown(context.Background()); err != nil {
			log.Warnw("tracer shutdown failed", "error", err)
		}
	}()

	// --- Database ---
	poolCfg := postgres.DefaultPoolConfig(cfg.Database.DSN)
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.MinConns = cfg.Database.MinConns
	poolCfg.SlowQuery = cfg.Database.SlowQuery
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("database connection established")

	txOpts := postgres.DefaultTxOptions()
	txOpts.StatementTimeout = cfg.Database.StatementTimeout
	txOpts.LockTimeout = cfg.Database.LockTimeout
	txOpts.MaxRetries = cfg.Database.MaxRetries
	txm := postgres.NewTxManagerWithOptions(pool, txOpts)

	// --- Movement engine ---
	policies, err := cfg.Policies()
	if err != nil {
		log.Fatalw("invalid policy configuration", "error", err)
	}
	rules, err := cfg.RuleSet()
	if err != nil {
		log.Fatalw("invalid rule configuration", "error", err)
	}

	numbers := numerator.New(func(ctx context.Context) numerator.Querier { return txm.GetQuerier(ctx) })
	notifier := postgres.NewBalanceNotifier(postgres.NewOutboxPublisher(txm))

	engine := movement.NewEngine(
		movement_repo.NewStore(txm),
		txm,
		numbers,
		policies,
		movement.WithRules(rules),
		movement.WithNotifier(notifier),
	)

	auditLog, err := postgres.NewAuditLog(txm)
	if err != nil {
		log.Fatalw("failed to create audit log", "error", err)
	}

	// --- Auth ---
	tokens := auth.NewTokens(auth.NewConfig(cfg.JWT.Secret, cfg.JWT.Issuer))

	// --- Router ---
	routerCfg := v1.RouterConfig{
		Logger:       log,
		JWTValidator: tokens,
		Engine:       engine,
		Audit:        auditLog,
		AuditRoles:   cfg.HTTP.AuditRoles,
		DB:           pool,
	}
	if tracer.Enabled() {
		routerCfg.ServiceName = cfg.App.Name
	}
	if cfg.Metrics.Enabled {
		metrics := telemetry.NewMetrics()
		pool.ExportStats(metrics)
		routerCfg.Metrics = metrics
	}
	var idempotency *postgres.IdempotencyStore
	if cfg.HTTP.IdempotencyEnabled {
		idempotency = postgres.NewIdempotencyStore(txm, cfg.HTTP.IdempotencyTTL)
		routerCfg.Idempotency = idempotency
	}
	router := v1.NewRouter(routerCfg)

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		log.Infow("server starting", "addr", cfg.HTTP.Addr, "idempotency", idempotency != nil)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	postgres.LogPoolStats(ctx, pool)
	log.Info("server stopped")
}

