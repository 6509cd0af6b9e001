// Package main is the entry point for the pharmastock background worker.
// It relays the transactional outbox to Kafka and cleans up system tables.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"pharmastock/internal/infrastructure/config"
	"pharmastock/internal/infrastructure/messaging"
	"pharmastock/internal/infrastructure/storage/postgres"
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

	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), log))
	defer cancel()

	log.Infow("starting pharmastock worker", "topic", cfg.Kafka.Topic)

	tracer, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Tracing.Enabled,
		CollectorEndpoint: cfg.Tracing.Endpoint,
		SamplingRatio:     cfg.Tracing.SamplingRatio,
		ServiceName:       cfg.App.Name + "-worker",
		Insecure:          cfg.Tracing.Insecure,
	}, log.Zap())
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}
	defer func() { _ = tracer.Shutdown(context.Background()) }()

	poolCfg := postgres.DefaultPoolConfig(cfg.Database.DSN)
	poolCfg.ApplicationName = "pharmastock-worker"
	poolCfg.SlowQuery = cfg.Database.SlowQuery
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txm := postgres.NewTxManager(pool)

	publisher := messaging.NewPublisher(messaging.NewWriter(messaging.WriterConfig{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.Topic,
	}))
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warnw("failed to close kafka writer", "error", err)
		}
	}()

	worker := NewWorker(
		postgres.NewOutboxRelay(txm, cfg.Outbox.BatchSize, publisher),
		postgres.NewIdempotencyStore(txm, cfg.HTTP.IdempotencyTTL),
		cfg.Outbox,
		log,
	)

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metrics := telemetry.NewMetrics()
		worker.observer = metrics
		pool.ExportStats(metrics)
		metricsServer = &http.Server{Addr: cfg.Metrics.WorkerAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorw("metrics server failed", "error", err)
			}
		}()
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	wg.Wait()
	if metricsServer != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		_ = metricsServer.Shutdown(shutdownCtx)
		stop()
	}
	log.Info("worker stopped")
}

// Relay is implemented by *postgres.OutboxRelay.
type Relay interface {
	ProcessBatch(ctx context.Context) (int, error)
	MoveToDLQ(ctx context.Context) (int64, error)
	PurgePublished(ctx context.Context, retention time.Duration) (int64, error)
}

// KeyCleaner is implemented by *postgres.IdempotencyStore.
type KeyCleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// OutboxObserver is implemented by *telemetry.Metrics.
type OutboxObserver interface {
	OutboxPublished(n int)
	OutboxDeadLettered(n int64)
}

// Worker polls the outbox and runs periodic cleanup.
type Worker struct {
	relay           Relay
	keys            KeyCleaner
	observer        OutboxObserver
	batchSize       int
	pollInterval    time.Duration
	cleanupInterval time.Duration
	retention       time.Duration
	log             *logger.Logger
}

// NewWorker creates a worker.
func NewWorker(relay Relay, keys KeyCleaner, cfg config.OutboxConfig, log *logger.Logger) *Worker {
	return &Worker{
		relay:           relay,
		keys:            keys,
		batchSize:       cfg.BatchSize,
		pollInterval:    cfg.PollInterval,
		cleanupInterval: time.Hour,
		retention:       cfg.PublishedRetention,
		log:             log.WithComponent("worker"),
	}
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	cleanupTicker := time.NewTicker(w.cleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drainOutbox(ctx)
		case <-cleanupTicker.C:
			w.cleanup(ctx)
		}
	}
}

// drainOutbox processes batches until one comes back short.
func (w *Worker) drainOutbox(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := w.relay.ProcessBatch(ctx)
		if err != nil {
			w.log.Errorw("outbox batch failed", "error", err)
			return
		}
		if n > 0 {
			w.log.Debugw("outbox batch published", "count", n)
			if w.observer != nil {
				w.observer.OutboxPublished(n)
			}
		}
		if n < w.batchSize {
			return
		}
	}
}

func (w *Worker) cleanup(ctx context.Context) {
	if n, err := w.relay.MoveToDLQ(ctx); err != nil {
		w.log.Errorw("move failed outbox messages to DLQ", "error", err)
	} else if n > 0 {
		w.log.Warnw("outbox messages moved to DLQ", "count", n)
		if w.observer != nil {
			w.observer.OutboxDeadLettered(n)
		}
	}

	if n, err := w.relay.PurgePublished(ctx, w.retention); err != nil {
		w.log.Errorw("purge published outbox messages", "error", err)
	} else if n > 0 {
		w.log.Infow("purged published outbox messages", "count", n)
	}

	if w.keys == nil {
		return
	}
	if n, err := w.keys.CleanupExpired(ctx); err != nil {
		w.log.Errorw("cleanup idempotency keys", "error", err)
	} else if n > 0 {
		w.log.Infow("cleaned up idempotency keys", "count", n)
	}
}
