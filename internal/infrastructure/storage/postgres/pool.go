// Package postgres provides PostgreSQL infrastructure components.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"

	"pharmastock/pkg/logger"
)

// PoolConfig holds connection pool configuration.
type PoolConfig struct {
	DSN               string
	ApplicationName   string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	// SlowQuery logs statements running at least this long. 0 disables it.
	SlowQuery time.Duration
}

// DefaultPoolConfig sizes the pool for the movement workload: short
// transactions that hold row locks, so idle connections are recycled quickly.
func DefaultPoolConfig(dsn string) PoolConfig {
	return PoolConfig{
		DSN:               dsn,
		ApplicationName:   "pharmastock",
		MaxConns:          25,
		MinConns:          5,
		MaxConnLifetime:   time.Hour,
		MaxConnIdleTime:   10 * time.Minute,
		HealthCheckPeriod: time.Minute,
		SlowQuery:         500 * time.Millisecond,
	}
}

// Pool wraps pgxpool.Pool.
type Pool struct {
	*pgxpool.Pool
}

func (p *Pool) Close() {
	if p.Pool != nil {
		p.Pool.Close()
	}
}

// NewPool connects and pings. NUMERIC columns scan into decimal.Decimal.
func NewPool(ctx context.Context, cfg PoolConfig) (*Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = cfg.HealthCheckPeriod
	if cfg.ApplicationName != "" {
		poolConfig.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}
	if cfg.SlowQuery > 0 {
		poolConfig.ConnConfig.Tracer = &slowQueryTracer{threshold: cfg.SlowQuery}
	}

	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// GaugeRegistrar exposes a value read on every scrape.
type GaugeRegistrar interface {
	RegisterGauge(subsystem, name, help string, fn func() float64)
}

// ExportStats publishes pool saturation. Lock waits on hot balance rows show
// up as acquired connections climbing toward MaxConns.
func (p *Pool) ExportStats(reg GaugeRegistrar) {
	reg.RegisterGauge("db", "pool_total_connections", "Open database connections.", func() float64 {
		return float64(p.Stat().TotalConns())
	})
	reg.RegisterGauge("db", "pool_acquired_connections", "Database connections in use.", func() float64 {
		return float64(p.Stat().AcquiredConns())
	})
	reg.RegisterGauge("db", "pool_idle_connections", "Idle database connections.", func() float64 {
		return float64(p.Stat().IdleConns())
	})
	reg.RegisterGauge("db", "pool_max_connections", "Configured connection limit.", func() float64 {
		return float64(p.Stat().MaxConns())
	})
}

// LogPoolStats logs pool statistics.
func LogPoolStats(ctx context.Context, pool *Pool) {
	stat := pool.Stat()
	logger.Info(ctx, "database pool stats",
		"total", stat.TotalConns(),
		"acquired", stat.AcquiredConns(),
		"idle", stat.IdleConns(),
		"max", stat.MaxConns(),
		"acquire_count", stat.AcquireCount(),
		"empty_acquire_count", stat.EmptyAcquireCount(),
	)
}

type queryStartKey struct{}

type queryStart struct {
	at  time.Time
	sql string
}

// slowQueryTracer warns about statements at or above threshold, typically
// balance updates waiting on a row lock.
type slowQueryTracer struct {
	threshold time.Duration
}

func (t *slowQueryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryStartKey{}, queryStart{at: time.Now(), sql: data.SQL})
}

func (t *slowQueryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	start, ok := ctx.Value(queryStartKey{}).(queryStart)
	if !ok {
		return
	}
	elapsed := time.Since(start.at)
	if elapsed < t.threshold {
		return
	}
	kv := []any{"elapsed_ms", elapsed.Milliseconds(), "sql", start.sql}
	if data.Err != nil {
		kv = append(kv, "error", data.Err)
	}
	logger.Warn(ctx, "slow query", kv...)
}
