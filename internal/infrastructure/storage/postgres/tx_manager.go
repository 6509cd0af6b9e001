package postgres

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"pharmastock/internal/core/tx"
	"pharmastock/pkg/logger"
)

var tracer = otel.Tracer("pharmastock/tx")

var _ tx.Manager = (*TxManager)(nil)

// TxOptions configures transaction behavior.
type TxOptions struct {
	// IsolationLevel: pgx.Serializable, pgx.RepeatableRead, pgx.ReadCommitted
	IsolationLevel pgx.TxIsoLevel

	// AccessMode: pgx.ReadWrite, pgx.ReadOnly
	AccessMode pgx.TxAccessMode

	// StatementTimeout bounds every statement (SET LOCAL statement_timeout).
	StatementTimeout time.Duration

	// LockTimeout bounds waiting for a row lock (SET LOCAL lock_timeout).
	LockTimeout time.Duration

	// MaxRetries is how many times a deadlocked or serialization-failed
	// transaction is run again. 0 disables retries.
	MaxRetries uint64

	// RetryInitialInterval is the first backoff delay between attempts.
	RetryInitialInterval time.Duration
}

// DefaultTxOptions returns production-safe defaults.
func DefaultTxOptions() TxOptions {
	return TxOptions{
		IsolationLevel:       pgx.ReadCommitted,
		AccessMode:           pgx.ReadWrite,
		StatementTimeout:     30 * time.Second,
		LockTimeout:          5 * time.Second,
		MaxRetries:           3,
		RetryInitialInterval: 20 * time.Millisecond,
	}
}

// TxManager runs functions in PostgreSQL transactions stored in the context.
// Outermost transactions that fail with a deadlock or serialization error are
// retried with exponential backoff; nested calls join the outer transaction.
type TxManager struct {
	pool *pgxpool.Pool
	opts TxOptions
}

// NewTxManager creates a transaction manager with default options.
func NewTxManager(pool *Pool) *TxManager {
	return NewTxManagerWithOptions(pool, DefaultTxOptions())
}

// NewTxManagerWithOptions creates a transaction manager with custom defaults.
func NewTxManagerWithOptions(pool *Pool, opts TxOptions) *TxManager {
	return &TxManager{pool: pool.Pool, opts: opts}
}

type txKey struct{}

// Tx wraps pgx.Tx with savepoint bookkeeping.
type Tx struct {
	pgx.Tx
	savepoints atomic.Int64
}

// RunInTransaction executes fn within a transaction.
// If a transaction already exists in ctx, it is reused.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.RunInTransactionWithOptions(ctx, m.opts, fn)
}

// RunInSavepoint executes fn inside a savepoint of the current transaction.
func (m *TxManager) RunInSavepoint(ctx context.Context, fn func(ctx context.Context) error) error {
	existing := m.GetTx(ctx)
	if existing == nil {
		return m.RunInTransaction(ctx, fn)
	}

	name := fmt.Sprintf("sp_%d", existing.savepoints.Add(1))
	if _, err := existing.Exec(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("create savepoint: %w", err)
	}

	if err := fn(ctx); err != nil {
		if _, rbErr := existing.Exec(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			logger.Error(ctx, "rollback to savepoint failed", "savepoint", name, "error", rbErr)
			return fmt.Errorf("rollback to savepoint: %w", rbErr)
		}
		return err
	}

	if _, err := existing.Exec(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

// RunInTransactionWithOptions executes fn with custom transaction options.
func (m *TxManager) RunInTransactionWithOptions(ctx context.Context, opts TxOptions, fn func(ctx context.Context) error) error {
	if m.GetTx(ctx) != nil {
		return fn(ctx)
	}

	ctx, span := tracer.Start(ctx, "transaction",
		trace.WithAttributes(
			attribute.String("tx.isolation", string(opts.IsolationLevel)),
		))
	defer span.End()

	attempt := 0
	op := func() error {
		attempt++
		err := m.runOnce(ctx, opts, fn)
		if err == nil {
			return nil
		}
		if IsRetryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	b := backoff.NewExponentialBackOff()
	if opts.RetryInitialInterval > 0 {
		b.InitialInterval = opts.RetryInitialInterval
	}
	b.MaxElapsedTime = 0

	notify := func(err error, wait time.Duration) {
		logger.Warn(ctx, "transaction conflict, retrying",
			"attempt", attempt,
			"wait", wait,
			"error", err,
		)
	}

	err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(b, opts.MaxRetries), ctx), notify)
	span.SetAttributes(attribute.Int("tx.attempts", attempt))
	if err != nil {
		span.RecordError(err)
		return translate(err)
	}
	return nil
}

func (m *TxManager) runOnce(ctx context.Context, opts TxOptions, fn func(ctx context.Context) error) error {
	pgTx, err := m.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   opts.IsolationLevel,
		AccessMode: opts.AccessMode,
	})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			_ = pgTx.Rollback(context.Background())
			panic(r)
		}
	}()

	if err := applyLocalTimeouts(ctx, pgTx, opts); err != nil {
		_ = pgTx.Rollback(context.Background())
		return err
	}

	txCtx := context.WithValue(ctx, txKey{}, &Tx{Tx: pgTx})

	if err := fn(txCtx); err != nil {
		// Background context so rollback completes even if ctx was cancelled.
		if rbErr := pgTx.Rollback(context.Background()); rbErr != nil {
			logger.Error(ctx, "rollback failed", "error", rbErr, "original_error", err)
		}
		return err
	}

	if err := pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func applyLocalTimeouts(ctx context.Context, q Querier, opts TxOptions) error {
	if opts.StatementTimeout > 0 {
		if _, err := q.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = '%dms'", opts.StatementTimeout.Milliseconds())); err != nil {
			return fmt.Errorf("set statement_timeout: %w", err)
		}
	}
	if opts.LockTimeout > 0 {
		if _, err := q.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", opts.LockTimeout.Milliseconds())); err != nil {
			return fmt.Errorf("set lock_timeout: %w", err)
		}
	}
	return nil
}

// GetTx returns the current transaction from context, or nil if none.
func (m *TxManager) GetTx(ctx context.Context) *Tx {
	if t, ok := ctx.Value(txKey{}).(*Tx); ok {
		return t
	}
	return nil
}

// Querier is satisfied by both pgx.Tx and the pool.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// GetQuerier returns the transaction in ctx, or the pool outside transactions.
func (m *TxManager) GetQuerier(ctx context.Context) Querier {
	if t := m.GetTx(ctx); t != nil {
		return t.Tx
	}
	return m.pool
}

// ReadOnly executes fn in a read-only transaction.
func (m *TxManager) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	opts := m.opts
	opts.AccessMode = pgx.ReadOnly
	return m.RunInTransactionWithOptions(ctx, opts, fn)
}
