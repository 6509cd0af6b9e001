//go:build integration

package movement_repo_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"pharmastock/internal/core/apperror"
	"pharmastock/internal/core/id"
	"pharmastock/internal/domain/movement"
	"pharmastock/internal/infrastructure/migration"
	"pharmastock/internal/infrastructure/numerator"
	"pharmastock/internal/infrastructure/storage/postgres"
	"pharmastock/internal/infrastructure/storage/postgres/movement_repo"
)

type env struct {
	pool   *postgres.Pool
	txm    *postgres.TxManager
	engine *movement.Engine
	tenant id.ID
	user   id.ID
}

func setup(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("stock_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	m, err := migration.New(dsn, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Up())
	require.NoError(t, m.Close())

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(dsn))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	txm := postgres.NewTxManager(pool)
	engine := movement.NewEngine(
		movement_repo.NewStore(txm),
		txm,
		numerator.New(func(ctx context.Context) numerator.Querier { return txm.GetQuerier(ctx) }),
		movement.NewStaticPolicies(movement.DefaultPolicy(), nil),
	)
	return &env{pool: pool, txm: txm, engine: engine, tenant: id.New(), user: id.New()}
}

func (e *env) exec(t *testing.T, sql string, args ...any) {
	t.Helper()
	_, err := e.pool.Exec(context.Background(), sql, args...)
	require.NoError(t, err)
}

func (e *env) product(t *testing.T) id.ID {
	pid := id.New()
	e.exec(t, `INSERT INTO products (id, tenant_id, name) VALUES ($1, $2, 'Paracetamol 500mg')`, pid, e.tenant)
	return pid
}

func (e *env) location(t *testing.T, city string, active bool) id.ID {
	wid, lid := id.New(), id.New()
	e.exec(t, `INSERT INTO warehouses (id, tenant_id, name, city) VALUES ($1, $2, 'Central', $3)`, wid, e.tenant, city)
	e.exec(t, `INSERT INTO locations (id, tenant_id, warehouse_id, code, is_active) VALUES ($1, $2, $3, $4, $5)`,
		lid, e.tenant, wid, lid.String()[:8], active)
	return lid
}

func (e *env) batch(t *testing.T, product id.ID, number string, status movement.BatchStatus, expires *time.Time) id.ID {
	bid := id.New()
	e.exec(t, `INSERT INTO batches (id, tenant_id, product_id, batch_number, expires_at, status) VALUES ($1, $2, $3, $4, $5, $6)`,
		bid, e.tenant, product, number, expires, status)
	return bid
}

func (e *env) quantity(t *testing.T, location, product id.ID, batch *id.ID) decimal.Decimal {
	var q decimal.Decimal
	err := e.pool.QueryRow(context.Background(), `
		SELECT COALESCE(SUM(quantity), 0) FROM inventory_balances
		WHERE tenant_id = $1 AND location_id = $2 AND product_id = $3 AND batch_id IS NOT DISTINCT FROM $4
	`, e.tenant, location, product, batch).Scan(&q)
	require.NoError(t, err)
	return q
}

func (e *env) cmd(tp movement.Type, product id.ID, qty int64) movement.Command {
	return movement.Command{TenantID: e.tenant, UserID: e.user, Type: tp, ProductID: product, Quantity: decimal.NewFromInt(qty)}
}

func TestReceiveIssueTransfer(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	product := e.product(t)
	a := e.location(t, "Lima", true)
	b := e.location(t, "Lima", true)

	in := e.cmd(movement.TypeIn, product, 100)
	in.ToLocationID = &a
	res, err := e.engine.Execute(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Movement.SequenceValue)
	assert.True(t, decimal.NewFromInt(100).Equal(res.ToBalance.Quantity))

	tr := e.cmd(movement.TypeTransfer, product, 40)
	tr.FromLocationID = &a
	tr.ToLocationID = &b
	res, err = e.engine.Execute(ctx, tr)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Movement.SequenceValue)

	out := e.cmd(movement.TypeOut, product, 61)
	out.FromLocationID = &a
	_, err = e.engine.Execute(ctx, out)
	require.Error(t, err)
	assert.True(t, apperror.IsInsufficientStock(err))

	assert.True(t, decimal.NewFromInt(60).Equal(e.quantity(t, a, product, nil)))
	assert.True(t, decimal.NewFromInt(40).Equal(e.quantity(t, b, product, nil)))
}

func TestQuarantinedBatchIsBlockedAndNothingWritten(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	product := e.product(t)
	loc := e.location(t, "Lima", true)
	batch := e.batch(t, product, "B-1", movement.BatchQuarantine, nil)

	in := e.cmd(movement.TypeIn, product, 10)
	in.ToLocationID = &loc
	in.BatchID = &batch
	_, err := e.engine.Execute(ctx, in)
	require.NoError(t, err)

	out := e.cmd(movement.TypeOut, product, 1)
	out.FromLocationID = &loc
	out.BatchID = &batch
	_, err = e.engine.Execute(ctx, out)
	require.Error(t, err)
	assert.True(t, apperror.IsBatchQuarantine(err))

	var movements int
	require.NoError(t, e.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_movements WHERE tenant_id = $1`, e.tenant).Scan(&movements))
	assert.Equal(t, 1, movements)
	assert.True(t, decimal.NewFromInt(10).Equal(e.quantity(t, loc, product, &batch)))
}

func TestConcurrentIssuesNeverOverdraw(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	product := e.product(t)
	loc := e.location(t, "Lima", true)

	in := e.cmd(movement.TypeIn, product, 10)
	in.ToLocationID = &loc
	_, err := e.engine.Execute(ctx, in)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := e.cmd(movement.TypeOut, product, 1)
			out.FromLocationID = &loc
			if _, err := e.engine.Execute(ctx, out); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	assert.True(t, e.quantity(t, loc, product, nil).IsZero())
}

func TestReceiptFulfillsOpenRequest(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	product := e.product(t)
	loc := e.location(t, "Cusco", true)

	req, item := id.New(), id.New()
	e.exec(t, `INSERT INTO movement_requests (id, tenant_id, requested_city) VALUES ($1, $2, 'Cusco')`, req, e.tenant)
	e.exec(t, `INSERT INTO movement_request_items (id, request_id, product_id, remaining_quantity) VALUES ($1, $2, $3, 5)`, item, req, product)

	in := e.cmd(movement.TypeIn, product, 5)
	in.ToLocationID = &loc
	res, err := e.engine.Execute(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, []id.ID{req}, res.FulfilledRequests)

	var status string
	require.NoError(t, e.pool.QueryRow(ctx, `SELECT status FROM movement_requests WHERE id = $1`, req).Scan(&status))
	assert.Equal(t, "FULFILLED", status)
}

func TestIssuesOfOneBatchAtTwoLocationsDoNotWaitOnEachOther(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	product := e.product(t)
	a := e.location(t, "Lima", true)
	b := e.location(t, "Lima", true)
	batch := e.batch(t, product, "B-7", movement.BatchReleased, nil)

	for _, loc := range []id.ID{a, b} {
		in := e.cmd(movement.TypeIn, product, 20)
		in.ToLocationID = &loc
		in.BatchID = &batch
		_, err := e.engine.Execute(ctx, in)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 10; i++ {
		for _, loc := range []id.ID{a, b} {
			wg.Add(1)
			go func(loc id.ID) {
				defer wg.Done()
				out := e.cmd(movement.TypeOut, product, 1)
				out.FromLocationID = &loc
				out.BatchID = &batch
				_, err := e.engine.Execute(ctx, out)
				errs <- err
			}(loc)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.True(t, decimal.NewFromInt(10).Equal(e.quantity(t, a, product, &batch)))
	assert.True(t, decimal.NewFromInt(10).Equal(e.quantity(t, b, product, &batch)))

	// With the batch opened, an issue at a holds only a share lock on it: an
	// issue at b gets its locks at once, while a quarantine has to wait.
	store := movement_repo.NewStore(e.txm)
	held, release := make(chan struct{}), make(chan struct{})
	first := make(chan error, 1)
	go func() {
		first <- e.txm.RunInTransaction(ctx, func(ctx context.Context) error {
			if _, err := store.Batches.Get(ctx, e.tenant, product, batch, movement.BatchLockShare); err != nil {
				return err
			}
			if _, err := store.Balances.GetForUpdate(ctx, movement.NewBalanceKey(e.tenant, a, product, &batch)); err != nil {
				return err
			}
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	impatient := postgres.DefaultTxOptions()
	impatient.LockTimeout = 300 * time.Millisecond
	impatient.MaxRetries = 0

	err := e.txm.RunInTransactionWithOptions(ctx, impatient, func(ctx context.Context) error {
		bt, err := store.Batches.Get(ctx, e.tenant, product, batch, movement.BatchLockShare)
		if err != nil {
			return err
		}
		require.NotNil(t, bt.OpenedAt)
		_, err = store.Balances.GetForUpdate(ctx, movement.NewBalanceKey(e.tenant, b, product, &batch))
		return err
	})
	require.NoError(t, err, "second issue must not wait for the first")

	err = e.txm.RunInTransactionWithOptions(ctx, impatient, func(ctx context.Context) error {
		_, err := e.txm.GetQuerier(ctx).Exec(ctx, `UPDATE batches SET status = $1 WHERE id = $2`, movement.BatchQuarantine, batch)
		return err
	})
	require.Error(t, err, "status change waits for the issue holding the batch")

	close(release)
	require.NoError(t, <-first)
}
