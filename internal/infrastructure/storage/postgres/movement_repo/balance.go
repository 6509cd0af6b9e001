package movement_repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/shopspring/decimal"

	"pharmastock/internal/core/apperror"
	"pharmastock/internal/core/id"
	"pharmastock/internal/core/types"
	"pharmastock/internal/domain/movement"
	"pharmastock/internal/infrastructure/storage/postgres"
)

// BalanceRepo implements movement.BalanceStore on inventory_balances.
type BalanceRepo struct {
	base
}

var _ movement.BalanceStore = (*BalanceRepo)(nil)

var balanceColumns = postgres.ExtractDBColumns[movement.Balance]()

// keyPredicate matches one balance key. A nil batch must be compared with
// IS NULL, and id.ID must not be handed to squirrel as a pointer.
func keyPredicate(prefix string, k movement.BalanceKey) squirrel.Eq {
	eq := squirrel.Eq{
		prefix + "tenant_id":   k.TenantID,
		prefix + "location_id": k.LocationID,
		prefix + "product_id":  k.ProductID,
	}
	if b := k.Batch(); b != nil {
		eq[prefix+"batch_id"] = *b
	} else {
		eq[prefix+"batch_id"] = nil
	}
	return eq
}

func balanceLockQuery(k movement.BalanceKey) (string, []any, error) {
	return builder().
		Select(balanceColumns...).
		From(balancesTable).
		Where(keyPredicate("", k)).
		Suffix("FOR UPDATE").
		ToSql()
}

func balanceCreateQuery(b *movement.Balance) (string, []any, error) {
	data := postgres.StructToMap(b)
	return builder().
		Insert(balancesTable).
		SetMap(data).
		Suffix(fmt.Sprintf(`ON CONFLICT ON CONSTRAINT %s DO UPDATE SET
			quantity = %s.quantity + EXCLUDED.quantity,
			version = %s.version + 1,
			updated_at = EXCLUDED.updated_at
			RETURNING %s`,
			balanceKeyConstraint, balancesTable, balancesTable, strings.Join(balanceColumns, ", "))).
		ToSql()
}

func balanceSaveQuery(b *movement.Balance) (string, []any, error) {
	return builder().
		Update(balancesTable).
		Set("quantity", b.Quantity).
		Set("updated_at", b.UpdatedAt).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": b.ID, "version": b.Version}).
		Suffix("RETURNING " + strings.Join(balanceColumns, ", ")).
		ToSql()
}

func batchCandidatesQuery(tenantID, locationID, productID id.ID) (string, []any, error) {
	cols := make([]string, 0, len(batchColumns)+1)
	for _, c := range batchColumns {
		cols = append(cols, "b."+c)
	}
	cols = append(cols, "ib.quantity AS stock_quantity")

	return builder().
		Select(cols...).
		From(balancesTable + " ib").
		Join(batchesTable + " b ON b.id = ib.batch_id").
		Where(squirrel.Eq{
			"ib.tenant_id":   tenantID,
			"ib.location_id": locationID,
			"ib.product_id":  productID,
		}).
		Where(squirrel.Gt{"ib.quantity": 0}).
		OrderBy("b.batch_number").
		ToSql()
}

// GetForUpdate locks the row of k. It returns nil, nil when the row does not exist.
func (r *BalanceRepo) GetForUpdate(ctx context.Context, k movement.BalanceKey) (*movement.Balance, error) {
	sql, args, err := balanceLockQuery(k)
	if err != nil {
		return nil, fmt.Errorf("build balance lock: %w", err)
	}

	var b movement.Balance
	if err := pgxscan.Get(ctx, r.querier(ctx), &b, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("lock balance %s: %w", k, err)
	}
	return &b, nil
}

// Create inserts a balance row, adding to the row a concurrent transaction
// created first for the same key.
func (r *BalanceRepo) Create(ctx context.Context, b *movement.Balance) (*movement.Balance, error) {
	sql, args, err := balanceCreateQuery(b)
	if err != nil {
		return nil, fmt.Errorf("build balance insert: %w", err)
	}

	var out movement.Balance
	if err := pgxscan.Get(ctx, r.querier(ctx), &out, sql, args...); err != nil {
		if postgres.IsCheckViolation(err) {
			return nil, apperror.NewInsufficientStock(b.LocationID, b.ProductID, b.Quantity.Neg(), decimal.Zero)
		}
		return nil, fmt.Errorf("create balance: %w", err)
	}
	return &out, nil
}

// Save writes the quantity of a row locked by GetForUpdate.
func (r *BalanceRepo) Save(ctx context.Context, b *movement.Balance) (*movement.Balance, error) {
	sql, args, err := balanceSaveQuery(b)
	if err != nil {
		return nil, fmt.Errorf("build balance update: %w", err)
	}

	var out movement.Balance
	if err := pgxscan.Get(ctx, r.querier(ctx), &out, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewConflict("balance was modified concurrently").
				WithDetail("balanceId", b.ID.String())
		}
		if postgres.IsCheckViolation(err) {
			return nil, apperror.NewInsufficientStock(b.LocationID, b.ProductID, b.Quantity.Neg(), decimal.Zero)
		}
		return nil, fmt.Errorf("save balance: %w", err)
	}
	return &out, nil
}

type candidateRow struct {
	movement.Batch
	StockQuantity types.Quantity `db:"stock_quantity"`
}

// ListBatchCandidates returns batches with positive stock at the location.
func (r *BalanceRepo) ListBatchCandidates(ctx context.Context, tenantID, locationID, productID id.ID) ([]movement.BatchCandidate, error) {
	sql, args, err := batchCandidatesQuery(tenantID, locationID, productID)
	if err != nil {
		return nil, fmt.Errorf("build candidates query: %w", err)
	}

	var rows []candidateRow
	if err := pgxscan.Select(ctx, r.querier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("list batch candidates: %w", err)
	}

	out := make([]movement.BatchCandidate, 0, len(rows))
	for _, row := range rows {
		out = append(out, movement.BatchCandidate{Batch: row.Batch, Quantity: row.StockQuantity})
	}
	return out, nil
}
