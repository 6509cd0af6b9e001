package movement_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"pharmastock/internal/core/apperror"
	"pharmastock/internal/core/id"
	"pharmastock/internal/domain/movement"
	"pharmastock/internal/infrastructure/storage/postgres"
)

// BatchRepo implements movement.BatchStore.
type BatchRepo struct {
	base
}

var _ movement.BatchStore = (*BatchRepo)(nil)

var batchColumns = postgres.ExtractDBColumns[movement.Batch]()

func batchQuery(tenantID, productID, batchID id.ID, lock movement.BatchLock) (string, []any, error) {
	q := builder().
		Select(batchColumns...).
		From(batchesTable).
		Where(squirrel.Eq{"tenant_id": tenantID, "product_id": productID, "id": batchID})

	switch lock {
	case movement.BatchLockShare:
		q = q.Suffix("FOR SHARE")
	case movement.BatchLockOpen:
		// Conflicts with FOR SHARE and itself, not with foreign key checks.
		q = q.Suffix("FOR NO KEY UPDATE")
	}
	return q.ToSql()
}

func markOpenedQuery(tenantID, batchID id.ID, at time.Time, by id.ID) (string, []any, error) {
	return builder().
		Update(batchesTable).
		Set("opened_at", at).
		Set("opened_by", by).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"tenant_id": tenantID, "id": batchID, "opened_at": nil}).
		ToSql()
}

// Get loads a batch of the product under lock.
func (r *BatchRepo) Get(ctx context.Context, tenantID, productID, batchID id.ID, lock movement.BatchLock) (*movement.Batch, error) {
	sql, args, err := batchQuery(tenantID, productID, batchID, lock)
	if err != nil {
		return nil, fmt.Errorf("build batch query: %w", err)
	}

	var b movement.Batch
	if err := pgxscan.Get(ctx, r.querier(ctx), &b, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("batch", batchID)
		}
		return nil, fmt.Errorf("load batch: %w", err)
	}
	return &b, nil
}

// MarkOpened stamps the first opening of a batch. Later calls are no-ops.
func (r *BatchRepo) MarkOpened(ctx context.Context, tenantID, batchID id.ID, at time.Time, by id.ID) (bool, error) {
	sql, args, err := markOpenedQuery(tenantID, batchID, at, by)
	if err != nil {
		return false, fmt.Errorf("build mark opened: %w", err)
	}

	tag, err := r.querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("mark batch opened: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
