package movement_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/shopspring/decimal"

	"pharmastock/internal/core/apperror"
	"pharmastock/internal/core/id"
	"pharmastock/internal/domain/movement"
	"pharmastock/internal/infrastructure/storage/postgres"
)

// RequestRepo implements movement.RequestStore.
type RequestRepo struct {
	base
}

var _ movement.RequestStore = (*RequestRepo)(nil)

var (
	requestColumns = postgres.ExtractDBColumns[movement.Request]()
	itemColumns    = postgres.ExtractDBColumns[movement.RequestItem]()
)

func openRequestsQuery(tenantID id.ID, city string, productID id.ID) (string, []any, error) {
	// Rows are locked so two receipts in the same city cannot close the same
	// request; the second one re-checks status after the first commits.
	exists := builder().
		Select("1").
		From(requestItemsTable + " i").
		Where("i.request_id = r.id").
		Where(squirrel.Eq{"i.product_id": productID}).
		Where(squirrel.Gt{"i.remaining_quantity": 0}).
		Prefix("EXISTS (").
		Suffix(")")

	cols := make([]string, 0, len(requestColumns))
	for _, c := range requestColumns {
		cols = append(cols, "r."+c)
	}

	return builder().
		Select(cols...).
		From(requestsTable + " r").
		Where(squirrel.Eq{
			"r.tenant_id":      tenantID,
			"r.status":         movement.RequestOpen,
			"r.requested_city": city,
		}).
		Where(exists).
		OrderBy("r.created_at", "r.id").
		Suffix("FOR UPDATE OF r").
		ToSql()
}

func requestItemsQuery(requestIDs []id.ID, productID id.ID) (string, []any, error) {
	return builder().
		Select(itemColumns...).
		From(requestItemsTable).
		Where(squirrel.Eq{"request_id": requestIDs, "product_id": productID}).
		Where(squirrel.Gt{"remaining_quantity": 0}).
		OrderBy("request_id", "id").
		ToSql()
}

// ListOpenForCity returns open requests of the city that still need productID,
// oldest first, each with only its matching items.
func (r *RequestRepo) ListOpenForCity(ctx context.Context, tenantID id.ID, city string, productID id.ID) ([]*movement.Request, error) {
	sql, args, err := openRequestsQuery(tenantID, city, productID)
	if err != nil {
		return nil, fmt.Errorf("build open requests query: %w", err)
	}

	var requests []*movement.Request
	if err := pgxscan.Select(ctx, r.querier(ctx), &requests, sql, args...); err != nil {
		return nil, fmt.Errorf("list open requests: %w", err)
	}
	if len(requests) == 0 {
		return nil, nil
	}

	ids := make([]id.ID, len(requests))
	byID := make(map[id.ID]*movement.Request, len(requests))
	for i, req := range requests {
		ids[i] = req.ID
		byID[req.ID] = req
	}

	sql, args, err = requestItemsQuery(ids, productID)
	if err != nil {
		return nil, fmt.Errorf("build request items query: %w", err)
	}
	var items []movement.RequestItem
	if err := pgxscan.Select(ctx, r.querier(ctx), &items, sql, args...); err != nil {
		return nil, fmt.Errorf("list request items: %w", err)
	}
	for _, it := range items {
		if req, ok := byID[it.RequestID]; ok {
			req.Items = append(req.Items, it)
		}
	}

	out := requests[:0]
	for _, req := range requests {
		if len(req.Items) > 0 {
			out = append(out, req)
		}
	}
	return out, nil
}

// MarkFulfilled closes an open request and zeroes the given items.
func (r *RequestRepo) MarkFulfilled(ctx context.Context, tenantID, requestID id.ID, itemIDs []id.ID, at time.Time, by id.ID) error {
	sql, args, err := builder().
		Update(requestsTable).
		Set("status", movement.RequestFulfilled).
		Set("fulfilled_at", at).
		Set("fulfilled_by", by).
		Where(squirrel.Eq{"tenant_id": tenantID, "id": requestID, "status": movement.RequestOpen}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build fulfill request: %w", err)
	}

	q := r.querier(ctx)
	tag, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("fulfill request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("movement request", requestID)
	}

	if len(itemIDs) == 0 {
		return nil
	}
	sql, args, err = builder().
		Update(requestItemsTable).
		Set("remaining_quantity", decimal.Zero).
		Where(squirrel.Eq{"request_id": requestID, "id": itemIDs}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build zero request items: %w", err)
	}
	if _, err := q.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("zero request items: %w", err)
	}
	return nil
}
