package movement_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"pharmastock/internal/core/apperror"
	"pharmastock/internal/core/id"
	"pharmastock/internal/domain/movement"
)

// CatalogRepo reads products and locations. Catalog rows are owned by other
// services; the engine only needs their active flags and the warehouse city.
type CatalogRepo struct {
	base
}

var (
	_ movement.ProductReader  = (*CatalogRepo)(nil)
	_ movement.LocationReader = (*CatalogRepo)(nil)
)

func productQuery(tenantID, productID id.ID) (string, []any, error) {
	return builder().
		Select("id", "tenant_id", "is_active").
		From(productsTable).
		Where(squirrel.Eq{"tenant_id": tenantID, "id": productID}).
		ToSql()
}

func locationQuery(tenantID, locationID id.ID) (string, []any, error) {
	return builder().
		Select("l.id", "l.tenant_id", "l.warehouse_id", "l.is_active", "w.city").
		From(locationsTable + " l").
		Join(warehousesTable + " w ON w.id = l.warehouse_id").
		Where(squirrel.Eq{"l.tenant_id": tenantID, "l.id": locationID}).
		ToSql()
}

// GetProduct returns a product of the tenant.
func (r *CatalogRepo) GetProduct(ctx context.Context, tenantID, productID id.ID) (*movement.Product, error) {
	sql, args, err := productQuery(tenantID, productID)
	if err != nil {
		return nil, fmt.Errorf("build product query: %w", err)
	}

	var p movement.Product
	if err := pgxscan.Get(ctx, r.querier(ctx), &p, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("product", productID)
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &p, nil
}

// GetLocation returns a location with the city of its warehouse.
func (r *CatalogRepo) GetLocation(ctx context.Context, tenantID, locationID id.ID) (*movement.Location, error) {
	sql, args, err := locationQuery(tenantID, locationID)
	if err != nil {
		return nil, fmt.Errorf("build location query: %w", err)
	}

	var l movement.Location
	if err := pgxscan.Get(ctx, r.querier(ctx), &l, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("location", locationID)
		}
		return nil, fmt.Errorf("get location: %w", err)
	}
	return &l, nil
}
