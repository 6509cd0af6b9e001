// Package movement_repo provides the PostgreSQL repositories behind the
// movement engine. Every query runs on the transaction carried by ctx.
package movement_repo

import (
	"context"

	"github.com/Masterminds/squirrel"

	"pharmastock/internal/domain/movement"
	"pharmastock/internal/infrastructure/storage/postgres"
)

const (
	productsTable     = "products"
	warehousesTable   = "warehouses"
	locationsTable    = "locations"
	batchesTable      = "batches"
	balancesTable     = "inventory_balances"
	movementsTable    = "stock_movements"
	requestsTable     = "movement_requests"
	requestItemsTable = "movement_request_items"

	// balanceKeyConstraint is UNIQUE NULLS NOT DISTINCT (tenant_id, location_id, product_id, batch_id).
	balanceKeyConstraint = "uq_inventory_balances_key"
)

type base struct {
	txManager *postgres.TxManager
}

func (b base) querier(ctx context.Context) postgres.Querier {
	return b.txManager.GetQuerier(ctx)
}

func builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// NewStore wires all movement repositories onto one transaction manager.
func NewStore(txManager *postgres.TxManager) movement.Store {
	b := base{txManager: txManager}
	return movement.Store{
		Products:  &CatalogRepo{base: b},
		Locations: &CatalogRepo{base: b},
		Batches:   &BatchRepo{base: b},
		Balances:  &BalanceRepo{base: b},
		Movements: &MovementRepo{base: b},
		Requests:  &RequestRepo{base: b},
	}
}
