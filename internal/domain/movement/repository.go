package movement

import (
	"context"
	"time"

	"pharmastock/internal/core/id"
	"pharmastock/internal/core/types"
)

// Repositories read and write through the transaction carried by ctx.
// Missing or cross-tenant rows are reported as apperror NotFound.

// ProductReader looks up catalog products.
type ProductReader interface {
	GetProduct(ctx context.Context, tenantID, productID id.ID) (*Product, error)
}

// LocationReader looks up locations together with their warehouse city.
type LocationReader interface {
	GetLocation(ctx context.Context, tenantID, locationID id.ID) (*Location, error)
}

// BatchLock is the row lock taken when a batch is read.
type BatchLock int

const (
	// BatchLockNone is a plain read.
	BatchLockNone BatchLock = iota
	// BatchLockShare holds off status changes until commit. Share holders do
	// not wait on each other.
	BatchLockShare
	// BatchLockOpen is taken by a movement about to stamp the first opening.
	// It waits for share holders and for other openers.
	BatchLockOpen
)

// BatchStore reads batches and stamps the opened marker.
type BatchStore interface {
	// Get loads the batch of a product under the given lock.
	Get(ctx context.Context, tenantID, productID, batchID id.ID, lock BatchLock) (*Batch, error)
	// MarkOpened sets opened_at/opened_by only when still unset. It reports
	// whether this call was the one that opened the batch.
	MarkOpened(ctx context.Context, tenantID, batchID id.ID, at time.Time, by id.ID) (bool, error)
}

// BatchCandidate is a batch with stock at a location, used by FEFO picking.
type BatchCandidate struct {
	Batch    Batch
	Quantity types.Quantity
}

// BalanceStore is the only write path for balances.
type BalanceStore interface {
	// GetForUpdate locks and returns the row of key, or nil when it does not exist.
	GetForUpdate(ctx context.Context, key BalanceKey) (*Balance, error)
	// Create inserts a new row. If a concurrent transaction created the same key
	// first, the quantity is added to that row instead.
	Create(ctx context.Context, b *Balance) (*Balance, error)
	// Save writes the quantity of a locked row and bumps its version.
	Save(ctx context.Context, b *Balance) (*Balance, error)
	// ListBatchCandidates returns batch-tracked stock of a product at a location.
	ListBatchCandidates(ctx context.Context, tenantID, locationID, productID id.ID) ([]BatchCandidate, error)
}

// MovementStore appends movement records.
type MovementStore interface {
	Insert(ctx context.Context, m *Movement) error
}

// RequestStore reads and closes movement requests.
type RequestStore interface {
	// ListOpenForCity returns OPEN requests for city, oldest first, with only
	// the items of productID that still have a remaining quantity. Requests
	// without such items are omitted.
	ListOpenForCity(ctx context.Context, tenantID id.ID, city string, productID id.ID) ([]*Request, error)
	// MarkFulfilled closes an OPEN request and zeroes the given items.
	MarkFulfilled(ctx context.Context, tenantID, requestID id.ID, itemIDs []id.ID, at time.Time, by id.ID) error
}

// Store groups the repositories the engine needs.
type Store struct {
	Products  ProductReader
	Locations LocationReader
	Batches   BatchStore
	Balances  BalanceStore
	Movements MovementStore
	Requests  RequestStore
}

// Notifier records balance changes in the movement transaction, inside a
// savepoint of their own. Its errors never fail the movement, and delivery
// is best-effort.
type Notifier interface {
	BalancesChanged(ctx context.Context, m *Movement, balances []*Balance) error
}
