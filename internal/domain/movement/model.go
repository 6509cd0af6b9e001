// Package movement implements the stock movement engine: one inventory-changing
// operation (IN, OUT, TRANSFER, ADJUSTMENT) validated, applied to balances and
// recorded as an immutable movement inside a single transaction.
package movement

import (
	"bytes"
	"fmt"
	"time"

	"pharmastock/internal/core/id"
	"pharmastock/internal/core/types"
)

// Type is the kind of inventory operation.
type Type string

const (
	TypeIn         Type = "IN"
	TypeOut        Type = "OUT"
	TypeTransfer   Type = "TRANSFER"
	TypeAdjustment Type = "ADJUSTMENT"
)

// Valid reports whether t is a known movement type.
func (t Type) Valid() bool {
	switch t {
	case TypeIn, TypeOut, TypeTransfer, TypeAdjustment:
		return true
	}
	return false
}

// BatchStatus is the release state of a batch as set by quality control.
type BatchStatus string

const (
	BatchReleased   BatchStatus = "RELEASED"
	BatchQuarantine BatchStatus = "QUARANTINE"
	BatchRejected   BatchStatus = "REJECTED"
)

// Movement is the immutable record of one inventory change.
type Movement struct {
	ID                   id.ID           `db:"id" json:"id"`
	TenantID             id.ID           `db:"tenant_id" json:"tenantId"`
	SequenceNumber       string          `db:"sequence_number" json:"sequenceNumber"`
	SequenceValue        int64           `db:"sequence_value" json:"sequenceValue"`
	SequenceYear         int             `db:"sequence_year" json:"sequenceYear"`
	Type                 Type            `db:"movement_type" json:"type"`
	ProductID            id.ID           `db:"product_id" json:"productId"`
	BatchID              *id.ID          `db:"batch_id" json:"batchId,omitempty"`
	FromLocationID       *id.ID          `db:"from_location_id" json:"fromLocationId,omitempty"`
	ToLocationID         *id.ID          `db:"to_location_id" json:"toLocationId,omitempty"`
	Quantity             types.Quantity  `db:"quantity" json:"quantity"`
	PresentationID       *id.ID          `db:"presentation_id" json:"presentationId,omitempty"`
	PresentationQuantity *types.Quantity `db:"presentation_quantity" json:"presentationQuantity,omitempty"`
	ReferenceType        *string         `db:"reference_type" json:"referenceType,omitempty"`
	ReferenceID          *string         `db:"reference_id" json:"referenceId,omitempty"`
	Note                 *string         `db:"note" json:"note,omitempty"`
	CreatedAt            time.Time       `db:"created_at" json:"createdAt"`
	CreatedBy            id.ID           `db:"created_by" json:"createdBy"`
}

// BalanceKey identifies one balance row. BatchID is the zero ID for stock
// that is not batch-tracked, which keeps the key comparable.
type BalanceKey struct {
	TenantID   id.ID
	LocationID id.ID
	ProductID  id.ID
	BatchID    id.ID
}

// NewBalanceKey builds a key from an optional batch.
func NewBalanceKey(tenantID, locationID, productID id.ID, batchID *id.ID) BalanceKey {
	k := BalanceKey{TenantID: tenantID, LocationID: locationID, ProductID: productID}
	if batchID != nil {
		k.BatchID = *batchID
	}
	return k
}

// Batch returns the batch part of the key, nil for unbatched stock.
func (k BalanceKey) Batch() *id.ID {
	if id.IsNil(k.BatchID) {
		return nil
	}
	b := k.BatchID
	return &b
}

// Less orders keys by location, product, batch. Balance rows are always locked
// in this order so two movements never wait on each other in a cycle.
func (k BalanceKey) Less(o BalanceKey) bool {
	if c := bytes.Compare(k.LocationID[:], o.LocationID[:]); c != 0 {
		return c < 0
	}
	if c := bytes.Compare(k.ProductID[:], o.ProductID[:]); c != 0 {
		return c < 0
	}
	return bytes.Compare(k.BatchID[:], o.BatchID[:]) < 0
}

func (k BalanceKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.LocationID, k.ProductID, k.BatchID)
}

// Balance is the current quantity for one key. Quantity never goes below zero.
type Balance struct {
	ID         id.ID          `db:"id" json:"id"`
	TenantID   id.ID          `db:"tenant_id" json:"tenantId"`
	LocationID id.ID          `db:"location_id" json:"locationId"`
	ProductID  id.ID          `db:"product_id" json:"productId"`
	BatchID    *id.ID         `db:"batch_id" json:"batchId,omitempty"`
	Quantity   types.Quantity `db:"quantity" json:"quantity"`
	Version    int64          `db:"version" json:"version"`
	CreatedBy  id.ID          `db:"created_by" json:"createdBy"`
	CreatedAt  time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updatedAt"`
}

// Key returns the balance key of b.
func (b *Balance) Key() BalanceKey {
	return NewBalanceKey(b.TenantID, b.LocationID, b.ProductID, b.BatchID)
}

// Batch is a manufactured lot. Status and expiry are owned by quality control;
// the engine only reads them and stamps OpenedAt once.
type Batch struct {
	ID          id.ID       `db:"id" json:"id"`
	TenantID    id.ID       `db:"tenant_id" json:"tenantId"`
	ProductID   id.ID       `db:"product_id" json:"productId"`
	BatchNumber string      `db:"batch_number" json:"batchNumber"`
	ExpiresAt   *time.Time  `db:"expires_at" json:"expiresAt,omitempty"`
	Status      BatchStatus `db:"status" json:"status"`
	OpenedAt    *time.Time  `db:"opened_at" json:"openedAt,omitempty"`
	OpenedBy    *id.ID      `db:"opened_by" json:"openedBy,omitempty"`
	Version     int64       `db:"version" json:"version"`
}

// Location is a storage place inside a warehouse. City comes from the warehouse.
type Location struct {
	ID          id.ID  `db:"id" json:"id"`
	TenantID    id.ID  `db:"tenant_id" json:"tenantId"`
	WarehouseID id.ID  `db:"warehouse_id" json:"warehouseId"`
	IsActive    bool   `db:"is_active" json:"isActive"`
	City        string `db:"city" json:"city"`
}

// Product is the catalog entry a movement refers to.
type Product struct {
	ID       id.ID `db:"id" json:"id"`
	TenantID id.ID `db:"tenant_id" json:"tenantId"`
	IsActive bool  `db:"is_active" json:"isActive"`
}

// RequestStatus is the lifecycle state of a movement request.
type RequestStatus string

const (
	RequestOpen      RequestStatus = "OPEN"
	RequestFulfilled RequestStatus = "FULFILLED"
)

// Request asks for stock to be sent to a city. Created elsewhere; the engine only
// reads open requests and closes them.
type Request struct {
	ID            id.ID         `db:"id" json:"id"`
	TenantID      id.ID         `db:"tenant_id" json:"tenantId"`
	RequestedCity string        `db:"requested_city" json:"requestedCity"`
	Status        RequestStatus `db:"status" json:"status"`
	CreatedAt     time.Time     `db:"created_at" json:"createdAt"`
	FulfilledAt   *time.Time    `db:"fulfilled_at" json:"fulfilledAt,omitempty"`
	FulfilledBy   *id.ID        `db:"fulfilled_by" json:"fulfilledBy,omitempty"`
	Items         []RequestItem `db:"-" json:"items"`
}

// RequestItem is one product line of a Request.
type RequestItem struct {
	ID                id.ID          `db:"id" json:"id"`
	RequestID         id.ID          `db:"request_id" json:"requestId"`
	ProductID         id.ID          `db:"product_id" json:"productId"`
	RemainingQuantity types.Quantity `db:"remaining_quantity" json:"remainingQuantity"`
}

// Result is what Execute returns for a recorded movement.
type Result struct {
	Movement *Movement `json:"movement"`
	// FromBalance is the source balance after the movement, when one was touched.
	FromBalance *Balance `json:"fromBalance,omitempty"`
	// ToBalance is the destination balance after the movement, when one was touched.
	ToBalance *Balance `json:"toBalance,omitempty"`
	// FulfilledRequests lists requests closed by this receipt.
	FulfilledRequests []id.ID `json:"fulfilledRequests,omitempty"`
}
