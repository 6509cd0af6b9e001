package movement

import (
	"fmt"
	"time"

	"pharmastock/internal/core/apperror"
	"pharmastock/internal/core/id"
	"pharmastock/internal/core/types"
)

// Command is a request to record one movement.
type Command struct {
	TenantID             id.ID
	UserID               id.ID
	Type                 Type
	ProductID            id.ID
	BatchID              *id.ID
	FromLocationID       *id.ID
	ToLocationID         *id.ID
	Quantity             types.Quantity
	PresentationID       *id.ID
	PresentationQuantity *types.Quantity
	ReferenceType        *string
	ReferenceID          *string
	Note                 *string
	// CreatedAt is the effective timestamp. Defaults to the engine clock.
	CreatedAt *time.Time
}

// Validate checks the structural rules of the command. It does no I/O.
func (c Command) Validate() error {
	if id.IsNil(c.TenantID) {
		return invalid("tenantId", "tenant is required")
	}
	if id.IsNil(c.ProductID) {
		return invalid("productId", "product is required")
	}
	if !c.Type.Valid() {
		return invalid("type", fmt.Sprintf("unknown movement type %q", c.Type))
	}
	if !c.Quantity.IsPositive() {
		return invalid("quantity", "quantity must be greater than zero")
	}
	if !types.Storable(c.Quantity) {
		return invalid("quantity", scaleMessage("quantity"))
	}
	if c.PresentationQuantity != nil {
		if !c.PresentationQuantity.IsPositive() {
			return invalid("presentationQuantity", "presentation quantity must be greater than zero")
		}
		if !types.Storable(*c.PresentationQuantity) {
			return invalid("presentationQuantity", scaleMessage("presentation quantity"))
		}
	}

	switch c.Type {
	case TypeIn:
		if c.ToLocationID == nil {
			return invalid("toLocationId", "IN movement requires a destination location")
		}
	case TypeOut:
		if c.FromLocationID == nil {
			return invalid("fromLocationId", "OUT movement requires a source location")
		}
	case TypeTransfer:
		if c.FromLocationID == nil || c.ToLocationID == nil {
			return invalid("locations", "TRANSFER requires both source and destination locations")
		}
		if *c.FromLocationID == *c.ToLocationID {
			return invalid("locations", "TRANSFER source and destination must differ")
		}
	case TypeAdjustment:
		if c.FromLocationID == nil && c.ToLocationID == nil {
			return invalid("locations", "ADJUSTMENT requires a source or a destination location")
		}
	}
	return nil
}

// Decreases reports whether the command removes stock from a location: OUT,
// TRANSFER, and ADJUSTMENT without a destination.
func (c Command) Decreases() bool {
	switch c.Type {
	case TypeOut, TypeTransfer:
		return true
	case TypeAdjustment:
		return c.ToLocationID == nil
	}
	return false
}

// OpensBatch reports whether the command stamps the batch as opened.
func (c Command) OpensBatch() bool {
	return c.BatchID != nil && (c.Type == TypeOut || c.Type == TypeTransfer)
}

// legs returns the signed balance changes of the command before merging.
// An ADJUSTMENT with a destination increases it; the source is kept on the
// movement record only.
func (c Command) legs() []leg {
	q := c.Quantity
	switch c.Type {
	case TypeIn:
		return []leg{{location: *c.ToLocationID, delta: q, side: sideTo}}
	case TypeOut:
		return []leg{{location: *c.FromLocationID, delta: q.Neg(), side: sideFrom}}
	case TypeTransfer:
		return []leg{
			{location: *c.FromLocationID, delta: q.Neg(), side: sideFrom},
			{location: *c.ToLocationID, delta: q, side: sideTo},
		}
	case TypeAdjustment:
		if c.ToLocationID != nil {
			return []leg{{location: *c.ToLocationID, delta: q, side: sideTo}}
		}
		return []leg{{location: *c.FromLocationID, delta: q.Neg(), side: sideFrom}}
	}
	return nil
}

func scaleMessage(what string) string {
	return fmt.Sprintf("%s allows at most %d decimal places and %d integer digits",
		what, types.QuantityScale, types.QuantityPrecision-types.QuantityScale)
}

func invalid(field, msg string) *apperror.AppError {
	return apperror.NewValidation(msg).WithDetail("field", field)
}
