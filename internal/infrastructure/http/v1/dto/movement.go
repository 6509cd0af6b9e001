// Package dto provides the request and response bodies of the HTTP API.
package dto

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"pharmastock/internal/core/id"
	"pharmastock/internal/domain/movement"
)

// CreateMovementRequest is the body of POST /api/v1/movements. Tenant and
// user come from the token, never from the body.
type CreateMovementRequest struct {
	Type                 string           `json:"type" binding:"required"`
	ProductID            string           `json:"productId" binding:"required"`
	BatchID              string           `json:"batchId"`
	FromLocationID       string           `json:"fromLocationId"`
	ToLocationID         string           `json:"toLocationId"`
	Quantity             decimal.Decimal  `json:"quantity"`
	PresentationID       string           `json:"presentationId"`
	PresentationQuantity *decimal.Decimal `json:"presentationQuantity"`
	ReferenceType        *string          `json:"referenceType"`
	ReferenceID          *string          `json:"referenceId"`
	Note                 *string          `json:"note"`
	CreatedAt            *time.Time       `json:"createdAt"`
}

// ToCommand converts the request into an engine command.
func (r CreateMovementRequest) ToCommand(tenantID, userID id.ID) (movement.Command, error) {
	productID, err := id.Parse(r.ProductID)
	if err != nil {
		return movement.Command{}, fieldError("productId")
	}
	batchID, err := id.ParseOptional(r.BatchID)
	if err != nil {
		return movement.Command{}, fieldError("batchId")
	}
	fromID, err := id.ParseOptional(r.FromLocationID)
	if err != nil {
		return movement.Command{}, fieldError("fromLocationId")
	}
	toID, err := id.ParseOptional(r.ToLocationID)
	if err != nil {
		return movement.Command{}, fieldError("toLocationId")
	}
	presentationID, err := id.ParseOptional(r.PresentationID)
	if err != nil {
		return movement.Command{}, fieldError("presentationId")
	}

	return movement.Command{
		TenantID:             tenantID,
		UserID:               userID,
		Type:                 movement.Type(r.Type),
		ProductID:            productID,
		BatchID:              batchID,
		FromLocationID:       fromID,
		ToLocationID:         toID,
		Quantity:             r.Quantity,
		PresentationID:       presentationID,
		PresentationQuantity: r.PresentationQuantity,
		ReferenceType:        r.ReferenceType,
		ReferenceID:          r.ReferenceID,
		Note:                 r.Note,
		CreatedAt:            r.CreatedAt,
	}, nil
}

// FieldError reports a malformed identifier in the request.
type FieldError struct {
	Field string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s must be a UUID", e.Field)
}

func fieldError(field string) error {
	return &FieldError{Field: field}
}

// BalanceResponse is a balance after the movement.
type BalanceResponse struct {
	ID         id.ID           `json:"id"`
	LocationID id.ID           `json:"locationId"`
	ProductID  id.ID           `json:"productId"`
	BatchID    *id.ID          `json:"batchId,omitempty"`
	Quantity   decimal.Decimal `json:"quantity"`
	Version    int64           `json:"version"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// MovementResponse is the body of a recorded movement.
type MovementResponse struct {
	Movement          *movement.Movement `json:"movement"`
	FromBalance       *BalanceResponse   `json:"fromBalance,omitempty"`
	ToBalance         *BalanceResponse   `json:"toBalance,omitempty"`
	FulfilledRequests []id.ID            `json:"fulfilledRequests"`
}

// FromResult builds the response of Execute.
func FromResult(res *movement.Result) MovementResponse {
	fulfilled := res.FulfilledRequests
	if fulfilled == nil {
		fulfilled = []id.ID{}
	}
	return MovementResponse{
		Movement:          res.Movement,
		FromBalance:       fromBalance(res.FromBalance),
		ToBalance:         fromBalance(res.ToBalance),
		FulfilledRequests: fulfilled,
	}
}

func fromBalance(b *movement.Balance) *BalanceResponse {
	if b == nil {
		return nil
	}
	return &BalanceResponse{
		ID:         b.ID,
		LocationID: b.LocationID,
		ProductID:  b.ProductID,
		BatchID:    b.BatchID,
		Quantity:   b.Quantity,
		Version:    b.Version,
		UpdatedAt:  b.UpdatedAt,
	}
}
