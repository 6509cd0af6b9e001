package postgres

import (
	"context"
	"time"

	"pharmastock/internal/core/id"
	"pharmastock/internal/core/types"
	"pharmastock/internal/domain/movement"
)

// EventBalanceChanged is the outbox event type for committed balance changes.
const EventBalanceChanged = "stock.balance_changed"

// BalanceChangedPayload is the JSON body of EventBalanceChanged.
type BalanceChangedPayload struct {
	MovementID     id.ID             `json:"movementId"`
	SequenceNumber string            `json:"sequenceNumber"`
	Type           movement.Type     `json:"type"`
	ProductID      id.ID             `json:"productId"`
	OccurredAt     time.Time         `json:"occurredAt"`
	Balances       []BalanceSnapshot `json:"balances"`
}

// BalanceSnapshot is the state of one balance after the movement.
type BalanceSnapshot struct {
	LocationID id.ID          `json:"locationId"`
	BatchID    *id.ID         `json:"batchId,omitempty"`
	Quantity   types.Quantity `json:"quantity"`
	Version    int64          `json:"version"`
}

// BalanceNotifier writes balance changes to the outbox in the movement
// transaction. The relay picks them up once it commits.
type BalanceNotifier struct {
	publisher *OutboxPublisher
}

// NewBalanceNotifier creates a notifier writing through publisher.
func NewBalanceNotifier(publisher *OutboxPublisher) *BalanceNotifier {
	return &BalanceNotifier{publisher: publisher}
}

// BalancesChanged implements movement.Notifier.
func (n *BalanceNotifier) BalancesChanged(ctx context.Context, m *movement.Movement, balances []*movement.Balance) error {
	payload := BalanceChangedPayload{
		MovementID:     m.ID,
		SequenceNumber: m.SequenceNumber,
		Type:           m.Type,
		ProductID:      m.ProductID,
		OccurredAt:     m.CreatedAt,
		Balances:       make([]BalanceSnapshot, 0, len(balances)),
	}
	for _, b := range balances {
		payload.Balances = append(payload.Balances, BalanceSnapshot{
			LocationID: b.LocationID,
			BatchID:    b.BatchID,
			Quantity:   b.Quantity,
			Version:    b.Version,
		})
	}

	return n.publisher.Publish(ctx, DomainEvent{
		TenantID:      m.TenantID,
		AggregateType: "inventory_balance",
		AggregateID:   m.ID,
		EventType:     EventBalanceChanged,
		Payload:       payload,
	})
}

var _ movement.Notifier = (*BalanceNotifier)(nil)
