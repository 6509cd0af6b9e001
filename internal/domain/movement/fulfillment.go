package movement

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"pharmastock/internal/core/id"
	"pharmastock/internal/core/types"
)

// MatchInput describes a receipt to match against open requests.
type MatchInput struct {
	TenantID  id.ID
	ProductID id.ID
	City      string
	Received  types.Quantity
	At        time.Time
	By        id.ID
}

// Matcher closes open movement requests that a receipt can satisfy.
type Matcher struct {
	requests RequestStore
}

// NewMatcher creates a matcher over the request store.
func NewMatcher(requests RequestStore) Matcher {
	return Matcher{requests: requests}
}

// Match closes every request whose remaining quantity for the product fits the
// receipt and returns their ids. A request is never partially fulfilled.
func (m Matcher) Match(ctx context.Context, mode FulfillmentMode, in MatchInput) ([]id.ID, error) {
	if mode == FulfillmentDisabled || in.City == "" || m.requests == nil {
		return nil, nil
	}

	requests, err := m.requests.ListOpenForCity(ctx, in.TenantID, in.City, in.ProductID)
	if err != nil {
		return nil, fmt.Errorf("list open requests: %w", err)
	}

	left := in.Received
	var fulfilled []id.ID
	for _, r := range requests {
		needed := decimal.Zero
		itemIDs := make([]id.ID, 0, len(r.Items))
		for _, it := range r.Items {
			if it.ProductID != in.ProductID || !it.RemainingQuantity.IsPositive() {
				continue
			}
			needed = needed.Add(it.RemainingQuantity)
			itemIDs = append(itemIDs, it.ID)
		}
		if len(itemIDs) == 0 {
			continue
		}

		budget := in.Received
		if mode == FulfillmentAllocating {
			budget = left
		}
		if needed.GreaterThan(budget) {
			continue
		}

		if err := m.requests.MarkFulfilled(ctx, in.TenantID, r.ID, itemIDs, in.At, in.By); err != nil {
			return fulfilled, fmt.Errorf("fulfill request %s: %w", r.ID, err)
		}
		fulfilled = append(fulfilled, r.ID)
		left = left.Sub(needed)
	}
	return fulfilled, nil
}
