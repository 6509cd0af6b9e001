package movement

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"pharmastock/internal/core/apperror"
	"pharmastock/internal/core/id"
	"pharmastock/internal/core/types"
)

type side int

const (
	sideFrom side = iota + 1
	sideTo
)

// leg is one signed change to the stock of a location.
type leg struct {
	location id.ID
	delta    types.Quantity
	side     side
}

// posting is the net change to one balance key.
type posting struct {
	key   BalanceKey
	delta types.Quantity
	sides []side
}

// plan merges legs that hit the same key and sorts the result in lock order.
// Legs on the same key cancel into a single zero posting.
func plan(tenantID, productID id.ID, batchID *id.ID, legs []leg) []posting {
	byKey := make(map[BalanceKey]*posting, len(legs))
	out := make([]*posting, 0, len(legs))
	for _, l := range legs {
		k := NewBalanceKey(tenantID, l.location, productID, batchID)
		p, ok := byKey[k]
		if !ok {
			p = &posting{key: k, delta: decimal.Zero}
			byKey[k] = p
			out = append(out, p)
		}
		p.delta = p.delta.Add(l.delta)
		p.sides = append(p.sides, l.side)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key.Less(out[j].key) })

	res := make([]posting, len(out))
	for i, p := range out {
		res[i] = *p
	}
	return res
}

// ledger applies postings to balance rows under row locks.
type ledger struct {
	balances BalanceStore
	userID   id.ID
	now      time.Time
}

// apply locks every key in order, checks the no-negative rule and writes the
// new quantities. It returns the post-update balance per side.
func (l ledger) apply(ctx context.Context, postings []posting) (map[side]*Balance, error) {
	out := make(map[side]*Balance, 2)
	for _, p := range postings {
		cur, err := l.balances.GetForUpdate(ctx, p.key)
		if err != nil {
			return nil, fmt.Errorf("lock balance %s: %w", p.key, err)
		}

		available := decimal.Zero
		if cur != nil {
			available = cur.Quantity
		}

		var snapshot *Balance
		switch {
		case p.delta.IsZero():
			snapshot = cur
		default:
			next := available.Add(p.delta)
			if next.IsNegative() {
				return nil, apperror.NewInsufficientStock(p.key.LocationID, p.key.ProductID, p.delta.Neg(), available)
			}
			if cur == nil {
				snapshot, err = l.balances.Create(ctx, &Balance{
					ID:         id.New(),
					TenantID:   p.key.TenantID,
					LocationID: p.key.LocationID,
					ProductID:  p.key.ProductID,
					BatchID:    p.key.Batch(),
					Quantity:   next,
					Version:    1,
					CreatedBy:  l.userID,
					CreatedAt:  l.now,
					UpdatedAt:  l.now,
				})
				if err != nil {
					return nil, fmt.Errorf("create balance %s: %w", p.key, err)
				}
			} else {
				upd := *cur
				upd.Quantity = next
				upd.UpdatedAt = l.now
				snapshot, err = l.balances.Save(ctx, &upd)
				if err != nil {
					return nil, fmt.Errorf("update balance %s: %w", p.key, err)
				}
			}
		}

		for _, s := range p.sides {
			out[s] = snapshot
		}
	}
	return out, nil
}
