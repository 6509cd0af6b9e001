package movement

import (
	"sort"
	"time"

	"pharmastock/internal/core/types"
)

// pickFEFO returns the batch that expires first among the candidates that pass
// the compliance gate and hold at least qty. Batches without expiry go last.
// Nil means no single batch can serve the quantity.
func pickFEFO(p Policy, candidates []BatchCandidate, qty types.Quantity, at time.Time) *Batch {
	usableCands := make([]BatchCandidate, 0, len(candidates))
	for _, c := range candidates {
		if usable(p, &c.Batch, at) {
			usableCands = append(usableCands, c)
		}
	}

	sort.SliceStable(usableCands, func(i, j int) bool {
		a, b := usableCands[i].Batch, usableCands[j].Batch
		switch {
		case a.ExpiresAt == nil && b.ExpiresAt == nil:
			return a.BatchNumber < b.BatchNumber
		case a.ExpiresAt == nil:
			return false
		case b.ExpiresAt == nil:
			return true
		case !a.ExpiresAt.Equal(*b.ExpiresAt):
			return a.ExpiresAt.Before(*b.ExpiresAt)
		}
		return a.BatchNumber < b.BatchNumber
	})

	for _, c := range usableCands {
		if c.Quantity.GreaterThanOrEqual(qty) {
			b := c.Batch
			return &b
		}
	}
	return nil
}
