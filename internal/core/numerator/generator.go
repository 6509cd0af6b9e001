package numerator

import (
	"context"

	"pharmastock/internal/core/id"
)

// Generator hands out monotonically increasing numbers per (tenant, year, key).
//
// Implementations must persist the counter durably and increment it atomically
// inside the caller's transaction: an aborted movement must not consume a value
// seen by anyone else, and two movements must never get the same value.
// Gaps are acceptable.
type Generator interface {
	Next(ctx context.Context, tenantID id.ID, year int, key string) (Number, error)
}
