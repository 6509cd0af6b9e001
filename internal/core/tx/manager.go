// Package tx defines the unit-of-work contract the movement engine runs in.
// The PostgreSQL implementation lives in infrastructure/storage/postgres.
package tx

import (
	"context"
)

// Manager runs functions inside a database transaction carried by ctx.
type Manager interface {
	// RunInTransaction executes fn within a database transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn succeeds, the transaction is committed.
	//
	// Nested calls reuse the existing transaction from context.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// RunInSavepoint executes fn inside a savepoint of the transaction already
	// present in ctx. A failing fn rolls back to the savepoint only; the outer
	// transaction stays usable. Without an outer transaction it behaves like
	// RunInTransaction.
	RunInSavepoint(ctx context.Context, fn func(ctx context.Context) error) error
}
