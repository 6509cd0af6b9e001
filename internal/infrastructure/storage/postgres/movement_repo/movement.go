package movement_repo

import (
	"context"
	"fmt"

	"pharmastock/internal/domain/movement"
	"pharmastock/internal/infrastructure/storage/postgres"
)

// MovementRepo appends rows to stock_movements. Rows are never updated.
type MovementRepo struct {
	base
}

var _ movement.MovementStore = (*MovementRepo)(nil)

func movementInsertQuery(m *movement.Movement) (string, []any, error) {
	return builder().
		Insert(movementsTable).
		SetMap(postgres.StructToMap(m)).
		ToSql()
}

// Insert records a movement.
func (r *MovementRepo) Insert(ctx context.Context, m *movement.Movement) error {
	sql, args, err := movementInsertQuery(m)
	if err != nil {
		return fmt.Errorf("build movement insert: %w", err)
	}
	if _, err := r.querier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert movement: %w", err)
	}
	return nil
}
