package movement

import (
	"context"

	"pharmastock/internal/core/apperror"
)

// checkLocations loads the locations referenced by cmd. A source may be
// inactive so a location being decommissioned can still be drained; a
// destination must be active.
func checkLocations(ctx context.Context, r LocationReader, cmd Command) (from, to *Location, err error) {
	if cmd.FromLocationID != nil {
		from, err = r.GetLocation(ctx, cmd.TenantID, *cmd.FromLocationID)
		if err != nil {
			return nil, nil, err
		}
	}
	if cmd.ToLocationID != nil {
		to, err = r.GetLocation(ctx, cmd.TenantID, *cmd.ToLocationID)
		if err != nil {
			return nil, nil, err
		}
		if !to.IsActive {
			return nil, nil, apperror.NewLocationInactive(to.ID)
		}
	}
	return from, to, nil
}
