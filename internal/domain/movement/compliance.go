package movement

import (
	"time"

	"pharmastock/internal/core/apperror"
)

// StartOfDayUTC truncates t to midnight UTC of the same UTC day.
func StartOfDayUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// CheckBatch applies the quarantine and expiry gates to a batch a movement is
// about to decrease. at is the effective timestamp of the movement; a batch
// expiring on that UTC day is still usable.
func CheckBatch(p Policy, b *Batch, at time.Time) error {
	if p.EnforceQuarantine && !p.StatusAllowed(b.Status) {
		return apperror.NewBatchQuarantine(b.ID, b.BatchNumber, string(b.Status))
	}
	if p.EnforceExpiry && b.ExpiresAt != nil {
		cutoff := StartOfDayUTC(at).AddDate(0, 0, p.MinShelfLifeDays)
		if b.ExpiresAt.Before(cutoff) {
			return apperror.NewBatchExpired(b.ID, b.BatchNumber, *b.ExpiresAt)
		}
	}
	return nil
}

// usable is CheckBatch as a predicate, for FEFO candidate filtering.
func usable(p Policy, b *Batch, at time.Time) bool {
	return CheckBatch(p, b, at) == nil
}
