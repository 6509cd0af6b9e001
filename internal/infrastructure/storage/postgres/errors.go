package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"pharmastock/internal/core/apperror"
)

// SQLSTATE codes the storage layer reacts to.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgQueryCanceled        = "57014"
	pgLockNotAvailable     = "55P03"
	pgCheckViolation       = "23514"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsRetryable reports whether the whole transaction may be run again:
// deadlocks and serialization failures.
func IsRetryable(err error) bool {
	switch pgCode(err) {
	case pgSerializationFailure, pgDeadlockDetected:
		return true
	}
	return false
}

// IsCheckViolation reports a CHECK constraint violation.
func IsCheckViolation(err error) bool { return pgCode(err) == pgCheckViolation }

// translate maps timeouts to an AppError. Other errors pass through.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperror.AsAppError(err); ok {
		return err
	}
	switch pgCode(err) {
	case pgQueryCanceled, pgLockNotAvailable:
		return apperror.NewTimeout(err)
	}
	return err
}
