// Package numerator provides the PostgreSQL implementation of tenant-scoped
// sequence numbers. It implements core/numerator.Generator.
package numerator

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"pharmastock/internal/core/id"
	corenumerator "pharmastock/internal/core/numerator"
)

// Querier is the subset of pgx used by the service.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// QuerierSource returns the querier bound to ctx: the open transaction, or
// the pool outside of one. postgres.TxManager.GetQuerier satisfies it.
type QuerierSource func(ctx context.Context) Querier

// Service hands out numbers from sys_sequences. The counter row is
// incremented with an UPSERT in the caller's transaction, so the row lock
// serialises concurrent movements of one (tenant, year, key) and a rolled
// back movement returns its value.
type Service struct {
	querier QuerierSource
}

var _ corenumerator.Generator = (*Service)(nil)

// New creates a numerator service.
func New(querier QuerierSource) *Service {
	return &Service{querier: querier}
}

// Next increments and returns the counter of (tenant, year, key).
func (s *Service) Next(ctx context.Context, tenantID id.ID, year int, key string) (corenumerator.Number, error) {
	var value int64
	err := s.querier(ctx).QueryRow(ctx, `
		INSERT INTO sys_sequences (tenant_id, year, key, current_value)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (tenant_id, year, key) DO UPDATE
			SET current_value = sys_sequences.current_value + 1
		RETURNING current_value
	`, tenantID, year, key).Scan(&value)
	if err != nil {
		return corenumerator.Number{}, fmt.Errorf("next %s number for %d: %w", key, year, err)
	}
	return corenumerator.NewNumber(key, year, value), nil
}

// Set moves the counter so the next value handed out is value+1. Used when
// importing history numbered elsewhere.
func (s *Service) Set(ctx context.Context, tenantID id.ID, year int, key string, value int64) error {
	var stored int64
	err := s.querier(ctx).QueryRow(ctx, `
		INSERT INTO sys_sequences (tenant_id, year, key, current_value)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, year, key) DO UPDATE
			SET current_value = GREATEST(sys_sequences.current_value, EXCLUDED.current_value)
		RETURNING current_value
	`, tenantID, year, key, value).Scan(&stored)
	if err != nil {
		return fmt.Errorf("set %s counter for %d: %w", key, year, err)
	}
	return nil
}
