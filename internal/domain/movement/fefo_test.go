package movement

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmastock/internal/core/id"
)

func TestPickFEFO(t *testing.T) {
	now := time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)
	soon := now.AddDate(0, 1, 0)
	later := now.AddDate(1, 0, 0)
	expired := now.AddDate(0, 0, -2)

	cand := func(number string, status BatchStatus, exp *time.Time, qty int64) BatchCandidate {
		return BatchCandidate{
			Batch:    Batch{ID: id.New(), BatchNumber: number, Status: status, ExpiresAt: exp},
			Quantity: decimal.NewFromInt(qty),
		}
	}

	t.Run("earliest expiry first", func(t *testing.T) {
		got := pickFEFO(DefaultPolicy(), []BatchCandidate{
			cand("B", BatchReleased, &later, 50),
			cand("A", BatchReleased, &soon, 50),
			cand("C", BatchReleased, nil, 50),
		}, decimal.NewFromInt(10), now)
		require.NotNil(t, got)
		assert.Equal(t, "A", got.BatchNumber)
	})

	t.Run("skips expired and quarantined", func(t *testing.T) {
		got := pickFEFO(DefaultPolicy(), []BatchCandidate{
			cand("OLD", BatchReleased, &expired, 50),
			cand("QC", BatchQuarantine, &soon, 50),
			cand("OK", BatchReleased, &later, 50),
		}, decimal.NewFromInt(10), now)
		require.NotNil(t, got)
		assert.Equal(t, "OK", got.BatchNumber)
	})

	t.Run("skips batches without enough stock", func(t *testing.T) {
		got := pickFEFO(DefaultPolicy(), []BatchCandidate{
			cand("SMALL", BatchReleased, &soon, 3),
			cand("BIG", BatchReleased, &later, 30),
		}, decimal.NewFromInt(10), now)
		require.NotNil(t, got)
		assert.Equal(t, "BIG", got.BatchNumber)
	})

	t.Run("no expiry goes last", func(t *testing.T) {
		got := pickFEFO(DefaultPolicy(), []BatchCandidate{
			cand("NOEXP", BatchReleased, nil, 50),
			cand("EXP", BatchReleased, &later, 50),
		}, decimal.NewFromInt(1), now)
		require.NotNil(t, got)
		assert.Equal(t, "EXP", got.BatchNumber)
	})

	t.Run("nothing fits", func(t *testing.T) {
		got := pickFEFO(DefaultPolicy(), []BatchCandidate{cand("A", BatchReleased, &soon, 1)}, decimal.NewFromInt(10), now)
		assert.Nil(t, got)
	})
}
