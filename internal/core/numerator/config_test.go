package numerator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmastock/internal/core/id"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		key   string
		year  int
		value int64
		want  string
	}{
		{"MS", 2025, 42, "MS2025-42"},
		{"MS", 2025, 1, "MS2025-1"},
		{"LOT", 2025, 7, "LOT-2025007"},
		{"LOT", 2024, 1234, "LOT-20241234"},
		{"lot", 2025, 3, "LOT-2025003"},
		{"RQ", 2026, 10, "RQ2026-10"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(tt.key, tt.year, tt.value))
		})
	}
}

func TestMockGeneratorCountsPerKey(t *testing.T) {
	g := &MockGenerator{}
	ctx := context.Background()
	tenant := id.New()

	a, err := g.Next(ctx, tenant, 2025, KeyMovement)
	require.NoError(t, err)
	b, err := g.Next(ctx, tenant, 2025, KeyMovement)
	require.NoError(t, err)
	c, err := g.Next(ctx, tenant, 2026, KeyMovement)
	require.NoError(t, err)

	assert.Equal(t, "MS2025-1", a.Formatted)
	assert.Equal(t, "MS2025-2", b.Formatted)
	assert.Equal(t, int64(1), c.Value)
}
