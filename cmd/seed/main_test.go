package main

import (
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmastock/internal/core/id"
	"pharmastock/internal/domain/movement"
	"pharmastock/internal/infrastructure/storage/postgres"
)

func TestBuildDataset(t *testing.T) {
	tenant, user := id.New(), id.New()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	d := buildDataset(gofakeit.New(42), tenant, user, 3, now)

	assert.Len(t, d.products, 3)
	assert.Len(t, d.warehouses, len(cities))
	assert.Len(t, d.locations, 2*len(cities))
	assert.Len(t, d.batches, 6)
	assert.Len(t, d.balances, 3)
	require.Len(t, d.requests, 1)
	assert.Len(t, d.items, 3)
	assert.Equal(t, "Cusco", d.requests[0].RequestedCity)

	for _, p := range d.products {
		assert.NotEmpty(t, p.Name)
	}
	for _, b := range d.balances {
		assert.Equal(t, d.locations[0].ID, b.LocationID)
		assert.True(t, b.Quantity.IsPositive())
		assert.Equal(t, user, b.CreatedBy)
		require.NotNil(t, b.BatchID)
	}
	var released int
	for _, b := range d.batches {
		assert.True(t, b.ExpiresAt.After(now))
		if b.Status == movement.BatchReleased {
			released++
		}
	}
	assert.Equal(t, 3, released)
}

func TestBuildDatasetWithoutProducts(t *testing.T) {
	d := buildDataset(gofakeit.New(42), id.New(), id.New(), 0, time.Now())

	assert.Empty(t, d.requests)
	assert.Empty(t, d.items)
	assert.Len(t, d.warehouses, len(cities))
}

func TestSeedRowColumnsMatchSchema(t *testing.T) {
	assert.Equal(t,
		[]string{"id", "tenant_id", "location_id", "product_id", "batch_id", "quantity", "created_by"},
		postgres.ExtractDBColumns[balanceRow]())
	assert.Equal(t,
		[]string{"id", "tenant_id", "product_id", "batch_number", "expires_at", "status"},
		postgres.ExtractDBColumns[batchRow]())
}
