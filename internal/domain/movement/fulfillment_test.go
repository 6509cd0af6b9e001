package movement

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmastock/internal/core/id"
)

func matchIn(f *fixture, received int64) MatchInput {
	return MatchInput{
		TenantID:  f.tenant,
		ProductID: f.product,
		City:      f.city,
		Received:  decimal.NewFromInt(received),
		At:        fixedNow,
		By:        f.user,
	}
}

func TestMatcherIndependentMode(t *testing.T) {
	f := newFixture()
	r1 := f.request(fixedNow.Add(-2*time.Hour), 12)
	r2 := f.request(fixedNow.Add(-time.Hour), 15)
	big := f.request(fixedNow, 30)

	got, err := NewMatcher(f.store).Match(context.Background(), FulfillmentIndependent, matchIn(f, 20))
	require.NoError(t, err)

	// Each request is compared with the full receipt, so 12 and 15 both close
	// although together they exceed 20.
	assert.ElementsMatch(t, []id.ID{r1, r2}, got)
	assert.Equal(t, RequestOpen, f.store.state.requests[big].Status)
}

func TestMatcherAllocatingMode(t *testing.T) {
	f := newFixture()
	r1 := f.request(fixedNow.Add(-2*time.Hour), 12)
	r2 := f.request(fixedNow.Add(-time.Hour), 15)
	r3 := f.request(fixedNow, 8)

	got, err := NewMatcher(f.store).Match(context.Background(), FulfillmentAllocating, matchIn(f, 20))
	require.NoError(t, err)

	assert.Equal(t, []id.ID{r1, r3}, got)
	assert.Equal(t, RequestOpen, f.store.state.requests[r2].Status)
}

func TestMatcherIgnoresOtherCitiesAndProducts(t *testing.T) {
	f := newFixture()
	other := f.request(fixedNow, 5)
	r := f.store.state.requests[other]
	r.RequestedCity = "Cusco"
	f.store.state.requests[other] = r

	foreignProduct := id.New()
	mixed := f.request(fixedNow, 4)
	r = f.store.state.requests[mixed]
	r.Items = append(r.Items, RequestItem{ID: id.New(), RequestID: mixed, ProductID: foreignProduct, RemainingQuantity: decimal.NewFromInt(100)})
	f.store.state.requests[mixed] = r

	got, err := NewMatcher(f.store).Match(context.Background(), FulfillmentIndependent, matchIn(f, 5))
	require.NoError(t, err)
	assert.Equal(t, []id.ID{mixed}, got)

	closed := f.store.state.requests[mixed]
	for _, it := range closed.Items {
		if it.ProductID == foreignProduct {
			assert.True(t, it.RemainingQuantity.Equal(decimal.NewFromInt(100)), "other product lines stay untouched")
		} else {
			assert.True(t, it.RemainingQuantity.IsZero())
		}
	}
	assert.Equal(t, RequestOpen, f.store.state.requests[other].Status)
}

func TestMatcherExactQuantityFulfills(t *testing.T) {
	f := newFixture()
	r := f.request(fixedNow, 7, 3)

	got, err := NewMatcher(f.store).Match(context.Background(), FulfillmentIndependent, matchIn(f, 10))
	require.NoError(t, err)
	assert.Equal(t, []id.ID{r}, got)
}

func TestMatcherNoCity(t *testing.T) {
	f := newFixture()
	f.request(fixedNow, 1)

	in := matchIn(f, 10)
	in.City = ""
	got, err := NewMatcher(f.store).Match(context.Background(), FulfillmentIndependent, in)
	require.NoError(t, err)
	assert.Empty(t, got)
}
