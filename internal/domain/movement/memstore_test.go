package movement

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"pharmastock/internal/core/apperror"
	"pharmastock/internal/core/id"
	"pharmastock/internal/core/numerator"
)

// memStore is an in-memory fake of every repository the engine uses. It also
// acts as tx.Manager and numerator.Generator so a rolled back transaction
// restores balances, movements, batches, requests and counters together.
type memStore struct {
	mu sync.Mutex

	state memState

	// failMatch makes request listing fail, to exercise best-effort fulfillment.
	failMatch error
	// failMovementInsert makes Insert fail once the ledger has run.
	failMovementInsert error

	// batchLocks records the lock of every batch read, in order.
	batchLocks []BatchLock
	// markOpenedCalls counts MarkOpened calls, including no-ops.
	markOpenedCalls int
}

type memState struct {
	products  map[id.ID]Product
	locations map[id.ID]Location
	batches   map[id.ID]Batch
	balances  map[BalanceKey]Balance
	movements []Movement
	requests  map[id.ID]Request
	counters  map[string]int64
}

func newMemStore() *memStore {
	return &memStore{state: memState{
		products:  map[id.ID]Product{},
		locations: map[id.ID]Location{},
		batches:   map[id.ID]Batch{},
		balances:  map[BalanceKey]Balance{},
		requests:  map[id.ID]Request{},
		counters:  map[string]int64{},
	}}
}

func (s memState) clone() memState {
	c := memState{
		products:  make(map[id.ID]Product, len(s.products)),
		locations: make(map[id.ID]Location, len(s.locations)),
		batches:   make(map[id.ID]Batch, len(s.batches)),
		balances:  make(map[BalanceKey]Balance, len(s.balances)),
		movements: append([]Movement(nil), s.movements...),
		requests:  make(map[id.ID]Request, len(s.requests)),
		counters:  make(map[string]int64, len(s.counters)),
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.locations {
		c.locations[k] = v
	}
	for k, v := range s.batches {
		c.batches[k] = v
	}
	for k, v := range s.balances {
		c.balances[k] = v
	}
	for k, v := range s.requests {
		v.Items = append([]RequestItem(nil), v.Items...)
		c.requests[k] = v
	}
	for k, v := range s.counters {
		c.counters[k] = v
	}
	return c
}

func (m *memStore) asStore() Store {
	return Store{
		Products:  m,
		Locations: m,
		Batches:   memBatches{m},
		Balances:  memBalances{m},
		Movements: m,
		Requests:  m,
	}
}

// --- tx.Manager ---

type inTxKey struct{}

func (m *memStore) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(inTxKey{}) != nil {
		return fn(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	if err := fn(context.WithValue(ctx, inTxKey{}, true)); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

func (m *memStore) RunInSavepoint(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(inTxKey{}) == nil {
		return m.RunInTransaction(ctx, fn)
	}
	snapshot := m.state.clone()
	if err := fn(ctx); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

// --- numerator.Generator ---

func (m *memStore) Next(_ context.Context, tenantID id.ID, year int, key string) (numerator.Number, error) {
	k := tenantID.String() + "|" + key + "|" + numerator.Format("", year, 0)
	m.state.counters[k]++
	return numerator.NewNumber(key, year, m.state.counters[k]), nil
}

func (m *memStore) counter(tenantID id.ID, year int, key string) int64 {
	return m.state.counters[tenantID.String()+"|"+key+"|"+numerator.Format("", year, 0)]
}

// --- readers ---

func (m *memStore) GetProduct(_ context.Context, tenantID, productID id.ID) (*Product, error) {
	p, ok := m.state.products[productID]
	if !ok || p.TenantID != tenantID {
		return nil, apperror.NewNotFound("product", productID)
	}
	return &p, nil
}

func (m *memStore) GetLocation(_ context.Context, tenantID, locationID id.ID) (*Location, error) {
	l, ok := m.state.locations[locationID]
	if !ok || l.TenantID != tenantID {
		return nil, apperror.NewNotFound("location", locationID)
	}
	return &l, nil
}

// --- batches ---

type memBatches struct{ m *memStore }

func (b memBatches) Get(_ context.Context, tenantID, productID, batchID id.ID, lock BatchLock) (*Batch, error) {
	b.m.batchLocks = append(b.m.batchLocks, lock)
	v, ok := b.m.state.batches[batchID]
	if !ok || v.TenantID != tenantID || v.ProductID != productID {
		return nil, apperror.NewNotFound("batch", batchID)
	}
	return &v, nil
}

func (b memBatches) MarkOpened(_ context.Context, tenantID, batchID id.ID, at time.Time, by id.ID) (bool, error) {
	b.m.markOpenedCalls++
	v, ok := b.m.state.batches[batchID]
	if !ok || v.TenantID != tenantID || v.OpenedAt != nil {
		return false, nil
	}
	v.OpenedAt = &at
	v.OpenedBy = &by
	v.Version++
	b.m.state.batches[batchID] = v
	return true, nil
}

// --- balances ---

type memBalances struct{ m *memStore }

func (b memBalances) GetForUpdate(_ context.Context, key BalanceKey) (*Balance, error) {
	v, ok := b.m.state.balances[key]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (b memBalances) Create(_ context.Context, bal *Balance) (*Balance, error) {
	k := bal.Key()
	if cur, ok := b.m.state.balances[k]; ok {
		cur.Quantity = cur.Quantity.Add(bal.Quantity)
		cur.Version++
		b.m.state.balances[k] = cur
		return &cur, nil
	}
	v := *bal
	b.m.state.balances[k] = v
	return &v, nil
}

func (b memBalances) Save(_ context.Context, bal *Balance) (*Balance, error) {
	if bal.Quantity.IsNegative() {
		return nil, errors.New("check constraint: quantity >= 0")
	}
	v := *bal
	v.Version++
	b.m.state.balances[bal.Key()] = v
	return &v, nil
}

func (b memBalances) ListBatchCandidates(_ context.Context, tenantID, locationID, productID id.ID) ([]BatchCandidate, error) {
	var out []BatchCandidate
	for k, v := range b.m.state.balances {
		if k.TenantID != tenantID || k.LocationID != locationID || k.ProductID != productID || id.IsNil(k.BatchID) {
			continue
		}
		if !v.Quantity.IsPositive() {
			continue
		}
		out = append(out, BatchCandidate{Batch: b.m.state.batches[k.BatchID], Quantity: v.Quantity})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Batch.BatchNumber < out[j].Batch.BatchNumber })
	return out, nil
}

// --- movements ---

func (m *memStore) Insert(_ context.Context, mv *Movement) error {
	if m.failMovementInsert != nil {
		return m.failMovementInsert
	}
	m.state.movements = append(m.state.movements, *mv)
	return nil
}

// --- requests ---

func (m *memStore) ListOpenForCity(_ context.Context, tenantID id.ID, city string, productID id.ID) ([]*Request, error) {
	if m.failMatch != nil {
		return nil, m.failMatch
	}
	var out []*Request
	for _, r := range m.state.requests {
		if r.TenantID != tenantID || r.Status != RequestOpen || r.RequestedCity != city {
			continue
		}
		c := r
		c.Items = nil
		for _, it := range r.Items {
			if it.ProductID == productID && it.RemainingQuantity.IsPositive() {
				c.Items = append(c.Items, it)
			}
		}
		if len(c.Items) > 0 {
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) MarkFulfilled(_ context.Context, tenantID, requestID id.ID, itemIDs []id.ID, at time.Time, by id.ID) error {
	r, ok := m.state.requests[requestID]
	if !ok || r.TenantID != tenantID {
		return apperror.NewNotFound("movement request", requestID)
	}
	r.Status = RequestFulfilled
	r.FulfilledAt = &at
	r.FulfilledBy = &by
	items := append([]RequestItem(nil), r.Items...)
	for i := range items {
		for _, itemID := range itemIDs {
			if items[i].ID == itemID {
				items[i].RemainingQuantity = decimal.Zero
			}
		}
	}
	r.Items = items
	m.state.requests[requestID] = r
	return nil
}

// --- fixture helpers ---

type fixture struct {
	store   *memStore
	tenant  id.ID
	user    id.ID
	product id.ID
	city    string
}

func newFixture() *fixture {
	f := &fixture{
		store:   newMemStore(),
		tenant:  id.New(),
		user:    id.New(),
		product: id.New(),
		city:    "Lima",
	}
	f.store.state.products[f.product] = Product{ID: f.product, TenantID: f.tenant, IsActive: true}
	return f
}

func (f *fixture) location(active bool) id.ID {
	lid := id.New()
	f.store.state.locations[lid] = Location{ID: lid, TenantID: f.tenant, WarehouseID: id.New(), IsActive: active, City: f.city}
	return lid
}

func (f *fixture) batch(number string, status BatchStatus, expires *time.Time) id.ID {
	bid := id.New()
	f.store.state.batches[bid] = Batch{ID: bid, TenantID: f.tenant, ProductID: f.product, BatchNumber: number, Status: status, ExpiresAt: expires, Version: 1}
	return bid
}

func (f *fixture) stock(location id.ID, batch *id.ID, qty int64) {
	k := NewBalanceKey(f.tenant, location, f.product, batch)
	f.store.state.balances[k] = Balance{
		ID: id.New(), TenantID: f.tenant, LocationID: location, ProductID: f.product,
		BatchID: batch, Quantity: decimal.NewFromInt(qty), Version: 1,
	}
}

func (f *fixture) qty(location id.ID, batch *id.ID) decimal.Decimal {
	b, ok := f.store.state.balances[NewBalanceKey(f.tenant, location, f.product, batch)]
	if !ok {
		return decimal.Zero
	}
	return b.Quantity
}

func (f *fixture) request(created time.Time, items ...int64) id.ID {
	rid := id.New()
	r := Request{ID: rid, TenantID: f.tenant, RequestedCity: f.city, Status: RequestOpen, CreatedAt: created}
	for _, q := range items {
		r.Items = append(r.Items, RequestItem{ID: id.New(), RequestID: rid, ProductID: f.product, RemainingQuantity: decimal.NewFromInt(q)})
	}
	f.store.state.requests[rid] = r
	return rid
}

func (f *fixture) engine(p Policy, opts ...Option) *Engine {
	return NewEngine(f.store.asStore(), f.store, f.store, NewStaticPolicies(p, nil), opts...)
}

func (f *fixture) cmd(t Type, qty int64) Command {
	return Command{
		TenantID:  f.tenant,
		UserID:    f.user,
		Type:      t,
		ProductID: f.product,
		Quantity:  decimal.NewFromInt(qty),
	}
}

func ptr[T any](v T) *T { return &v }
