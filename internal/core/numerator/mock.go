package numerator

import (
	"context"
	"sync"

	"pharmastock/internal/core/id"
)

// MockGenerator is a test implementation of Generator.
// Use in unit tests to avoid database dependencies.
type MockGenerator struct {
	NextFunc func(ctx context.Context, tenantID id.ID, year int, key string) (Number, error)

	mu       sync.Mutex
	counters map[string]int64
}

// Next implements Generator. Without NextFunc it counts per key in memory.
func (m *MockGenerator) Next(ctx context.Context, tenantID id.ID, year int, key string) (Number, error) {
	if m.NextFunc != nil {
		return m.NextFunc(ctx, tenantID, year, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = make(map[string]int64)
	}
	k := tenantID.String() + "|" + key + "|" + Format(key, year, 0)
	m.counters[k]++
	return NewNumber(key, year, m.counters[k]), nil
}

// Set forces the current value of a counter. The next call returns value+1.
func (m *MockGenerator) Set(tenantID id.ID, year int, key string, value int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = make(map[string]int64)
	}
	m.counters[tenantID.String()+"|"+key+"|"+Format(key, year, 0)] = value
}

var _ Generator = (*MockGenerator)(nil)
