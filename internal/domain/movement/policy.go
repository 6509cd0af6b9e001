package movement

import (
	"context"
	"slices"
	"sync"

	"pharmastock/internal/core/id"
	"pharmastock/internal/core/numerator"
)

// FulfillmentMode selects how a receipt is matched against open requests.
type FulfillmentMode string

const (
	// FulfillmentIndependent compares every open request with the full received
	// quantity. Several requests can be closed by one receipt even when their
	// sum exceeds it.
	FulfillmentIndependent FulfillmentMode = "independent"
	// FulfillmentAllocating processes requests oldest first and deducts each
	// closed request from what is left of the receipt.
	FulfillmentAllocating FulfillmentMode = "allocating"
	// FulfillmentDisabled never closes requests.
	FulfillmentDisabled FulfillmentMode = "disabled"
)

// Policy holds the per-tenant business toggles of the engine.
type Policy struct {
	// EnforceQuarantine blocks decreases from batches whose status is not allowed.
	EnforceQuarantine bool
	// AllowedStatuses lists batch statuses that may be issued. Empty means RELEASED only.
	AllowedStatuses []BatchStatus
	// EnforceExpiry blocks decreases from expired batches.
	EnforceExpiry bool
	// MinShelfLifeDays moves the expiry cutoff forward. 0 allows batches expiring today.
	MinShelfLifeDays int
	// FEFO picks the earliest-expiring released batch for OUT movements without a batch.
	FEFO bool
	// Fulfillment selects the request matching mode.
	Fulfillment FulfillmentMode
	// SequenceKey is the numerator key for movement numbers.
	SequenceKey string
}

// DefaultPolicy enforces quarantine and expiry, matches requests independently
// and numbers movements with the MS key.
func DefaultPolicy() Policy {
	return Policy{
		EnforceQuarantine: true,
		AllowedStatuses:   []BatchStatus{BatchReleased},
		EnforceExpiry:     true,
		Fulfillment:       FulfillmentIndependent,
		SequenceKey:       numerator.KeyMovement,
	}
}

// StatusAllowed reports whether a batch in status s may be issued.
func (p Policy) StatusAllowed(s BatchStatus) bool {
	if len(p.AllowedStatuses) == 0 {
		return s == BatchReleased
	}
	return slices.Contains(p.AllowedStatuses, s)
}

// NumberKey is the numerator key for movement numbers, MS unless overridden.
func (p Policy) NumberKey() string {
	if p.SequenceKey == "" {
		return numerator.KeyMovement
	}
	return p.SequenceKey
}

// PolicyProvider resolves the policy of a tenant.
type PolicyProvider interface {
	PolicyFor(ctx context.Context, tenantID id.ID) (Policy, error)
}

// StaticPolicies serves policies from configuration.
type StaticPolicies struct {
	mu        sync.RWMutex
	def       Policy
	overrides map[id.ID]Policy
}

// NewStaticPolicies creates a provider with a default and optional overrides.
func NewStaticPolicies(def Policy, overrides map[id.ID]Policy) *StaticPolicies {
	o := make(map[id.ID]Policy, len(overrides))
	for k, v := range overrides {
		o[k] = v
	}
	return &StaticPolicies{def: def, overrides: o}
}

// PolicyFor implements PolicyProvider.
func (s *StaticPolicies) PolicyFor(_ context.Context, tenantID id.ID) (Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.overrides[tenantID]; ok {
		return p, nil
	}
	return s.def, nil
}

// Set replaces the policy of one tenant.
func (s *StaticPolicies) Set(tenantID id.ID, p Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[tenantID] = p
}

var _ PolicyProvider = (*StaticPolicies)(nil)
