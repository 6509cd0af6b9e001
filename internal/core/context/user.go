// Package context carries the authenticated caller and request trace ids
// through a request.
package context

import (
	"context"
	"slices"

	"pharmastock/internal/core/id"
)

// Caller is the principal every movement is recorded for. Tenant and user
// are parsed once when the token is validated.
type Caller struct {
	TenantID id.ID
	UserID   id.ID
	Email    string
	Roles    []string
}

// HasAnyRole reports whether the caller holds at least one of roles.
func (c *Caller) HasAnyRole(roles ...string) bool {
	for _, r := range roles {
		if slices.Contains(c.Roles, r) {
			return true
		}
	}
	return false
}

type callerKey struct{}

func WithCaller(ctx context.Context, c *Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFrom returns the caller stored in ctx, or nil outside authenticated requests.
func CallerFrom(ctx context.Context) *Caller {
	if c, ok := ctx.Value(callerKey{}).(*Caller); ok {
		return c
	}
	return nil
}
