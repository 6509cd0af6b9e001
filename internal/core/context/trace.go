package context

import (
	"context"

	"pharmastock/internal/core/id"
)

// Trace holds the ids that tie log lines of one request together.
type Trace struct {
	TraceID   string
	RequestID string
}

type traceKey struct{}

func WithTrace(ctx context.Context, t *Trace) context.Context {
	return context.WithValue(ctx, traceKey{}, t)
}

// TraceFrom returns the trace stored in ctx, or nil.
func TraceFrom(ctx context.Context) *Trace {
	if t, ok := ctx.Value(traceKey{}).(*Trace); ok {
		return t
	}
	return nil
}

// NewTrace fills missing ids with fresh time-ordered ones.
func NewTrace(traceID, requestID string) *Trace {
	if traceID == "" {
		traceID = id.New().String()
	}
	if requestID == "" {
		requestID = id.New().String()
	}
	return &Trace{TraceID: traceID, RequestID: requestID}
}
