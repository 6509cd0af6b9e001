package middleware

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	appctx "pharmastock/internal/core/context"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderTraceID   = "X-Trace-ID"
)

// Trace assigns the request and trace ids echoed in responses and logs.
// An X-Trace-ID header wins; otherwise the OpenTelemetry trace id of the
// server span is used when Tracing runs first, so logs and spans correlate.
func Trace() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		traceID := c.GetHeader(HeaderTraceID)
		if sc := trace.SpanContextFromContext(ctx); traceID == "" && sc.HasTraceID() {
			traceID = sc.TraceID().String()
		}
		t := appctx.NewTrace(traceID, c.GetHeader(HeaderRequestID))

		c.Request = c.Request.WithContext(appctx.WithTrace(ctx, t))
		c.Set("request_id", t.RequestID)
		c.Header(HeaderRequestID, t.RequestID)
		c.Header(HeaderTraceID, t.TraceID)

		c.Next()
	}
}
