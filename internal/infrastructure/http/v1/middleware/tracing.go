package middleware

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	appctx "pharmastock/internal/core/context"
)

// Tracing starts a server span per request named after the route pattern.
func Tracing(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName)
}

// SpanIdentity tags the request span with the caller. Must run after Auth.
func SpanIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if caller := appctx.CallerFrom(c.Request.Context()); caller != nil && span.IsRecording() {
			span.SetAttributes(
				attribute.String("tenant.id", caller.TenantID.String()),
				attribute.String("user.id", caller.UserID.String()),
			)
		}
		c.Next()
	}
}
