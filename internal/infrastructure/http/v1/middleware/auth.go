package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"pharmastock/internal/core/apperror"
	appctx "pharmastock/internal/core/context"
)

// JWTValidator validates a bearer token and returns the caller.
type JWTValidator interface {
	ValidateToken(raw string) (*appctx.Caller, error)
}

// Auth puts the caller of a valid bearer token into the request context.
func Auth(validator JWTValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		scheme, token, ok := strings.Cut(c.GetHeader("Authorization"), " ")
		if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
			abortUnauthorized(c, "missing or malformed bearer token")
			return
		}

		caller, err := validator.ValidateToken(strings.TrimSpace(token))
		if err != nil {
			abortUnauthorized(c, "invalid token")
			return
		}

		c.Request = c.Request.WithContext(appctx.WithCaller(c.Request.Context(), caller))
		c.Next()
	}
}

// RequireRole lets the request through when the caller has any of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := appctx.CallerFrom(c.Request.Context())
		if caller == nil {
			abortUnauthorized(c, "authentication required")
			return
		}
		if !caller.HasAnyRole(roles...) {
			_ = c.Error(apperror.NewForbidden("insufficient permissions").WithDetail("requiredRoles", roles))
			c.Abort()
			return
		}
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	_ = c.Error(apperror.NewUnauthorized(message))
	c.Abort()
}
