// Package middleware provides HTTP middleware components.
package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"pharmastock/internal/core/apperror"
	"pharmastock/pkg/logger"
)

// Recovery turns a panic into an INTERNAL_ERROR response. Any transaction the
// handler had open is rolled back by the transaction manager as the panic
// unwinds, so no stock change survives it.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			if r == http.ErrAbortHandler {
				panic(r)
			}

			logger.Error(c.Request.Context(), "panic recovered",
				"route", c.FullPath(),
				"panic", r,
				"stack", string(debug.Stack()),
			)

			if c.Writer.Written() {
				c.Abort()
				return
			}
			_ = c.Error(apperror.NewInternal(fmt.Errorf("panic: %v", r)).
				WithDetail("requestId", c.GetString("request_id")))
			c.Abort()
		}()
		c.Next()
	}
}
