package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

// RequestObserver is implemented by *telemetry.Metrics.
type RequestObserver interface {
	ObserveRequest(method, route string, status int, d time.Duration)
}

// Metrics records every request under its route pattern. Unmatched paths
// share one label so scanners cannot blow up cardinality.
func Metrics(obs RequestObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		obs.ObserveRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
