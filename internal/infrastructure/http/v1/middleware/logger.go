package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"pharmastock/internal/core/apperror"
	"pharmastock/pkg/logger"
)

// Logger installs log as the request logger and writes one line per request.
// Server errors log at error level, rejected requests at warn.
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Request = c.Request.WithContext(logger.WithLogger(c.Request.Context(), log))

		c.Next()

		status := c.Writer.Status()
		kv := []any{
			"method", c.Request.Method,
			"route", c.FullPath(),
			"path", c.Request.URL.Path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"bytes", c.Writer.Size(),
			"client_ip", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			err := c.Errors.Last().Err
			if appErr, ok := apperror.AsAppError(err); ok {
				kv = append(kv, "code", appErr.Code)
			}
			kv = append(kv, "error", err.Error())
		}

		l := log.WithContext(c.Request.Context())
		switch {
		case status >= http.StatusInternalServerError:
			l.Errorw("http request", kv...)
		case status >= http.StatusBadRequest:
			l.Warnw("http request", kv...)
		default:
			l.Infow("http request", kv...)
		}
	}
}
