package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"pharmastock/internal/core/apperror"
	appctx "pharmastock/internal/core/context"
	"pharmastock/internal/infrastructure/storage/postgres"
	"pharmastock/pkg/logger"
)

const (
	HeaderIdempotencyKey    = "X-Idempotency-Key"
	maxIdempotencyBodyBytes = 1 << 20
)

// IdempotencyStore is implemented by *postgres.IdempotencyStore.
type IdempotencyStore interface {
	Acquire(ctx context.Context, k postgres.IdempotencyKey) (*postgres.IdempotencyReplay, error)
	Complete(ctx context.Context, k postgres.IdempotencyKey, resp postgres.IdempotencyReplay) error
	Release(ctx context.Context, k postgres.IdempotencyKey) error
}

// bodyRecorder keeps a copy of the response body.
type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency answers a repeated POST carrying the same X-Idempotency-Key
// with the stored response. Success and business rejections are stored;
// server errors release the key so the client may retry. Must run after Auth.
func Idempotency(store IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if c.Request.Method != http.MethodPost || key == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		caller := appctx.CallerFrom(ctx)
		if caller == nil {
			abortUnauthorized(c, "authentication required")
			return
		}

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxIdempotencyBodyBytes+1))
		if err != nil {
			_ = c.Error(apperror.NewValidation("unreadable request body"))
			c.Abort()
			return
		}
		if len(body) > maxIdempotencyBodyBytes {
			appErr := apperror.NewValidation("request body too large for idempotency")
			appErr.HTTPStatus = http.StatusRequestEntityTooLarge
			_ = c.Error(appErr.WithDetail("maxBytes", maxIdempotencyBodyBytes))
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		hash := sha256.Sum256(body)

		k := postgres.IdempotencyKey{
			TenantID:    caller.TenantID,
			UserID:      caller.UserID,
			Key:         key,
			Operation:   c.Request.Method + " " + c.FullPath(),
			RequestHash: hex.EncodeToString(hash[:]),
		}

		replay, err := store.Acquire(ctx, k)
		if err != nil {
			if _, ok := apperror.AsAppError(err); !ok {
				err = apperror.NewInternal(err).WithDetail("component", "idempotency")
			}
			_ = c.Error(err)
			c.Abort()
			return
		}
		if replay != nil {
			c.Header("Idempotent-Replayed", "true")
			c.Data(replay.StatusCode, replay.ContentType, replay.Body)
			c.Abort()
			return
		}

		rec := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = rec
		c.Next()

		status, contentType, stored := rec.Status(), rec.Header().Get("Content-Type"), rec.body.Bytes()
		if len(c.Errors) > 0 && !rec.Written() {
			// ErrorHandler writes after this middleware returns; store what it will send.
			var resp ErrorResponse
			status, resp = errorResponse(c, c.Errors.Last().Err)
			contentType = "application/json; charset=utf-8"
			stored, _ = json.Marshal(resp)
		}

		if status >= http.StatusInternalServerError {
			if err := store.Release(ctx, k); err != nil {
				logger.Warn(ctx, "release idempotency key failed", "key", key, "error", err)
			}
			return
		}
		if err := store.Complete(ctx, k, postgres.IdempotencyReplay{
			StatusCode:  status,
			ContentType: contentType,
			Body:        append([]byte(nil), stored...),
		}); err != nil {
			logger.Warn(ctx, "complete idempotency key failed", "key", key, "error", err)
		}
	}
}
