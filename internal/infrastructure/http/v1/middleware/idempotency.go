package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"factorydesk/internal/core/apperror"
	appctx "factorydesk/internal/core/context"
	"factorydesk/internal/infrastructure/storage/postgres"
	"factorydesk/pkg/logger"
)

const HeaderIdempotencyKey = "X-Idempotency-Key"
const maxIdempotencyBodyBytes = 1 << 20 // 1 MiB

// IdempotencyStore claims and completes idempotency keys.
type IdempotencyStore interface {
	Acquire(ctx context.Context, userID, key, operation, requestHash string) (*postgres.IdempotencyReplay, error)
	Complete(ctx context.Context, userID, key string, statusCode int, contentType string, body []byte) error
	Release(ctx context.Context, userID, key string) error
}

// recordingWriter keeps a copy of the response body.
type recordingWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *recordingWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency replays the stored response of a POST/PUT/PATCH repeated with
// the same X-Idempotency-Key. Only successful responses are stored; a
// failed request releases its key. Requests without the header pass
// through.
func Idempotency(store IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
		default:
			c.Next()
			return
		}

		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		userID := appctx.GetUserID(c.Request.Context())

		limited := io.LimitReader(c.Request.Body, maxIdempotencyBodyBytes+1)
		body, err := io.ReadAll(limited)
		if err != nil {
			_ = c.Error(apperror.NewValidation("unreadable request body"))
			c.Abort()
			return
		}
		if len(body) > maxIdempotencyBodyBytes {
			appErr := apperror.NewValidation("request body too large for idempotency")
			appErr.HTTPStatus = http.StatusRequestEntityTooLarge
			_ = c.Error(appErr.WithDetail("max_bytes", maxIdempotencyBodyBytes))
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		hash := sha256.Sum256(body)
		requestHash := hex.EncodeToString(hash[:])

		operation := c.Request.Method + " " + c.Request.URL.Path

		replay, err := store.Acquire(c.Request.Context(), userID, key, operation, requestHash)
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

		rec := &recordingWriter{ResponseWriter: c.Writer}
		c.Writer = rec
		c.Next()

		// The request context may already be cancelled by Timeout.
		ctx := context.WithoutCancel(c.Request.Context())
		status := rec.Status()
		if len(c.Errors) > 0 || status >= http.StatusBadRequest {
			if err := store.Release(ctx, userID, key); err != nil {
				logger.Warn(ctx, "idempotency key release failed", "key", key, "error", err)
			}
			return
		}
		if err := store.Complete(ctx, userID, key, status, rec.Header().Get("Content-Type"), rec.body.Bytes()); err != nil {
			logger.Warn(ctx, "idempotency key completion failed", "key", key, "error", err)
		}
	}
}
