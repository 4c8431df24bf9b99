package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"factorydesk/internal/core/apperror"
	"factorydesk/internal/infrastructure/storage/postgres"
)

type memEntry struct {
	operation string
	hash      string
	done      bool
	replay    postgres.IdempotencyReplay
}

type memIdempotency struct {
	mu      sync.Mutex
	entries map[string]*memEntry
}

func newMemIdempotency() *memIdempotency {
	return &memIdempotency{entries: make(map[string]*memEntry)}
}

func (m *memIdempotency) Acquire(_ context.Context, userID, key, operation, hash string) (*postgres.IdempotencyReplay, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[userID+"/"+key]
	if !ok {
		m.entries[userID+"/"+key] = &memEntry{operation: operation, hash: hash}
		return nil, nil
	}
	if e.operation != operation || e.hash != hash {
		return nil, apperror.NewIdempotencyMismatch(key)
	}
	if !e.done {
		return nil, apperror.NewIdempotencyConflict(key)
	}
	r := e.replay
	return &r, nil
}

func (m *memIdempotency) Complete(_ context.Context, userID, key string, status int, contentType string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[userID+"/"+key]
	e.done = true
	e.replay = postgres.IdempotencyReplay{StatusCode: status, ContentType: contentType, Body: append([]byte(nil), body...)}
	return nil
}

func (m *memIdempotency) Release(_ context.Context, userID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, userID+"/"+key)
	return nil
}

func TestIdempotency_ReplaysSuccess(t *testing.T) {
	store := newMemIdempotency()
	calls := 0

	r := newEngine(Idempotency(store))
	r.POST("/orders", func(c *gin.Context) {
		calls++
		c.JSON(http.StatusCreated, gin.H{"number": "SO-2024-00001", "call": calls})
	})

	post := func(key, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
		req.Header.Set(HeaderIdempotencyKey, key)
		rec, _ := do(r, req)
		return rec
	}

	first := post("k1", `{"a":1}`)
	require.Equal(t, http.StatusCreated, first.Code)

	second := post("k1", `{"a":1}`)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, 1, calls)

	mismatch := post("k1", `{"a":2}`)
	assert.Equal(t, http.StatusConflict, mismatch.Code)
	assert.Equal(t, 1, calls)

	post("k2", `{"a":1}`)
	assert.Equal(t, 2, calls)
}

func TestIdempotency_ReleasesOnError(t *testing.T) {
	store := newMemIdempotency()
	calls := 0

	r := newEngine(Idempotency(store))
	r.POST("/orders", func(c *gin.Context) {
		calls++
		if calls == 1 {
			_ = c.Error(apperror.NewValidation("bad line"))
			c.Abort()
			return
		}
		c.JSON(http.StatusCreated, gin.H{"ok": true})
	})

	for _, want := range []int{http.StatusBadRequest, http.StatusCreated} {
		req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{}`))
		req.Header.Set(HeaderIdempotencyKey, "retry-me")
		rec, _ := do(r, req)
		assert.Equal(t, want, rec.Code)
	}
	assert.Equal(t, 2, calls)
}

func TestIdempotency_IgnoresReadsAndMissingKey(t *testing.T) {
	store := newMemIdempotency()
	r := newEngine(Idempotency(store))
	r.GET("/orders", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/orders", func(c *gin.Context) { c.Status(http.StatusCreated) })

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set(HeaderIdempotencyKey, "k")
	rec, _ := do(r, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(r, httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, store.entries)
}
