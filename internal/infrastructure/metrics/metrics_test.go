package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware_UsesRoutePattern(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/orders/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for _, path := range []string{"/orders/1", "/orders/2", "/missing"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("/orders/:id", "GET", "204")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("unmatched", "GET", "404")))
}

func TestObserveSummaryOperation(t *testing.T) {
	m := New()

	m.ObserveSummaryOperation("approve", "ok", 10*time.Millisecond)
	m.ObserveSummaryOperation("approve", "ok", 20*time.Millisecond)
	m.ObserveSummaryOperation("approve", "not_found", time.Millisecond)
	m.ObserveOutbox("published", 3)
	m.ObserveOutbox("failed", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.summaryOps.WithLabelValues("approve", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.summaryOps.WithLabelValues("approve", "not_found")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.outboxMessages.WithLabelValues("published")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.outboxMessages))
}

func TestHandler_Exposes(t *testing.T) {
	m := New()
	m.ObserveSummaryOperation("recompute", "ok", time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `factorydesk_summary_operations_total{op="recompute",outcome="ok"} 1`))
}
