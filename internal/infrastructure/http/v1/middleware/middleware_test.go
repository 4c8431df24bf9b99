package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"factorydesk/internal/core/apperror"
	appctx "factorydesk/internal/core/context"
	"factorydesk/internal/core/id"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubValidator struct {
	user *appctx.UserContext
}

func (v stubValidator) ValidateToken(token string) (*appctx.UserContext, error) {
	if token != "good" {
		return nil, errors.New("bad signature")
	}
	return v.user, nil
}

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(Recovery(), Trace(), ErrorHandler())
	r.Use(mw...)
	return r
}

func do(r http.Handler, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func TestErrorHandler(t *testing.T) {
	r := newEngine()
	r.GET("/missing", func(c *gin.Context) {
		_ = c.Error(apperror.NewNotFound("order", "42"))
	})
	r.GET("/boom", func(c *gin.Context) {
		_ = c.Error(errors.New("pq: password authentication failed"))
	})
	r.GET("/internal", func(c *gin.Context) {
		_ = c.Error(apperror.NewInternal(errors.New("secret detail")))
	})
	r.GET("/panic", func(c *gin.Context) { panic("kaboom") })

	rec, body := do(r, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apperror.CodeNotFound, body["code"])

	for _, path := range []string{"/boom", "/internal", "/panic"} {
		rec, body = do(r, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code, path)
		assert.Equal(t, apperror.CodeInternal, body["code"], path)
		assert.Equal(t, "Internal server error", body["message"], path)
		assert.NotContains(t, rec.Body.String(), "secret", path)
		assert.NotContains(t, rec.Body.String(), "password", path)
	}
}

func TestTrace_EchoesRequestID(t *testing.T) {
	r := newEngine()
	r.GET("/x", func(c *gin.Context) {
		assert.Equal(t, "req-1", appctx.GetRequestID(c.Request.Context()))
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderRequestID, "req-1")
	rec, _ := do(r, req)
	assert.Equal(t, "req-1", rec.Header().Get(HeaderRequestID))
	assert.NotEmpty(t, rec.Header().Get(HeaderTraceID))
}

func TestAuthAndPermission(t *testing.T) {
	company := id.New()
	user := &appctx.UserContext{
		UserID:      "u-1",
		CompanyID:   company,
		Role:        "production",
		Permissions: []string{"production_summary:read"},
	}

	r := newEngine(Auth(stubValidator{user: user}))
	r.GET("/read", RequirePermission("production_summary:read"), func(c *gin.Context) {
		assert.Equal(t, company, appctx.GetCompanyID(c.Request.Context()))
		c.Status(http.StatusOK)
	})
	r.GET("/approve", RequirePermission("production_summary:approve"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"no header", "/read", "", http.StatusUnauthorized},
		{"wrong scheme", "/read", "Basic good", http.StatusUnauthorized},
		{"bad token", "/read", "Bearer nope", http.StatusUnauthorized},
		{"allowed", "/read", "Bearer good", http.StatusOK},
		{"missing permission", "/approve", "Bearer good", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec, _ := do(r, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestRequirePermission_SuperAdmin(t *testing.T) {
	admin := &appctx.UserContext{UserID: "root", IsSuperAdmin: true}

	r := newEngine(Auth(stubValidator{user: admin}))
	r.POST("/approve", RequirePermission("production_summary:approve"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/approve", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec, _ := do(r, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTimeout(t *testing.T) {
	r := newEngine(Timeout(10 * time.Millisecond))
	r.GET("/slow", func(c *gin.Context) {
		<-c.Request.Context().Done()
		_ = c.Error(c.Request.Context().Err())
	})

	rec, body := do(r, httptest.NewRequest(http.MethodGet, "/slow", nil))
	require.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Equal(t, apperror.CodeTimeout, body["code"])
}
