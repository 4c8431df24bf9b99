package v1

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"factorydesk/internal/core/apperror"
	appctx "factorydesk/internal/core/context"
	"factorydesk/internal/core/id"
	"factorydesk/internal/core/types"
	"factorydesk/internal/domain/audit"
	"factorydesk/internal/domain/auth"
	"factorydesk/internal/domain/catalogs/production_group"
	"factorydesk/internal/domain/documents/sales_order"
	"factorydesk/internal/domain/registers/production_summary"
	"factorydesk/internal/infrastructure/http/v1/handlers"
	"factorydesk/internal/infrastructure/metrics"
	"factorydesk/internal/infrastructure/storage/postgres"
	"factorydesk/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var (
	companyA = id.MustParse("0190a000-0000-7000-8000-00000000000a")
	companyB = id.MustParse("0190a000-0000-7000-8000-00000000000b")
	productX = id.MustParse("0190a000-0000-7000-8000-0000000000f1")
	productY = id.MustParse("0190a000-0000-7000-8000-0000000000f2")
)

type tokenValidator map[string]*appctx.UserContext

func (v tokenValidator) ValidateToken(token string) (*appctx.UserContext, error) {
	if u, ok := v[token]; ok {
		return u, nil
	}
	return nil, errors.New("unknown token")
}

func userWithRole(role auth.Role) *appctx.UserContext {
	return &appctx.UserContext{
		UserID:       "u-" + string(role),
		CompanyID:    companyA,
		Role:         string(role),
		Permissions:  role.Permissions(),
		IsSuperAdmin: role == auth.RoleSuperAdmin,
	}
}

var validator = tokenValidator{
	"production": userWithRole(auth.RoleProduction),
	"packing":    userWithRole(auth.RolePackingDispatch),
	"sales":      userWithRole(auth.RoleSales),
	"manager":    userWithRole(auth.RoleUnitManager),
	"admin":      userWithRole(auth.RoleSuperAdmin),
}

// --- fakes ---

type fakeSummaries struct {
	key     production_summary.Key
	update  production_summary.UpdateRequest
	bulkIDs []id.ID
	day     types.Day
	company id.ID
	calls   []string
	err     error
}

func (f *fakeSummaries) Location() *time.Location { return time.UTC }

func (f *fakeSummaries) row(key production_summary.Key) *production_summary.DailyProductSummary {
	return production_summary.NewDailyProductSummary(key)
}

func (f *fakeSummaries) GetByDate(_ context.Context, companyID id.ID, day types.Day) (*production_summary.DayView, error) {
	f.calls = append(f.calls, "GetByDate")
	f.company, f.day = companyID, day
	if f.err != nil {
		return nil, f.err
	}
	return production_summary.BuildDayView(day, nil, nil), nil
}

func (f *fakeSummaries) GetSummary(_ context.Context, key production_summary.Key) (*production_summary.DailyProductSummary, error) {
	f.calls = append(f.calls, "GetSummary")
	f.key = key
	if f.err != nil {
		return nil, f.err
	}
	return f.row(key), nil
}

func (f *fakeSummaries) UpdateSummary(_ context.Context, key production_summary.Key, req production_summary.UpdateRequest) (*production_summary.DailyProductSummary, error) {
	f.calls = append(f.calls, "UpdateSummary")
	f.key, f.update = key, req
	return f.row(key), f.err
}

func (f *fakeSummaries) Approve(_ context.Context, key production_summary.Key) (*production_summary.DailyProductSummary, error) {
	f.calls = append(f.calls, "Approve")
	f.key = key
	return f.row(key), f.err
}

func (f *fakeSummaries) BulkApprove(_ context.Context, companyID id.ID, day types.Day, productIDs []id.ID) (*production_summary.BulkResult, error) {
	f.calls = append(f.calls, "BulkApprove")
	f.company, f.day, f.bulkIDs = companyID, day, productIDs
	return &production_summary.BulkResult{Succeeded: len(productIDs)}, f.err
}

func (f *fakeSummaries) Recompute(_ context.Context, key production_summary.Key) (*production_summary.DailyProductSummary, error) {
	f.calls = append(f.calls, "Recompute")
	f.key = key
	return f.row(key), f.err
}

func (f *fakeSummaries) RefreshDay(_ context.Context, companyID id.ID, day types.Day) (*production_summary.RefreshResult, error) {
	f.calls = append(f.calls, "RefreshDay")
	f.company, f.day = companyID, day
	return &production_summary.RefreshResult{Date: day}, f.err
}

type fakeGroups struct {
	created *production_group.ProductionGroup
	updated *production_group.ProductionGroup
	deleted id.ID
	err     error
}

func (f *fakeGroups) Create(_ context.Context, g *production_group.ProductionGroup) error {
	f.created = g
	return f.err
}

func (f *fakeGroups) Update(_ context.Context, g *production_group.ProductionGroup) error {
	f.updated = g
	return f.err
}

func (f *fakeGroups) Delete(_ context.Context, _, groupID id.ID) error {
	f.deleted = groupID
	return f.err
}

func (f *fakeGroups) Get(_ context.Context, companyID, groupID id.ID) (*production_group.ProductionGroup, error) {
	if f.err != nil {
		return nil, f.err
	}
	g := production_group.NewProductionGroup(companyID, "Line 1")
	g.ID = groupID
	return g, nil
}

func (f *fakeGroups) List(_ context.Context, companyID id.ID) ([]*production_group.ProductionGroup, error) {
	return []*production_group.ProductionGroup{production_group.NewProductionGroup(companyID, "Line 1")}, f.err
}

type fakeOrders struct {
	created *sales_order.SalesOrder
	filter  sales_order.ListFilter
	status  sales_order.Status
	err     error
}

func (f *fakeOrders) Create(_ context.Context, o *sales_order.SalesOrder) error {
	o.Number = "SO-2024-00001"
	f.created = o
	return f.err
}

func (f *fakeOrders) Update(_ context.Context, o *sales_order.SalesOrder) error { return f.err }

func (f *fakeOrders) Delete(_ context.Context, _ id.ID) error { return f.err }

func (f *fakeOrders) ChangeStatus(_ context.Context, _ id.ID, next sales_order.Status) (*sales_order.SalesOrder, error) {
	f.status = next
	if f.err != nil {
		return nil, f.err
	}
	return &sales_order.SalesOrder{Status: next}, nil
}

func (f *fakeOrders) Get(_ context.Context, orderID id.ID) (*sales_order.SalesOrder, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &sales_order.SalesOrder{ID: orderID}, nil
}

func (f *fakeOrders) List(_ context.Context, filter sales_order.ListFilter) ([]*sales_order.SalesOrder, int, error) {
	f.filter = filter
	return []*sales_order.SalesOrder{}, 0, f.err
}

type fakeHistory struct {
	entityType string
	limit      int
}

func (f *fakeHistory) History(_ context.Context, entityType string, entityID id.ID, limit int) ([]postgres.AuditRecord, error) {
	f.entityType = entityType
	f.limit = limit
	return []postgres.AuditRecord{{
		ID:         id.New(),
		EntityType: entityType,
		EntityID:   entityID,
		Action:     audit.ActionStatusChanged,
		UserEmail:  "sales@example.com",
		Changes:    json.RawMessage(`{"status":["pending","approved"]}`),
		CreatedAt:  time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}}, nil
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

// --- helpers ---

type testAPI struct {
	router    *gin.Engine
	summaries *fakeSummaries
	groups    *fakeGroups
	orders    *fakeOrders
	history   *fakeHistory
	metrics   *metrics.Metrics
}

func newTestAPI(checks map[string]handlers.Pinger) *testAPI {
	api := &testAPI{
		summaries: &fakeSummaries{},
		groups:    &fakeGroups{},
		orders:    &fakeOrders{},
		history:   &fakeHistory{},
		metrics:   metrics.New(),
	}
	api.router = NewRouter(RouterConfig{
		Logger:         logger.NewNop(),
		Metrics:        api.metrics,
		JWTValidator:   validator,
		Summaries:      api.summaries,
		Groups:         api.groups,
		Orders:         api.orders,
		AuditHistory:   api.history,
		HealthChecks:   checks,
		RequestTimeout: 5 * time.Second,
	})
	return api
}

func (a *testAPI) do(t *testing.T, method, path, token, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	var out map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

// --- tests ---

func TestHealthAndMetrics(t *testing.T) {
	api := newTestAPI(map[string]handlers.Pinger{"redis": failingPinger{}})

	rec, _ := api.do(t, http.MethodGet, "/health/live", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, body := api.do(t, http.MethodGet, "/health/ready", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "error", body["status"])

	rec, _ = api.do(t, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestAPI_RequiresToken(t *testing.T) {
	api := newTestAPI(nil)

	rec, body := api.do(t, http.MethodGet, "/api/v1/production/summaries", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, apperror.CodeUnauthorized, body["code"])

	rec, _ = api.do(t, http.MethodGet, "/api/v1/production/summaries", "forged", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, api.summaries.calls)
}

func TestSummaryList_UsesCallerCompanyAndDate(t *testing.T) {
	api := newTestAPI(nil)

	rec, body := api.do(t, http.MethodGet, "/api/v1/production/summaries?date=2024-05-01", "packing", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, companyA, api.summaries.company)
	assert.Equal(t, "2024-05-01", api.summaries.day.String())
	assert.Equal(t, "2024-05-01", body["date"])
}

func TestSummaryList_BadDate(t *testing.T) {
	api := newTestAPI(nil)

	rec, body := api.do(t, http.MethodGet, "/api/v1/production/summaries?date=01/05/2024", "packing", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperror.CodeValidation, body["code"])
	assert.Empty(t, api.summaries.calls)
}

func TestSummaryList_CompanyScoping(t *testing.T) {
	api := newTestAPI(nil)

	rec, body := api.do(t, http.MethodGet, "/api/v1/production/summaries?date=2024-05-01&companyId="+companyB.String(), "production", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, apperror.CodeForbidden, body["code"])

	rec, _ = api.do(t, http.MethodGet, "/api/v1/production/summaries?date=2024-05-01&companyId="+companyB.String(), "admin", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, companyB, api.summaries.company)
}

func TestSummaryUpdate_PassesPatch(t *testing.T) {
	api := newTestAPI(nil)

	body := `{"productId":"` + productX.String() + `","date":"2024-05-01",
		"physicalStock":null,"qtyPerBatch":"3","status":"approved"}`
	rec, _ := api.do(t, http.MethodPost, "/api/v1/production/summaries/update", "manager", body)
	require.Equal(t, http.StatusOK, rec.Code)

	got := api.summaries.update
	assert.Equal(t, productX, api.summaries.key.ProductID)
	assert.Equal(t, companyA, api.summaries.key.CompanyID)

	assert.True(t, got.Inputs.PhysicalStock.Set)
	assert.False(t, got.Inputs.PhysicalStock.Valid)
	assert.False(t, got.Inputs.BatchAdjusted.Set)
	assert.True(t, got.Inputs.QtyPerBatch.Valid)
	assert.True(t, decimal.NewFromInt(3).Equal(got.Inputs.QtyPerBatch.Value))
	require.NotNil(t, got.Status)
	assert.Equal(t, production_summary.StatusApproved, *got.Status)
}

func TestSummaryUpdate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		body   string
		status int
		code   string
	}{
		{
			name:   "read only role",
			token:  "packing",
			body:   `{"productId":"` + productX.String() + `","date":"2024-05-01"}`,
			status: http.StatusForbidden,
			code:   apperror.CodeForbidden,
		},
		{
			name:   "unknown status",
			token:  "production",
			body:   `{"productId":"` + productX.String() + `","date":"2024-05-01","status":"done"}`,
			status: http.StatusBadRequest,
			code:   apperror.CodeValidation,
		},
		{
			name:   "missing product",
			token:  "production",
			body:   `{"date":"2024-05-01"}`,
			status: http.StatusBadRequest,
			code:   apperror.CodeValidation,
		},
		{
			name:   "boolean input",
			token:  "production",
			body:   `{"productId":"` + productX.String() + `","date":"2024-05-01","physicalStock":true}`,
			status: http.StatusBadRequest,
			code:   apperror.CodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI(nil)
			rec, body := api.do(t, http.MethodPost, "/api/v1/production/summaries/update", tt.token, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, body["code"])
			assert.Empty(t, api.summaries.calls)
		})
	}
}

func TestSummaryApprove_RequiresApprovePermission(t *testing.T) {
	api := newTestAPI(nil)
	path := "/api/v1/production/summaries/" + productX.String() + "/approve?date=2024-05-01"

	rec, _ := api.do(t, http.MethodPost, path, "production", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = api.do(t, http.MethodPost, path, "manager", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"Approve"}, api.summaries.calls)
	assert.Equal(t, productX, api.summaries.key.ProductID)
	assert.Equal(t, "2024-05-01", api.summaries.key.Date.String())
}

func TestSummaryGet_NotFound(t *testing.T) {
	api := newTestAPI(nil)
	api.summaries.err = apperror.NewNotFound("daily product summary", productX.String())

	rec, body := api.do(t, http.MethodGet, "/api/v1/production/summaries/"+productX.String()+"?date=2024-05-01", "packing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apperror.CodeNotFound, body["code"])
}

func TestSummaryBulkApprove(t *testing.T) {
	api := newTestAPI(nil)

	body := `{"date":"2024-05-01","productIds":["` + productX.String() + `","` + productY.String() + `"]}`
	rec, out := api.do(t, http.MethodPost, "/api/v1/production/summaries/bulk-approve", "manager", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []id.ID{productX, productY}, api.summaries.bulkIDs)
	assert.EqualValues(t, 2, out["succeeded"])

	rec, out = api.do(t, http.MethodPost, "/api/v1/production/summaries/bulk-approve", "manager",
		`{"date":"2024-05-01","productIds":["nope"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperror.CodeValidation, out["code"])
}

func TestSummaryRecomputeAndRefreshDay(t *testing.T) {
	api := newTestAPI(nil)

	rec, _ := api.do(t, http.MethodPost, "/api/v1/production/summaries/"+productX.String()+"/recompute?date=2024-05-01", "production", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = api.do(t, http.MethodPost, "/api/v1/production/summaries/refresh-day", "production", `{"date":"2024-05-02"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, []string{"Recompute", "RefreshDay"}, api.summaries.calls)
	assert.Equal(t, "2024-05-02", api.summaries.day.String())
}

func TestGroups_CRUD(t *testing.T) {
	api := newTestAPI(nil)
	groupID := id.New()

	rec, _ := api.do(t, http.MethodPost, "/api/v1/production/groups", "production", `{"name":"Line 1"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	body := `{"name":" Line 1 ","productIds":["` + productX.String() + `"],"mouldingTime":"06:30","productionLoss":"2.5"}`
	rec, _ = api.do(t, http.MethodPost, "/api/v1/production/groups", "manager", body)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, api.groups.created)
	assert.Equal(t, "Line 1", api.groups.created.Name)
	assert.Equal(t, companyA, api.groups.created.CompanyID)
	assert.Equal(t, []id.ID{productX}, api.groups.created.ProductIDs)

	rec, out := api.do(t, http.MethodPut, "/api/v1/production/groups/"+groupID.String(), "manager", `{"name":"Line 1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperror.CodeValidation, out["code"])

	rec, _ = api.do(t, http.MethodPut, "/api/v1/production/groups/"+groupID.String(), "manager", `{"name":"Line 1","version":3}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, groupID, api.groups.updated.ID)
	assert.Equal(t, 3, api.groups.updated.Version)

	rec, _ = api.do(t, http.MethodGet, "/api/v1/production/groups", "packing", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = api.do(t, http.MethodDelete, "/api/v1/production/groups/"+groupID.String(), "manager", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, groupID, api.groups.deleted)
}

func TestOrders_Create(t *testing.T) {
	api := newTestAPI(nil)

	body := `{"customerId":"` + id.New().String() + `","orderDate":"2024-05-01T10:00:00Z",
		"lines":[{"productId":"` + productX.String() + `","quantity":"4","price":10}]}`
	rec, out := api.do(t, http.MethodPost, "/api/v1/orders", "sales", body)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "SO-2024-00001", out["number"])

	require.NotNil(t, api.orders.created)
	require.Len(t, api.orders.created.Lines, 1)
	assert.True(t, decimal.NewFromInt(4).Equal(api.orders.created.Lines[0].Quantity))

	rec, _ = api.do(t, http.MethodPost, "/api/v1/orders", "packing", body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, out = api.do(t, http.MethodPost, "/api/v1/orders", "sales", `{"customerId":"x","orderDate":"2024-05-01T10:00:00Z","lines":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperror.CodeValidation, out["code"])
}

func TestOrders_ChangeStatus(t *testing.T) {
	api := newTestAPI(nil)
	orderID := id.New()

	rec, out := api.do(t, http.MethodPost, "/api/v1/orders/"+orderID.String()+"/status", "sales", `{"status":"approved"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "approved", out["status"])
	assert.Equal(t, sales_order.StatusApproved, api.orders.status)

	api.orders.err = apperror.NewInvalidTransition("sales order", "completed", "pending")
	rec, out = api.do(t, http.MethodPost, "/api/v1/orders/"+orderID.String()+"/status", "sales", `{"status":"pending"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, apperror.CodeInvalidTransition, out["code"])
}

func TestOrders_List(t *testing.T) {
	api := newTestAPI(nil)

	rec, _ := api.do(t, http.MethodGet, "/api/v1/orders?status=pending&limit=20&offset=40", "sales", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, companyA, api.orders.filter.CompanyID)
	assert.Equal(t, 20, api.orders.filter.Limit)
	assert.Equal(t, 40, api.orders.filter.Offset)
	require.NotNil(t, api.orders.filter.Status)
	assert.Equal(t, sales_order.StatusPending, *api.orders.filter.Status)

	rec, _ = api.do(t, http.MethodGet, "/api/v1/orders?status=shipped", "sales", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = api.do(t, http.MethodGet, "/api/v1/orders/not-an-id", "sales", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrders_History(t *testing.T) {
	api := newTestAPI(nil)
	orderID := id.New()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+orderID.String()+"/history?limit=10", nil)
	req.Header.Set("Authorization", "Bearer sales")
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "status_changed", entries[0]["action"])
	assert.Equal(t, "sales@example.com", entries[0]["userEmail"])
	assert.Equal(t, sales_order.EntityName, api.history.entityType)
	assert.Equal(t, 10, api.history.limit)

	rec, _ = api.do(t, http.MethodGet, "/api/v1/orders/"+orderID.String()+"/history", "sales", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 50, api.history.limit)

	api.orders.err = apperror.NewNotFound("sales order", orderID)
	rec, out := api.do(t, http.MethodGet, "/api/v1/orders/"+orderID.String()+"/history", "sales", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apperror.CodeNotFound, out["code"])
}
