package production_summary

import (
	"context"
	"fmt"
	"sync"
	"time"

	"factorydesk/internal/core/apperror"
	"factorydesk/internal/core/id"
	"factorydesk/internal/core/types"
	"factorydesk/internal/domain/audit"
	"factorydesk/internal/domain/catalogs/production_group"
)

type txKey struct{}

// fakeTx serializes top-level transactions, which stands in for row locks.
type fakeTx struct {
	mu sync.Mutex
}

func (f *fakeTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(context.WithValue(ctx, txKey{}, true))
}

func (f *fakeTx) RunInSavepoint(ctx context.Context, fn func(ctx context.Context) error) error {
	return f.RunInTransaction(ctx, fn)
}

// conflictTx fails every transaction the way the postgres manager does
// after its retries.
type conflictTx struct{}

func (conflictTx) RunInTransaction(context.Context, func(ctx context.Context) error) error {
	return errConflict
}

func (conflictTx) RunInSavepoint(context.Context, func(ctx context.Context) error) error {
	return errConflict
}

type fakeRepo struct {
	mu    sync.Mutex
	rows  map[Key]*DailyProductSummary
	names map[id.ID]string
	saves int

	// afterList runs once, after the next ListByDate has read its rows.
	afterList func()
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{rows: make(map[Key]*DailyProductSummary), names: make(map[id.ID]string)}
}

func clone(s *DailyProductSummary) *DailyProductSummary {
	c := *s
	c.SalesBreakdown = append([]SalesBreakdownEntry{}, s.SalesBreakdown...)
	return &c
}

func (r *fakeRepo) Ensure(_ context.Context, key Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[key]; !ok {
		row := NewDailyProductSummary(key)
		row.Version = 1
		r.rows[key] = row
	}
	return nil
}

func (r *fakeRepo) GetForUpdate(ctx context.Context, key Key) (*DailyProductSummary, error) {
	return r.Get(ctx, key)
}

func (r *fakeRepo) Get(_ context.Context, key Key) (*DailyProductSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[key]
	if !ok {
		return nil, apperror.NewNotFound(entityName, key.String())
	}
	c := clone(row)
	c.ProductName = r.names[key.ProductID]
	return c, nil
}

func (r *fakeRepo) ListByDate(_ context.Context, companyID id.ID, day types.Day) ([]*DailyProductSummary, error) {
	r.mu.Lock()
	var out []*DailyProductSummary
	for k, row := range r.rows {
		if k.CompanyID == companyID && k.Date == day {
			c := clone(row)
			c.ProductName = r.names[k.ProductID]
			out = append(out, c)
		}
	}
	hook := r.afterList
	r.afterList = nil
	r.mu.Unlock()

	if hook != nil {
		hook()
	}
	return out, nil
}

func (r *fakeRepo) Save(_ context.Context, s *DailyProductSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.Version++
	s.ProductName = ""
	r.rows[s.Key()] = clone(s)
	r.saves++
	return nil
}

func (r *fakeRepo) row(key Key) *DailyProductSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.rows[key]; ok {
		return clone(row)
	}
	return nil
}

type orderLine struct {
	companyID id.ID
	productID id.ID
	at        time.Time
	line      SalesLine
}

type fakeOrders struct {
	mu    sync.Mutex
	lines []orderLine
	err   error
}

func (f *fakeOrders) add(companyID, productID id.ID, at time.Time, line SalesLine) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = append(f.lines, orderLine{companyID: companyID, productID: productID, at: at, line: line})
}

func (f *fakeOrders) removeOrder(orderID id.ID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.lines[:0]
	for _, l := range f.lines {
		if l.line.OrderID != orderID {
			kept = append(kept, l)
		}
	}
	f.lines = kept
}

func (f *fakeOrders) SalesLines(_ context.Context, companyID, productID id.ID, from, to time.Time) ([]SalesLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []SalesLine
	for _, l := range f.lines {
		if l.companyID == companyID && l.productID == productID && !l.at.Before(from) && l.at.Before(to) {
			out = append(out, l.line)
		}
	}
	return out, nil
}

func (f *fakeOrders) ProductsOrdered(_ context.Context, companyID id.ID, from, to time.Time) ([]id.ID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[id.ID]bool{}
	var out []id.ID
	for _, l := range f.lines {
		if l.companyID == companyID && !l.at.Before(from) && l.at.Before(to) && !seen[l.productID] {
			seen[l.productID] = true
			out = append(out, l.productID)
		}
	}
	return out, nil
}

type fakeCatalog map[id.ID]bool

func (c fakeCatalog) Exists(_ context.Context, _ id.ID, productID id.ID) (bool, error) {
	return c[productID], nil
}

type fakeGroups []*production_group.ProductionGroup

func (g fakeGroups) List(context.Context, id.ID) ([]*production_group.ProductionGroup, error) {
	return g, nil
}

// fakeCache versions each day the way the Redis cache does: a fill under
// an outdated stamp is never read back.
type fakeCache struct {
	mu       sync.Mutex
	versions map[string]int64
	views    map[string]*DayView
}

func newFakeCache() *fakeCache {
	return &fakeCache{versions: make(map[string]int64), views: make(map[string]*DayView)}
}

func cacheDay(companyID id.ID, day types.Day) string {
	return companyID.String() + "/" + day.String()
}

func (c *fakeCache) Get(_ context.Context, companyID id.ID, day types.Day) (*DayView, CacheStamp, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stamp := CacheStamp{Day: c.versions[cacheDay(companyID, day)]}
	v, ok := c.views[fmt.Sprintf("%s/%d", cacheDay(companyID, day), stamp.Day)]
	return v, stamp, ok, nil
}

func (c *fakeCache) Set(_ context.Context, companyID id.ID, day types.Day, stamp CacheStamp, view *DayView) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.views[fmt.Sprintf("%s/%d", cacheDay(companyID, day), stamp.Day)] = view
	return nil
}

func (c *fakeCache) Invalidate(_ context.Context, companyID id.ID, day types.Day) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions[cacheDay(companyID, day)]++
	return nil
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (a *fakeAudit) Record(_ context.Context, e audit.Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
	return nil
}

type fakeMetrics struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (m *fakeMetrics) ObserveSummaryOperation(op, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcomes == nil {
		m.outcomes = make(map[string]int)
	}
	m.outcomes[op+"/"+outcome]++
}
