package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"factorydesk/internal/core/id"
	"factorydesk/internal/core/types"
	"factorydesk/internal/domain/registers/production_summary"
)

func newTestCache(t *testing.T) (*DayCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewDayCache(client, time.Minute), mr
}

func testView(day types.Day, productID id.ID) *production_summary.DayView {
	return &production_summary.DayView{
		Date:   day,
		Groups: []production_summary.GroupView{},
		Ungrouped: []*production_summary.DailyProductSummary{
			{ProductID: productID, ProductName: "Bun", Status: production_summary.StatusPending},
		},
	}
}

func TestDayCache_SetGet(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	company := id.New()
	day := types.DayFromDate(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
	pid := id.New()

	_, stamp, ok, err := c.Get(ctx, company, day)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, production_summary.CacheStamp{}, stamp)

	require.NoError(t, c.Set(ctx, company, day, stamp, testView(day, pid)))

	got, _, ok, err := c.Get(ctx, company, day)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, day, got.Date)
	require.Len(t, got.Ungrouped, 1)
	assert.Equal(t, pid, got.Ungrouped[0].ProductID)
	assert.Equal(t, "Bun", got.Ungrouped[0].ProductName)

	mr.FastForward(2 * time.Minute)
	_, _, ok, err = c.Get(ctx, company, day)
	require.NoError(t, err)
	assert.False(t, ok, "entry expires with the TTL")
}

func TestDayCache_Invalidate(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	company := id.New()
	day := types.DayFromDate(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
	next := day.AddDays(1)

	require.NoError(t, c.Set(ctx, company, day, production_summary.CacheStamp{}, testView(day, id.New())))
	require.NoError(t, c.Set(ctx, company, next, production_summary.CacheStamp{}, testView(next, id.New())))

	require.NoError(t, c.Invalidate(ctx, company, day))
	_, stamp, ok, _ := c.Get(ctx, company, day)
	assert.False(t, ok)
	assert.Equal(t, int64(1), stamp.Day)
	assert.True(t, mr.TTL(dayVersionKey(company, day)) > 0, "day versions expire when idle")

	_, stamp, ok, _ = c.Get(ctx, company, next)
	assert.True(t, ok, "other days stay cached")
	assert.Zero(t, stamp.Day)

	require.NoError(t, c.InvalidateCompany(ctx, company))
	_, stamp, ok, _ = c.Get(ctx, company, next)
	assert.False(t, ok, "company bump drops every day")
	assert.Equal(t, int64(1), stamp.Company)
}

func TestDayCache_LateFillAfterInvalidate(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	company := id.New()
	day := types.DayFromDate(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))

	// A reader misses and loads rows; a write commits and invalidates
	// before the reader stores what it loaded.
	_, readStamp, ok, err := c.Get(ctx, company, day)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, c.Invalidate(ctx, company, day))
	require.NoError(t, c.Set(ctx, company, day, readStamp, testView(day, id.New())))

	_, stamp, ok, err := c.Get(ctx, company, day)
	require.NoError(t, err)
	assert.False(t, ok, "stale fill is not served")

	fresh := testView(day, id.New())
	require.NoError(t, c.Set(ctx, company, day, stamp, fresh))
	got, _, ok, err := c.Get(ctx, company, day)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, fresh.Ungrouped[0].ProductID, got.Ungrouped[0].ProductID)
}

func TestDayCache_Disabled(t *testing.T) {
	c := NewDayCache(nil, time.Minute)
	ctx := context.Background()
	day := types.DayFromDate(time.Now())

	require.NoError(t, c.Set(ctx, id.New(), day, production_summary.CacheStamp{}, &production_summary.DayView{}))
	_, _, ok, err := c.Get(ctx, id.New(), day)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, c.Invalidate(ctx, id.New(), day))
	assert.NoError(t, c.InvalidateCompany(ctx, id.New()))
	assert.NoError(t, c.Ping(ctx))
}
