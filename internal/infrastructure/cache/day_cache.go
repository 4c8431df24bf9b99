// Package cache provides the Redis cache of daily production layouts.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"factorydesk/internal/core/id"
	"factorydesk/internal/core/types"
	"factorydesk/internal/domain/registers/production_summary"
)

const keyPrefix = "factorydesk:summary"

// minVersionTTL bounds how long an idle day version is kept. It must outlive
// every layout written under the version.
const minVersionTTL = 24 * time.Hour

// DayCache stores day layouts per company and date. A layout key embeds two
// counters: the company version, bumped when production groups change, and
// the day version, bumped by every write to the day. A fill that read its
// stamp before a bump writes under a key no reader asks for again.
type DayCache struct {
	client     *redis.Client
	ttl        time.Duration
	versionTTL time.Duration
}

var _ production_summary.DayCache = (*DayCache)(nil)

// NewDayCache creates the cache. A nil client disables caching.
func NewDayCache(client *redis.Client, ttl time.Duration) *DayCache {
	versionTTL := 10 * ttl
	if versionTTL < minVersionTTL {
		versionTTL = minVersionTTL
	}
	return &DayCache{client: client, ttl: ttl, versionTTL: versionTTL}
}

func companyVersionKey(companyID id.ID) string {
	return fmt.Sprintf("%s:%s:version", keyPrefix, companyID)
}

func dayVersionKey(companyID id.ID, day types.Day) string {
	return fmt.Sprintf("%s:%s:%s:version", keyPrefix, companyID, day)
}

func dayKey(companyID id.ID, day types.Day, stamp production_summary.CacheStamp) string {
	return fmt.Sprintf("%s:%s:%s:c%d:d%d", keyPrefix, companyID, day, stamp.Company, stamp.Day)
}

// stamp reads both versions in one round trip; a missing version is 0.
func (c *DayCache) stamp(ctx context.Context, companyID id.ID, day types.Day) (production_summary.CacheStamp, error) {
	vals, err := c.client.MGet(ctx, companyVersionKey(companyID), dayVersionKey(companyID, day)).Result()
	if err != nil {
		return production_summary.CacheStamp{}, fmt.Errorf("get cache versions: %w", err)
	}

	var versions [2]int64
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return production_summary.CacheStamp{}, fmt.Errorf("parse cache version %q: %w", raw, err)
		}
		versions[i] = n
	}
	return production_summary.CacheStamp{Company: versions[0], Day: versions[1]}, nil
}

// Get returns the cached layout, if any, and the stamp a fill after a miss
// must pass to Set.
func (c *DayCache) Get(ctx context.Context, companyID id.ID, day types.Day) (*production_summary.DayView, production_summary.CacheStamp, bool, error) {
	if c == nil || c.client == nil {
		return nil, production_summary.CacheStamp{}, false, nil
	}
	stamp, err := c.stamp(ctx, companyID, day)
	if err != nil {
		return nil, stamp, false, err
	}

	payload, err := c.client.Get(ctx, dayKey(companyID, day, stamp)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, stamp, false, nil
	}
	if err != nil {
		return nil, stamp, false, fmt.Errorf("get day layout: %w", err)
	}

	var view production_summary.DayView
	if err := json.Unmarshal(payload, &view); err != nil {
		return nil, stamp, false, fmt.Errorf("decode day layout: %w", err)
	}
	return &view, stamp, true, nil
}

// Set stores a layout under stamp for the TTL.
func (c *DayCache) Set(ctx context.Context, companyID id.ID, day types.Day, stamp production_summary.CacheStamp, view *production_summary.DayView) error {
	if c == nil || c.client == nil {
		return nil
	}
	payload, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("encode day layout: %w", err)
	}
	if err := c.client.Set(ctx, dayKey(companyID, day, stamp), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("set day layout: %w", err)
	}
	return nil
}

// Invalidate bumps the day version of one company day.
func (c *DayCache) Invalidate(ctx context.Context, companyID id.ID, day types.Day) error {
	if c == nil || c.client == nil {
		return nil
	}
	key := dayVersionKey(companyID, day)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, c.versionTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("bump day version: %w", err)
	}
	return nil
}

// InvalidateCompany bumps the company version, which drops every cached day
// of the company. Day versions are left alone.
func (c *DayCache) InvalidateCompany(ctx context.Context, companyID id.ID) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Incr(ctx, companyVersionKey(companyID)).Err(); err != nil {
		return fmt.Errorf("bump company version: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (c *DayCache) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Ping(ctx).Err()
}
