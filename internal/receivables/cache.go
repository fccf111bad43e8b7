package receivables

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// DefaultDashboardTTL keeps dashboard reads cheap without letting the
// figures go stale for longer than an operator would notice.
const DefaultDashboardTTL = 30 * time.Second

// DashboardCache serves the dashboard from Redis, collapsing concurrent
// misses for the same company into one aggregation. Redis being down
// degrades to computing directly; it never fails the request.
type DashboardCache struct {
	service *Service
	rdb     *redis.Client
	ttl     time.Duration
	logger  *slog.Logger
	group   singleflight.Group
}

func NewDashboardCache(service *Service, rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *DashboardCache {
	if ttl <= 0 {
		ttl = DefaultDashboardTTL
	}
	return &DashboardCache{service: service, rdb: rdb, ttl: ttl, logger: logger}
}

func dashboardKey(companyID int64) string {
	return fmt.Sprintf("meridian:receivables:dashboard:%d", companyID)
}

func (c *DashboardCache) Get(ctx context.Context, companyID int64) (Dashboard, error) {
	key := dashboardKey(companyID)
	if c.rdb != nil {
		raw, err := c.rdb.Get(ctx, key).Bytes()
		if err == nil {
			var dash Dashboard
			if err := json.Unmarshal(raw, &dash); err == nil {
				return dash, nil
			}
			// Corrupt cache entry, recompute and overwrite.
		} else if err != redis.Nil {
			c.logger.Warn("dashboard cache read failed", slog.Any("error", err))
		}
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		dash, err := c.service.Dashboard(ctx, companyID)
		if err != nil {
			return nil, err
		}
		if c.rdb != nil {
			if raw, err := json.Marshal(dash); err == nil {
				if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
					c.logger.Warn("dashboard cache write failed", slog.Any("error", err))
				}
			}
		}
		return dash, nil
	})
	if err != nil {
		return Dashboard{}, err
	}
	return v.(Dashboard), nil
}

// Invalidate drops the cached dashboard so the next read recomputes.
func (c *DashboardCache) Invalidate(ctx context.Context, companyID int64) {
	if c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, dashboardKey(companyID)).Err(); err != nil {
		c.logger.Warn("dashboard cache invalidate failed", slog.Any("error", err))
	}
}
