package dashcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bizledger/internal/hub"
	"bizledger/prometheus"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// ValueTTL bounds how long a cached dashboard payload is served before
	// recomputation, even without an invalidation.
	ValueTTL = 60 * time.Second

	// RegistryTTL bounds the tracked-key set so stale registrations
	// self-expire if invalidation never runs.
	RegistryTTL = time.Hour
)

// Invalidator tracks the dashboard cache keys created per business and wipes
// them when business data mutates, pushing a refresh hint to connected
// dashboards. Cache correctness depends only on key deletion; the push is
// best-effort.
type Invalidator struct {
	rdb *redis.Client
	hub *hub.Hub
}

// New creates an Invalidator on the given redis client and broadcast hub.
func New(rdb *redis.Client, h *hub.Hub) *Invalidator {
	return &Invalidator{rdb: rdb, hub: h}
}

func registryKey(businessID uint) string {
	return fmt.Sprintf("dashboard_keys:%d", businessID)
}

// Get returns the cached payload for the key, or nil on a miss. Store errors
// degrade to a miss.
func (i *Invalidator) Get(ctx context.Context, cacheKey string) []byte {
	raw, err := i.rdb.Get(ctx, cacheKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			zap.L().Warn("dashboard cache read failed", zap.String("key", cacheKey), zap.Error(err))
		}
		prometheus.RecordCacheOperation("get", "miss")
		return nil
	}
	prometheus.RecordCacheOperation("get", "hit")
	return raw
}

// Set caches the payload under the key and registers the key for the
// business so a later mutation can invalidate it. Best-effort: a store
// failure is logged, never surfaced.
func (i *Invalidator) Set(ctx context.Context, businessID uint, cacheKey string, payload []byte) {
	if err := i.rdb.Set(ctx, cacheKey, payload, ValueTTL).Err(); err != nil {
		zap.L().Warn("dashboard cache write failed", zap.String("key", cacheKey), zap.Error(err))
		prometheus.RecordCacheOperation("set", "error")
		return
	}
	prometheus.RecordCacheOperation("set", "ok")
	if err := i.RegisterKey(ctx, businessID, cacheKey); err != nil {
		zap.L().Warn("dashboard cache key registration failed", zap.String("key", cacheKey), zap.Error(err))
	}
}

// RegisterKey appends a cache key to the business's tracked set. The set
// deduplicates and carries a bounded retention TTL.
func (i *Invalidator) RegisterKey(ctx context.Context, businessID uint, cacheKey string) error {
	reg := registryKey(businessID)
	pipe := i.rdb.Pipeline()
	pipe.SAdd(ctx, reg, cacheKey)
	pipe.Expire(ctx, reg, RegistryTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Invalidate deletes every tracked cache key for the business, clears the
// tracked-key set and notifies the business's notification group so open
// dashboards refetch. Individual key deletions are best-effort: one failure
// does not abort the rest.
func (i *Invalidator) Invalidate(ctx context.Context, businessID uint) error {
	reg := registryKey(businessID)

	keys, err := i.rdb.SMembers(ctx, reg).Result()
	if err != nil {
		prometheus.RecordCacheOperation("invalidate", "error")
		return err
	}

	for _, k := range keys {
		if err := i.rdb.Del(ctx, k).Err(); err != nil {
			zap.L().Warn("dashboard cache key deletion failed", zap.String("key", k), zap.Error(err))
		}
	}

	if err := i.rdb.Del(ctx, reg).Err(); err != nil {
		zap.L().Warn("dashboard cache registry deletion failed", zap.Uint("business_id", businessID), zap.Error(err))
	}

	prometheus.RecordCacheOperation("invalidate", "ok")
	i.notifyInvalidated(businessID)
	return nil
}

// notifyInvalidated pushes the refresh hint. Swallows encoding problems:
// the push never gates invalidation correctness.
func (i *Invalidator) notifyInvalidated(businessID uint) {
	payload, err := json.Marshal(map[string]string{"action": "invalidate"})
	if err != nil {
		return
	}
	i.hub.Publish(hub.BusinessNotifications(businessID), payload)
	prometheus.RecordBroadcast("invalidate")
}
