// Package store keeps the last good snapshot of every resource in Redis so a
// restarted console shows stale-but-valid data before its first poll lands.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ddos:snapshot:"

// entry is the stored form of one snapshot.
type entry struct {
	FetchedAt time.Time       `json:"fetched_at"`
	Data      json.RawMessage `json:"data"`
}

// SnapshotCache stores snapshots in a local map and, when configured, in Redis.
type SnapshotCache struct {
	redis *redis.Client
	ttl   time.Duration

	// Local cache (resource -> entry)
	local sync.Map

	// Stats
	mu     sync.Mutex
	hits   uint64
	misses uint64
	writes uint64
}

// NewSnapshotCache creates a cache. redisClient may be nil, in which case
// snapshots only survive for the life of the process.
func NewSnapshotCache(redisClient *redis.Client, ttl time.Duration) *SnapshotCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SnapshotCache{redis: redisClient, ttl: ttl}
}

// Key returns the Redis key for a resource.
func Key(resource string) string {
	return keyPrefix + resource
}

// Load decodes the cached snapshot of resource into out. It reports false
// when nothing is cached.
func (c *SnapshotCache) Load(ctx context.Context, resource string, out interface{}) (time.Time, bool, error) {
	e, ok, err := c.get(ctx, resource)
	if err != nil || !ok {
		c.count(&c.misses)
		return time.Time{}, false, err
	}
	if err := json.Unmarshal(e.Data, out); err != nil {
		c.count(&c.misses)
		return time.Time{}, false, fmt.Errorf("decode cached %s: %w", resource, err)
	}
	c.count(&c.hits)
	return e.FetchedAt, true, nil
}

func (c *SnapshotCache) get(ctx context.Context, resource string) (entry, bool, error) {
	if v, ok := c.local.Load(resource); ok {
		return v.(entry), true, nil
	}
	if c.redis == nil {
		return entry{}, false, nil
	}

	raw, err := c.redis.Get(ctx, Key(resource)).Bytes()
	if errors.Is(err, redis.Nil) {
		return entry{}, false, nil
	}
	if err != nil {
		return entry{}, false, fmt.Errorf("redis get %s: %w", resource, err)
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return entry{}, false, fmt.Errorf("decode cached %s: %w", resource, err)
	}
	c.local.Store(resource, e)
	return e, true, nil
}

// Save stores data as the latest snapshot of resource.
func (c *SnapshotCache) Save(ctx context.Context, resource string, data interface{}, fetchedAt time.Time) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", resource, err)
	}
	e := entry{FetchedAt: fetchedAt.UTC(), Data: payload}

	// Update local cache
	c.local.Store(resource, e)
	c.count(&c.writes)

	// Update Redis
	if c.redis == nil {
		return nil
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode %s: %w", resource, err)
	}
	if err := c.redis.Set(ctx, Key(resource), raw, c.ttl).Err(); err != nil {
		log.Printf("Redis set error: %v", err)
		return fmt.Errorf("redis set %s: %w", resource, err)
	}
	return nil
}

func (c *SnapshotCache) count(n *uint64) {
	c.mu.Lock()
	*n++
	c.mu.Unlock()
}

// Stats returns current statistics.
func (c *SnapshotCache) Stats() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return map[string]interface{}{
		"redis":  c.redis != nil,
		"hits":   c.hits,
		"misses": c.misses,
		"writes": c.writes,
	}
}
