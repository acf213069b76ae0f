// Package dedupe provides once-only guards keyed by string.
//
// The Redis guard shares state across service instances, so a desktop alert
// raised by one instance is not raised again by another after a reconnect.
// The memory guard is used when no Redis address is configured.
package dedupe

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// Guard reports whether key is being seen for the first time within ttl.
type Guard interface {
	Once(ctx context.Context, key string, ttl time.Duration) bool
}

// RedisGuard uses SETNX.
type RedisGuard struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisGuard returns a guard whose keys are stored under prefix.
func NewRedisGuard(rdb *redis.Client, prefix string) *RedisGuard {
	return &RedisGuard{rdb: rdb, prefix: prefix}
}

// Once returns true the first time key is seen. When Redis is unreachable it
// also returns true: a duplicate alert is better than a lost one.
func (g *RedisGuard) Once(ctx context.Context, key string, ttl time.Duration) bool {
	ok, err := g.rdb.SetNX(ctx, g.prefix+key, 1, ttl).Result()
	if err != nil {
		return true
	}
	return ok
}

// MemoryGuard keeps keys in a process-local expiring cache.
type MemoryGuard struct {
	c *cache.Cache
}

// NewMemoryGuard returns a guard that purges expired keys every cleanup.
func NewMemoryGuard(cleanup time.Duration) *MemoryGuard {
	return &MemoryGuard{c: cache.New(cache.NoExpiration, cleanup)}
}

// Once returns true the first time key is seen within ttl.
func (g *MemoryGuard) Once(_ context.Context, key string, ttl time.Duration) bool {
	return g.c.Add(key, struct{}{}, ttl) == nil
}
