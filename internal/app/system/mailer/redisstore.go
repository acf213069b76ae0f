// internal/app/system/mailer/redisstore.go
package mailer

import (
	"context"
	"strconv"
	"time"

	"github.com/dalemusser/waffle/pantry/email"
	"github.com/redis/go-redis/v9"
)

// NewRedisStore keeps queued mail in Redis under prefix, so mail accepted
// by one process survives a restart and any replica can send it.
func NewRedisStore(rdb *redis.Client, prefix string) *email.RedisQueueStore {
	return email.NewRedisQueueStore(email.RedisQueueConfig{
		Client: redisClient{rdb: rdb},
		Prefix: prefix,
	})
}

// redisClient adapts go-redis to the queue store's client interface.
type redisClient struct {
	rdb *redis.Client
}

func (c redisClient) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c redisClient) Get(ctx context.Context, key string) (string, error) {
	return c.rdb.Get(ctx, key).Result()
}

func (c redisClient) Del(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

func (c redisClient) Keys(ctx context.Context, pattern string) ([]string, error) {
	return c.rdb.Keys(ctx, pattern).Result()
}

func (c redisClient) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return c.rdb.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
}

func (c redisClient) ZRangeByScore(ctx context.Context, key string, min, max float64, offset, count int64) ([]string, error) {
	return c.rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min:    strconv.FormatFloat(min, 'f', -1, 64),
		Max:    strconv.FormatFloat(max, 'f', -1, 64),
		Offset: offset,
		Count:  count,
	}).Result()
}

func (c redisClient) ZRem(ctx context.Context, key string, members ...string) error {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return c.rdb.ZRem(ctx, key, args...).Err()
}
