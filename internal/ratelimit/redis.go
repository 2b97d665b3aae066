package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces counter keys in the shared store.
const KeyPrefix = "ratelimit"

// RedisLimiter is a fixed-window counter: INCR plus EXPIREAT at the window end, in one transaction.
type RedisLimiter struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisLimiter returns a limiter sharing client with the weather cache.
func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client, now: time.Now}
}

// Allow implements Limiter.
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit Limit) (Result, error) {
	now := l.now()
	k, resetAt := window(KeyPrefix, key, limit, now)

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.ExpireAt(ctx, k, resetAt.Add(time.Second))
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("redis rate limit %s: %w", k, err)
	}
	return fixedWindowResult(incr.Val(), limit, now, resetAt), nil
}
