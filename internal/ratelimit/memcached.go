package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/kjstillabower/city-weather-service/internal/cache"
)

// MemcachedLimiter is a fixed-window counter built on memcached incr/add.
type MemcachedLimiter struct {
	client *memcache.Client
	now    func() time.Time
}

// NewMemcachedLimiter returns a limiter sharing client with the weather cache.
func NewMemcachedLimiter(client *memcache.Client) *MemcachedLimiter {
	return &MemcachedLimiter{client: client, now: time.Now}
}

// Allow implements Limiter. The first hit in a window creates the counter with add;
// a concurrent creator losing the add race falls back to incr.
func (l *MemcachedLimiter) Allow(ctx context.Context, key string, limit Limit) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	now := l.now()
	k, resetAt := window(KeyPrefix, key, limit, now)
	mk := cache.MemcachedKey(k)

	count, err := l.client.Increment(mk, 1)
	if errors.Is(err, memcache.ErrCacheMiss) {
		err = l.client.Add(&memcache.Item{
			Key:        mk,
			Value:      []byte("1"),
			Expiration: cache.ExpirationSeconds(resetAt.Sub(now) + time.Second),
		})
		switch {
		case err == nil:
			count = 1
		case errors.Is(err, memcache.ErrNotStored):
			count, err = l.client.Increment(mk, 1)
		}
	}
	if err != nil {
		return Result{}, fmt.Errorf("memcached rate limit %s: %w", k, err)
	}
	return fixedWindowResult(int64(count), limit, now, resetAt), nil
}
