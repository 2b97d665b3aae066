package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// sweepThreshold is the bucket count above which idle buckets are dropped.
const sweepThreshold = 10000

// MemoryLimiter keeps one token bucket per key and limit. Used with the in-memory
// cache backend; counts are per process.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	period   time.Duration
}

// NewMemoryLimiter returns an empty MemoryLimiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{buckets: make(map[string]*bucket), now: time.Now}
}

// Allow implements Limiter. A bucket holds Count tokens and refills at Count per Period.
func (l *MemoryLimiter) Allow(ctx context.Context, key string, limit Limit) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	now := l.now()
	b := l.bucketFor(key, limit, now)

	r := b.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); !r.OK() || delay > 0 {
		r.CancelAt(now)
		if !r.OK() {
			delay = limit.Period
		}
		return Result{Allowed: false, Limit: limit, RetryAfter: delay}, nil
	}
	remaining := int(b.limiter.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: true, Limit: limit, Remaining: remaining}, nil
}

func (l *MemoryLimiter) bucketFor(key string, limit Limit, now time.Time) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := key + "|" + strconv.Itoa(limit.Count) + "|" + limit.Period.String()
	b, ok := l.buckets[id]
	if !ok {
		if len(l.buckets) >= sweepThreshold {
			l.sweepLocked(now)
		}
		every := limit.Period / time.Duration(limit.Count)
		b = &bucket{
			limiter: rate.NewLimiter(rate.Every(every), limit.Count),
			period:  limit.Period,
		}
		l.buckets[id] = b
	}
	b.lastSeen = now
	return b
}

// sweepLocked drops buckets idle for longer than their period; such buckets are full again.
func (l *MemoryLimiter) sweepLocked(now time.Time) {
	for id, b := range l.buckets {
		if now.Sub(b.lastSeen) > b.period {
			delete(l.buckets, id)
		}
	}
}
