package ratelimit

import (
	"context"
	"math"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

const (
	memoryIdleTTL         = 10 * time.Minute
	memoryCleanupInterval = 5 * time.Minute
)

// MemoryLimiter keeps one token bucket per key in a process-local cache.
// Buckets idle for memoryIdleTTL are evicted. Use ValkeyLimiter when more than
// one instance serves traffic.
type MemoryLimiter struct {
	buckets   *gocache.Cache
	perMinute int
	now       func() time.Time
}

func NewMemoryLimiter(perMinute int) *MemoryLimiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	return &MemoryLimiter{
		buckets:   gocache.New(memoryIdleTTL, memoryCleanupInterval),
		perMinute: perMinute,
		now:       time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	now := l.now()
	bucket := l.bucket(key)

	decision := Decision{Limit: l.perMinute}
	reservation := bucket.ReserveN(now, 1)
	if !reservation.OK() {
		decision.RetryAfter = time.Minute
		return decision, nil
	}
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		decision.RetryAfter = delay
		return decision, nil
	}

	decision.Allowed = true
	decision.Remaining = int(math.Max(0, math.Floor(bucket.TokensAt(now))))
	return decision, nil
}

func (l *MemoryLimiter) bucket(key string) *rate.Limiter {
	if cached, found := l.buckets.Get(key); found {
		bucket := cached.(*rate.Limiter)
		l.buckets.Set(key, bucket, gocache.DefaultExpiration)
		return bucket
	}

	bucket := rate.NewLimiter(rate.Limit(float64(l.perMinute)/60), l.perMinute)
	if err := l.buckets.Add(key, bucket, gocache.DefaultExpiration); err != nil {
		// Lost the race to another request for the same key.
		if cached, found := l.buckets.Get(key); found {
			return cached.(*rate.Limiter)
		}
	}
	return bucket
}

func (l *MemoryLimiter) Close() {
	l.buckets.Flush()
}
