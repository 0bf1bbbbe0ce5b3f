package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// TokenBucket is a per-key token bucket used ahead of authentication,
// where keys are client addresses rather than principals
type TokenBucket struct {
	limit rate.Limit
	burst int
	idle  time.Duration

	mu      sync.Mutex
	buckets map[string]*bucketEntry
}

type bucketEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewTokenBucket refills perSecond tokens every second up to burst
func NewTokenBucket(perSecond float64, burst int) *TokenBucket {
	if burst <= 0 {
		burst = 1
	}
	return &TokenBucket{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		idle:    10 * time.Minute,
		buckets: make(map[string]*bucketEntry),
	}
}

// Allow implements Backend
func (b *TokenBucket) Allow(_ context.Context, key string) (Decision, error) {
	now := time.Now()
	lim := b.get(key, now)

	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return Decision{Limit: b.burst}, nil
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return Decision{Limit: b.burst, RetryAfter: delay}, nil
	}

	remaining := int(lim.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: true, Limit: b.burst, Remaining: remaining}, nil
}

// Sweep drops buckets that have been idle for more than ten minutes
func (b *TokenBucket) Sweep() int {
	cutoff := time.Now().Add(-b.idle)
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for key, e := range b.buckets {
		if e.lastSeen.Before(cutoff) {
			delete(b.buckets, key)
			removed++
		}
	}
	return removed
}

func (b *TokenBucket) get(key string, now time.Time) *rate.Limiter {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.buckets[key]
	if !ok {
		e = &bucketEntry{limiter: rate.NewLimiter(b.limit, b.burst)}
		b.buckets[key] = e
	}
	e.lastSeen = now
	return e.limiter
}
