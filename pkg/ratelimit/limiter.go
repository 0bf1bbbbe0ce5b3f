// Package ratelimit provides per-key admission control.
//
// Limiter is a sliding-log limiter held in process memory. Each key keeps
// the instants of its admitted requests; entries at or before now-window
// are evicted lazily on every check. State does not survive a restart and
// is not shared between processes, so a deployment with N replicas
// admits up to N times the configured limit per key. RedisLimiter offers
// the same contract backed by Redis for cluster-wide limits.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Config defines rate limiting configuration
type Config struct {
	// MaxRequests is the number of requests admitted per window
	MaxRequests int
	// Window is the length of the sliding window
	Window time.Duration
}

// DefaultConfig returns default rate limit settings
func DefaultConfig() Config {
	return Config{
		MaxRequests: 100,
		Window:      time.Minute,
	}
}

func (c Config) normalize() Config {
	d := DefaultConfig()
	if c.MaxRequests <= 0 {
		c.MaxRequests = d.MaxRequests
	}
	if c.Window <= 0 {
		c.Window = d.Window
	}
	return c
}

// Decision is the outcome of one admission check
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Backend is implemented by every limiter so the HTTP middleware can use
// any of them
type Backend interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// Option customizes a Limiter
type Option func(*Limiter)

// WithClock overrides the time source, for tests
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// Limiter is an in-memory sliding-log rate limiter
type Limiter struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex // guards windows
	windows map[string]*window
}

type window struct {
	mu   sync.Mutex
	hits []time.Time // ascending
	dead bool        // removed from the map by Sweep
}

// NewLimiter creates a new in-memory limiter
func NewLimiter(cfg Config, opts ...Option) *Limiter {
	l := &Limiter{
		cfg:     cfg.normalize(),
		now:     time.Now,
		windows: make(map[string]*window),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Config returns the effective configuration
func (l *Limiter) Config() Config {
	return l.cfg
}

// Admit records a request for key and reports whether it is allowed
func (l *Limiter) Admit(key string) bool {
	return l.Take(key).Allowed
}

// RetryAfter returns how long until key can be admitted again. It is zero
// when the key has capacity.
func (l *Limiter) RetryAfter(key string) time.Duration {
	w := l.lookup(key, false)
	if w == nil {
		return 0
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	now := l.now()
	l.evict(w, now)
	if len(w.hits) < l.cfg.MaxRequests {
		return 0
	}
	return l.retryAfter(w, now)
}

// Allow implements Backend
func (l *Limiter) Allow(_ context.Context, key string) (Decision, error) {
	return l.Take(key), nil
}

// Take evicts, checks and records under a single lock on the key so two
// concurrent callers can never both observe spare capacity for the last
// slot.
func (l *Limiter) Take(key string) Decision {
	for {
		w := l.lookup(key, true)

		w.mu.Lock()
		if w.dead {
			w.mu.Unlock()
			continue
		}

		// read the clock under the key lock so hits stay ascending
		now := l.now()
		l.evict(w, now)
		d := Decision{Limit: l.cfg.MaxRequests}
		if len(w.hits) < l.cfg.MaxRequests {
			w.hits = append(w.hits, now)
			d.Allowed = true
		} else {
			d.RetryAfter = l.retryAfter(w, now)
		}
		d.Remaining = l.cfg.MaxRequests - len(w.hits)
		w.mu.Unlock()
		return d
	}
}

// Reset forgets every request recorded for key
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	w, ok := l.windows[key]
	if ok {
		delete(l.windows, key)
	}
	l.mu.Unlock()

	if ok {
		w.mu.Lock()
		w.dead = true
		w.mu.Unlock()
	}
}

// Sweep removes keys with no hits left in the window and returns how many
// were removed. It bounds memory for keys that stop sending requests.
func (l *Limiter) Sweep() int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, w := range l.windows {
		w.mu.Lock()
		l.evict(w, now)
		if len(w.hits) == 0 {
			w.dead = true
			delete(l.windows, key)
			removed++
		}
		w.mu.Unlock()
	}
	return removed
}

// Len returns the number of tracked keys
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

func (l *Limiter) lookup(key string, create bool) *window {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok && create {
		w = &window{hits: make([]time.Time, 0, l.cfg.MaxRequests)}
		l.windows[key] = w
	}
	return w
}

// evict drops hits at or before now-window. Caller holds w.mu.
func (l *Limiter) evict(w *window, now time.Time) {
	cutoff := now.Add(-l.cfg.Window)
	i := 0
	for i < len(w.hits) && !w.hits[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.hits = append(w.hits[:0], w.hits[i:]...)
	}
}

// retryAfter is max(0, oldest+window-now). Caller holds w.mu.
func (l *Limiter) retryAfter(w *window, now time.Time) time.Duration {
	if len(w.hits) == 0 {
		return 0
	}
	wait := w.hits[0].Add(l.cfg.Window).Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}
