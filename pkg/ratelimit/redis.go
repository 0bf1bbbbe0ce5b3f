package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// slidingLogScript evicts, counts and records atomically. Scores are unix
// milliseconds.
//
// KEYS[1] = window key
// ARGV[1] = now, ARGV[2] = window, ARGV[3] = limit, ARGV[4] = member
// returns {allowed, count, retry_after_ms}
var slidingLogScript = redis.NewScript(`
local key    = KEYS[1]
local now    = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit  = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
	redis.call('ZADD', key, now, ARGV[4])
	count = count + 1
	allowed = 1
end
redis.call('PEXPIRE', key, window)

local retry = 0
if allowed == 0 then
	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	if #oldest > 0 then
		retry = tonumber(oldest[2]) + window - now
		if retry < 0 then retry = 0 end
	end
end
return {allowed, count, retry}
`)

// RedisLimiter implements the sliding-log limiter on a Redis sorted set,
// so limits are shared by every instance using the same Redis
type RedisLimiter struct {
	redis    *redis.Client
	cfg      Config
	prefix   string
	failOpen bool
	now      func() time.Time
	log      *logrus.Logger
}

// RedisOption customizes a RedisLimiter
type RedisOption func(*RedisLimiter)

// WithFailClosed rejects requests when Redis is unreachable instead of
// admitting them
func WithFailClosed() RedisOption {
	return func(l *RedisLimiter) {
		l.failOpen = false
	}
}

// WithRedisClock overrides the time source, for tests
func WithRedisClock(now func() time.Time) RedisOption {
	return func(l *RedisLimiter) {
		l.now = now
	}
}

// NewRedisLimiter creates a new Redis-backed limiter
func NewRedisLimiter(client *redis.Client, cfg Config, prefix string, log *logrus.Logger, opts ...RedisOption) *RedisLimiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	if log == nil {
		log = logrus.New()
	}
	l := &RedisLimiter{
		redis:    client,
		cfg:      cfg.normalize(),
		prefix:   prefix,
		failOpen: true,
		now:      time.Now,
		log:      log,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow implements Backend. With fail-open (the default) a Redis error is
// logged and the request admitted; with fail-closed the error is returned.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	redisKey := l.key(key)
	now := l.now().UnixMilli()

	res, err := slidingLogScript.Run(ctx, l.redis, []string{redisKey},
		now, l.cfg.Window.Milliseconds(), l.cfg.MaxRequests, fmt.Sprintf("%d-%s", now, uuid.NewString()),
	).Slice()
	if err != nil {
		if l.failOpen {
			l.log.WithError(err).WithField("key", key).Error("Rate limiter unavailable, admitting request")
			return Decision{Allowed: true, Limit: l.cfg.MaxRequests, Remaining: l.cfg.MaxRequests}, nil
		}
		return Decision{}, fmt.Errorf("redis rate limit: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("redis rate limit: unexpected reply %v", res)
	}

	allowed, _ := res[0].(int64)
	count, _ := res[1].(int64)
	retryMs, _ := res[2].(int64)

	remaining := l.cfg.MaxRequests - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:    allowed == 1,
		Limit:      l.cfg.MaxRequests,
		Remaining:  remaining,
		RetryAfter: time.Duration(retryMs) * time.Millisecond,
	}, nil
}

// Reset clears the window for a key
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	return l.redis.Del(ctx, l.key(key)).Err()
}

func (l *RedisLimiter) key(key string) string {
	return fmt.Sprintf("%s:%s", l.prefix, key)
}
