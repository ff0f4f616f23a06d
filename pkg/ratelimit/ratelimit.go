// Package ratelimit implements a Redis-backed sliding-window rate limiter
// with an in-memory fallback for when Redis is unreachable, so request
// throttling degrades gracefully instead of failing open or closed.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// luaSlidingWindow atomically evicts expired entries, counts the current
// window, and (if under limit) records the request — all in one round trip
// so concurrent callers can't race past the limit between check and insert.
const luaSlidingWindow = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local window_start = now - window
redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)

local current = redis.call('ZCARD', key)
if current >= limit then
    return {0, current, limit}
end

redis.call('ZADD', key, now, now)
redis.call('EXPIRE', key, ttl)
return {1, current + 1, limit}
`

// Result is the outcome of a rate limit check, carrying everything needed
// to compute the X-RateLimit-* response headers.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Headers renders Result as the platform's standard rate-limit headers.
func (r Result) Headers() map[string]string {
	return map[string]string{
		"X-RateLimit-Limit":     fmt.Sprintf("%d", r.Limit),
		"X-RateLimit-Remaining": fmt.Sprintf("%d", max(0, r.Remaining)),
		"X-RateLimit-Reset":     fmt.Sprintf("%d", r.ResetAt.Unix()),
	}
}

// RetryAfterSeconds is the value an exhausted caller should wait before
// retrying, for the Retry-After header on a 429 response (spec §7).
func (r Result) RetryAfterSeconds() int {
	return max(1, int(time.Until(r.ResetAt).Seconds()))
}

// Limiter is a distributed sliding-window rate limiter scoped per user (and
// optionally per tenant), backed by Redis with an automatic fallback to an
// in-memory limiter when Redis is unavailable.
type Limiter struct {
	redis          *redis.Client
	requestsPerMin int
	burstAllowance int
	window         time.Duration
	limit          int
	fallback       *inMemoryLimiter
}

// New constructs a Limiter. redisClient may be nil, in which case every
// check runs against the in-memory fallback directly.
func New(redisClient *redis.Client, requestsPerMinute, burstAllowance int) *Limiter {
	window := time.Minute
	return &Limiter{
		redis:          redisClient,
		requestsPerMin: requestsPerMinute,
		burstAllowance: burstAllowance,
		window:         window,
		limit:          requestsPerMinute + burstAllowance,
		fallback:       newInMemoryLimiter(requestsPerMinute + burstAllowance),
	}
}

// key formats the Redis sorted-set key for a scoped rate-limit bucket.
func key(userID uuid.UUID, tenantID *uuid.UUID) string {
	if tenantID == nil {
		return fmt.Sprintf("rate_limit:user:%s", userID)
	}
	return fmt.Sprintf("rate_limit:%s:%s", *tenantID, userID)
}

// Check tests and, if allowed, records one request for userID (optionally
// scoped to tenantID). Unlimited (requestsPerMinute <= 0) always allows.
// A Redis error degrades to the in-memory fallback rather than failing the
// request outright.
func (l *Limiter) Check(ctx context.Context, userID uuid.UUID, tenantID *uuid.UUID) (Result, error) {
	if l.requestsPerMin <= 0 {
		return Result{Allowed: true, ResetAt: time.Now().Add(l.window)}, nil
	}

	if l.redis != nil {
		result, err := l.checkRedis(ctx, userID, tenantID)
		if err == nil {
			return result, nil
		}
		slog.Error("ratelimit.redis_check_failed", "user_id", userID, "error", err)
	}

	allowed := l.fallback.Allow(userID)
	return Result{
		Allowed:   allowed,
		Limit:     l.limit,
		Remaining: l.limit / 2,
		ResetAt:   time.Now().Add(l.window),
	}, nil
}

func (l *Limiter) checkRedis(ctx context.Context, userID uuid.UUID, tenantID *uuid.UUID) (Result, error) {
	now := time.Now()
	ttl := l.window * 2

	res, err := l.redis.Eval(ctx, luaSlidingWindow, []string{key(userID, tenantID)},
		float64(now.UnixNano())/1e9, l.window.Seconds(), l.limit, int(ttl.Seconds()),
	).Result()
	if err != nil {
		return Result{}, fmt.Errorf("eval sliding window script: %w", err)
	}

	values, ok := res.([]interface{})
	if !ok || len(values) != 3 {
		return Result{}, fmt.Errorf("unexpected script result shape: %v", res)
	}
	allowed := toInt64(values[0]) == 1
	current := toInt64(values[1])
	limit := toInt64(values[2])

	remaining := int(limit - current)
	reset := now.Add(l.window)

	if !allowed {
		slog.Warn("ratelimit.exceeded", "user_id", userID, "current", current, "limit", limit)
	}

	return Result{Allowed: allowed, Limit: int(limit), Remaining: remaining, ResetAt: reset}, nil
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}

// Reset clears userID's unscoped rate-limit window (the key Check uses when
// given no tenant), or its in-memory bucket when no Redis client is
// configured, for test harnesses and admin overrides. A tenant-scoped
// window is not cleared.
func (l *Limiter) Reset(ctx context.Context, userID uuid.UUID) error {
	if l.redis == nil {
		l.fallback.Reset(userID)
		return nil
	}
	if err := l.redis.Del(ctx, key(userID, nil)).Err(); err != nil {
		return fmt.Errorf("delete rate limit key: %w", err)
	}
	return nil
}
