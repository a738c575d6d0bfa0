// Package ratelimit implements a Redis-backed token bucket shared by the HTTP
// middleware and the websocket bid throttle.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/live-auction/internal/config"
)

// The whole refill-and-take step runs inside Redis so concurrent callers on
// different instances observe one bucket.
var bucketScript = redis.NewScript(`
	local key = KEYS[1]
	local now_ms = tonumber(ARGV[1])
	local capacity = tonumber(ARGV[2])
	local refill_tokens = tonumber(ARGV[3])
	local interval_ms = tonumber(ARGV[4])
	local ttl_seconds = tonumber(ARGV[5])

	local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
	local tokens = tonumber(state[1])
	local last_refill = tonumber(state[2])

	if tokens == nil or last_refill == nil then
		tokens = capacity
		last_refill = now_ms
	end

	if interval_ms > 0 and refill_tokens > 0 then
		local elapsed = math.max(0, now_ms - last_refill)
		local intervals = math.floor(elapsed / interval_ms)
		if intervals > 0 then
			tokens = math.min(capacity, tokens + (intervals * refill_tokens))
			last_refill = last_refill + (intervals * interval_ms)
		end
	end

	local allowed = 0
	local retry_after_ms = 0
	if tokens > 0 then
		allowed = 1
		tokens = tokens - 1
	else
		local until_next = interval_ms - (now_ms - last_refill)
		if until_next < 0 then until_next = 0 end
		retry_after_ms = until_next
	end

	redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill, 'capacity', capacity)
	redis.call('EXPIRE', key, ttl_seconds)

	return { allowed, tokens, retry_after_ms }
`)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
	Limit      int
}

// Limiter takes tokens from per-key buckets.  A nil client or a disabled
// config allows everything.
type Limiter struct {
	rdb redis.UniversalClient
	cfg config.RateLimitConfig
	now func() time.Time
}

// NewLimiter returns a limiter configured by cfg.
func NewLimiter(rdb redis.UniversalClient, cfg config.RateLimitConfig) *Limiter {
	return &Limiter{rdb: rdb, cfg: cfg, now: time.Now}
}

// Config returns the settings the limiter was built with.
func (l *Limiter) Config() config.RateLimitConfig { return l.cfg }

// Key joins parts under the configured prefix, e.g. throttle:ws:u1:placeBid.
func (l *Limiter) Key(parts ...string) string {
	return strings.Join(append([]string{l.cfg.Prefix}, parts...), ":")
}

// Allow consumes one token from key.  Redis failures are returned with an
// allowing decision so callers can choose to fail open.
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	if l == nil || l.rdb == nil || !l.cfg.Enabled {
		return Decision{Allowed: true, Remaining: -1}, nil
	}
	args := []any{
		l.now().UnixMilli(),
		l.cfg.Capacity,
		l.cfg.RefillTokens,
		l.cfg.RefillInterval.Milliseconds(),
		int64(l.cfg.TTL / time.Second),
	}
	vals, err := bucketScript.Run(ctx, l.rdb, []string{key}, args...).Result()
	if err != nil {
		return Decision{Allowed: true, Limit: l.cfg.Capacity}, err
	}
	arr, ok := vals.([]any)
	if !ok || len(arr) != 3 {
		return Decision{Allowed: true, Limit: l.cfg.Capacity}, fmt.Errorf("ratelimit: unexpected script result %#v", vals)
	}
	return Decision{
		Allowed:    asInt64(arr[0]) == 1,
		Remaining:  asInt64(arr[1]),
		RetryAfter: time.Duration(asInt64(arr[2])) * time.Millisecond,
		Limit:      l.cfg.Capacity,
	}, nil
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int32:
		return int64(t)
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
	}
	return 0
}
