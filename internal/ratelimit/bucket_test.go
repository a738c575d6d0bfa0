package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/live-auction/internal/config"
)

func throttleConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:        true,
		Capacity:       5,
		RefillTokens:   5,
		RefillInterval: time.Second,
		TTL:            time.Minute,
		Prefix:         "throttle:ws",
	}
}

func TestLimiterBlocksSixthBidInWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	l := NewLimiter(rdb, throttleConfig())
	now := time.UnixMilli(1_700_000_000_000)
	l.now = func() time.Time { return now }
	ctx := context.Background()
	key := l.Key("u1", "placeBid")
	assert.Equal(t, "throttle:ws:u1:placeBid", key)

	for i := 0; i < 5; i++ {
		d, err := l.Allow(ctx, key)
		require.NoError(t, err)
		require.True(t, d.Allowed, "bid %d", i+1)
	}
	d, err := l.Allow(ctx, key)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, int64(0), d.Remaining)
	assert.Equal(t, time.Second, d.RetryAfter)

	// other users have their own bucket
	d, err = l.Allow(ctx, l.Key("u2", "placeBid"))
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	now = now.Add(time.Second)
	d, err = l.Allow(ctx, key)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(4), d.Remaining)
}

func TestLimiterFailsOpenWithoutRedis(t *testing.T) {
	l := NewLimiter(nil, throttleConfig())
	d, err := l.Allow(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	var nilLimiter *Limiter
	d, err = nilLimiter.Allow(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestLimiterReportsRedisErrors(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	d, err := NewLimiter(rdb, throttleConfig()).Allow(context.Background(), "k")
	require.Error(t, err)
	assert.True(t, d.Allowed)
}
