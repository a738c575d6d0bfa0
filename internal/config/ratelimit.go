package config

import "time"

// RateLimitConfig configures a Redis token bucket.  The same shape is used
// for the HTTP middleware and for the websocket bid throttle.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	KeyStrategy    string
	Prefix         string
	Debug          bool
}

// LoadRateLimitConfig returns the HTTP rate limit settings.
func LoadRateLimitConfig() RateLimitConfig {
	def := RateLimitConfig{
		Enabled:        envBool("RATE_LIMIT_ENABLED", true),
		Capacity:       envInt("RATE_LIMIT_CAPACITY", 60),
		RefillTokens:   envInt("RATE_LIMIT_REFILL_TOKENS", 1),
		RefillInterval: envDur("RATE_LIMIT_REFILL_INTERVAL", time.Second),
		TTL:            envDur("RATE_LIMIT_TTL", 10*time.Minute),
		KeyStrategy:    envStr("RATE_LIMIT_KEY_STRATEGY", "ip_user_route"),
		Prefix:         envStr("RATE_LIMIT_PREFIX", "rl"),
		Debug:          envBool("RATE_LIMIT_DEBUG", false),
	}
	if every := envDur("RATE_LIMIT_REFILL_EVERY", 0); every > 0 {
		def.RefillTokens = 1
		def.RefillInterval = every
	}
	return def.normalized()
}

// LoadBidThrottleConfig returns the per-user websocket placeBid throttle:
// five bids per second by default, keyed throttle:ws:<user>:placeBid.
func LoadBidThrottleConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:        envBool("WS_BID_THROTTLE_ENABLED", true),
		Capacity:       envInt("WS_BID_THROTTLE_LIMIT", 5),
		RefillTokens:   envInt("WS_BID_THROTTLE_LIMIT", 5),
		RefillInterval: envDur("WS_BID_THROTTLE_WINDOW", time.Second),
		TTL:            envDur("WS_BID_THROTTLE_TTL", time.Minute),
		KeyStrategy:    "user",
		Prefix:         "throttle:ws",
	}.normalized()
}

func (c RateLimitConfig) normalized() RateLimitConfig {
	if c.Capacity < 1 {
		c.Capacity = 1
	}
	if c.RefillTokens < 1 {
		c.RefillTokens = 1
	}
	if c.RefillInterval <= 0 {
		c.RefillInterval = time.Second
	}
	if minTTL := 5 * c.RefillInterval; c.TTL < minTTL {
		c.TTL = minTTL
	}
	return c
}
