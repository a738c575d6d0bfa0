package config

import "time"

// CacheConfig defines settings for the Redis-backed caches.
//
// The response cache fields (Enabled, Methods, TTL, KeyStrategy, Prefix,
// MaxBodyBytes) drive the HTTP middleware applied to public listing routes.
// HighestBidTTL bounds how long a cached highest bid may live without being
// refreshed by a commit, and RoomInfoTTL is the lifetime of the room snapshot
// mirrored for other instances.
type CacheConfig struct {
	Enabled       bool
	Methods       map[string]bool
	TTL           time.Duration
	KeyStrategy   string
	Prefix        string
	MaxBodyBytes  int
	HighestBidTTL time.Duration
	RoomInfoTTL   time.Duration
}

// LoadCacheConfig reads environment variables to build a CacheConfig.
func LoadCacheConfig() CacheConfig {
	cfg := CacheConfig{
		Enabled:       envBool("CACHE_ENABLED", true),
		Methods:       parseMethods(envStr("CACHE_METHODS", "GET")),
		TTL:           envDur("CACHE_TTL", 5*time.Second),
		KeyStrategy:   envStr("CACHE_KEY_STRATEGY", "route_query"),
		Prefix:        envStr("CACHE_PREFIX", "cache"),
		MaxBodyBytes:  envInt("CACHE_MAX_BODY_BYTES", 1<<20),
		HighestBidTTL: envDur("CACHE_HIGHEST_BID_TTL", 24*time.Hour),
		RoomInfoTTL:   envDur("CACHE_ROOM_INFO_TTL", 300*time.Second),
	}
	if cfg.RoomInfoTTL <= 0 {
		cfg.RoomInfoTTL = 300 * time.Second
	}
	return cfg
}
