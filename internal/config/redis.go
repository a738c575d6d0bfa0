package config

// Redis backs the auction lock leases, the highest-bid and room caches, the
// websocket bid throttle, HTTP rate limiting and the cross-instance broadcast
// relay.  If the server is unreachable at startup NewRedisClient returns nil
// and callers degrade: locks fall back to an in-process table, caches turn
// into no-ops and the relay is disabled.

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds connection settings for the shared Redis server.
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	TLS         bool
	PingTimeout time.Duration
}

// LoadRedisConfig reads REDIS_ADDR, or REDIS_HOST and REDIS_PORT (which take
// precedence when both are set), plus REDIS_PASSWORD, REDIS_DB and
// REDIS_TLS.
func LoadRedisConfig() RedisConfig {
	addr := envStr("REDIS_ADDR", "localhost:6379")
	if host, port := envStr("REDIS_HOST", ""), envStr("REDIS_PORT", ""); host != "" && port != "" {
		addr = host + ":" + port
	}
	return RedisConfig{
		Addr:        addr,
		Password:    envStr("REDIS_PASSWORD", ""),
		DB:          envInt("REDIS_DB", 0),
		TLS:         envBool("REDIS_TLS", false),
		PingTimeout: envDur("REDIS_PING_TIMEOUT", 2*time.Second),
	}
}

// NewRedisClient instantiates a Redis client and pings it.  The returned
// client is nil if the server cannot be reached.
func NewRedisClient(cfg RedisConfig) *redis.Client {
	var tlsConf *tls.Config
	if cfg.TLS {
		tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(&redis.Options{
		Addr:      cfg.Addr,
		Password:  cfg.Password,
		DB:        cfg.DB,
		TLSConfig: tlsConf,
	})
	ctx, cancel := context.WithTimeout(context.Background(), cfg.PingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil
	}
	return client
}
