package lock

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/live-auction/internal/utils"
)

// releaseScript deletes the key only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisLocker implements Locker on a shared Redis with SET NX PX.
type RedisLocker struct {
	rdb     redis.UniversalClient
	now     func() time.Time
	log     *logrus.Entry
	expired atomic.Int64
}

// NewRedisLocker returns a locker bound to rdb.
func NewRedisLocker(rdb redis.UniversalClient) *RedisLocker {
	return &RedisLocker{rdb: rdb, now: time.Now, log: utils.Component("lock")}
}

// Acquire performs one atomic set-if-absent with expiry.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	token := utils.NewID()
	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return Lease{}, err
	}
	if !ok {
		return Lease{}, ErrNotAcquired
	}
	return Lease{Key: key, Token: token, ExpiresAt: l.now().Add(ttl)}, nil
}

// Release runs the compare-and-delete script.  When the key is gone or
// belongs to another token the lease outlived its TTL; that is counted and
// logged but not returned as an error.
func (l *RedisLocker) Release(ctx context.Context, lease Lease) error {
	if lease.Token == "" {
		return nil
	}
	n, err := releaseScript.Run(ctx, l.rdb, []string{lease.Key}, lease.Token).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		l.expired.Add(1)
		l.log.WithFields(logrus.Fields{
			"key":        lease.Key,
			"expired_at": lease.ExpiresAt.UTC().Format(time.RFC3339Nano),
		}).Warn("lease expired before release")
	}
	return nil
}

// ExpiredReleases counts releases that found the lease already gone.  A
// non-zero value means the configured lease is too short for the critical
// section.
func (l *RedisLocker) ExpiredReleases() int64 { return l.expired.Load() }
