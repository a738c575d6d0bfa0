package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iliyamo/live-auction/internal/utils"
)

// LocalLocker is an in-process lease table with the same contract as
// RedisLocker.  It only serializes callers inside one process and is used
// when Redis is unavailable and in tests.
type LocalLocker struct {
	mu      sync.Mutex
	leases  map[string]Lease
	now     func() time.Time
	expired atomic.Int64
}

// NewLocalLocker returns an empty lease table.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{leases: make(map[string]Lease), now: time.Now}
}

func (l *LocalLocker) Acquire(_ context.Context, key string, ttl time.Duration) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if cur, ok := l.leases[key]; ok && now.Before(cur.ExpiresAt) {
		return Lease{}, ErrNotAcquired
	}
	lease := Lease{Key: key, Token: utils.NewID(), ExpiresAt: now.Add(ttl)}
	l.leases[key] = lease
	return lease, nil
}

func (l *LocalLocker) Release(_ context.Context, lease Lease) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.leases[lease.Key]
	if !ok || cur.Token != lease.Token {
		l.expired.Add(1)
		return nil
	}
	if !l.now().Before(cur.ExpiresAt) {
		l.expired.Add(1)
	}
	delete(l.leases, lease.Key)
	return nil
}

// ExpiredReleases mirrors RedisLocker.ExpiredReleases.
func (l *LocalLocker) ExpiredReleases() int64 { return l.expired.Load() }
