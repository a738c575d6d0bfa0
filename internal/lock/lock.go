// Package lock grants short-lived, auction-scoped mutual-exclusion leases.
// Acquisition never waits: on contention it fails immediately with
// ErrNotAcquired and the caller decides whether to retry.  Correctness never
// depends on the lease alone, because every write it protects is also
// version checked.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrNotAcquired is returned when another holder owns the key.
var ErrNotAcquired = errors.New("lock: not acquired")

// Lease is a granted lock.  Token identifies the holder so that release can
// never delete a lease that expired and was re-granted to someone else.
type Lease struct {
	Key       string
	Token     string
	ExpiresAt time.Time
}

// Locker is implemented by RedisLocker and LocalLocker.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
	// Release is idempotent; releasing an expired or foreign lease is not an
	// error.
	Release(ctx context.Context, lease Lease) error
}

// AuctionKey returns the lock key for one auction.
func AuctionKey(auctionID string) string {
	return "lock:auction:" + auctionID
}
