package config

import "time"

// BiddingConfig tunes the bid serializer and the auction scheduler.
//
// LockLease must comfortably exceed the worst-case critical section (read,
// validate, transactional commit), which is itself bounded by StoreTimeout.
type BiddingConfig struct {
	LockLease         time.Duration
	StoreTimeout      time.Duration
	BidCeiling        int64
	PriorityWindow    time.Duration // bids this close to endTime go to bid.priority
	SweepInterval     time.Duration
	ContentionRetries int           // attempts made by PlaceBidWithRetry
	ContentionBackoff time.Duration // first backoff step for PlaceBidWithRetry
	RoomIdleTimeout   time.Duration // rooms without activity are reaped after this
	OutboxInterval    time.Duration // how often the relay looks for undelivered events
	OutboxGrace       time.Duration // left to the inline publish before the relay takes over
	OutboxRetryBase   time.Duration
	OutboxRetryMax    time.Duration
	OutboxMaxAttempts int // publish attempts before a row is marked failed
}

// LoadBiddingConfig reads the BID_* and AUCTION_* variables.
func LoadBiddingConfig() BiddingConfig {
	cfg := BiddingConfig{
		LockLease:         envDur("BID_LOCK_LEASE", 5*time.Second),
		StoreTimeout:      envDur("BID_STORE_TIMEOUT", 3*time.Second),
		BidCeiling:        envInt64("BID_CEILING", 10_000_000),
		PriorityWindow:    envDur("BID_PRIORITY_WINDOW", time.Minute),
		SweepInterval:     envDur("AUCTION_SWEEP_INTERVAL", 5*time.Second),
		ContentionRetries: envInt("BID_CONTENTION_RETRIES", 3),
		ContentionBackoff: envDur("BID_CONTENTION_BACKOFF", 25*time.Millisecond),
		RoomIdleTimeout:   envDur("ROOM_IDLE_TIMEOUT", time.Hour),
		OutboxInterval:    envDur("OUTBOX_INTERVAL", time.Second),
		OutboxGrace:       envDur("OUTBOX_GRACE", 15*time.Second),
		OutboxRetryBase:   envDur("OUTBOX_RETRY_BASE", time.Second),
		OutboxRetryMax:    envDur("OUTBOX_RETRY_MAX", time.Minute),
		OutboxMaxAttempts: envInt("OUTBOX_MAX_ATTEMPTS", 10),
	}
	if cfg.OutboxMaxAttempts < 1 {
		cfg.OutboxMaxAttempts = 1
	}
	if cfg.LockLease <= cfg.StoreTimeout {
		cfg.LockLease = cfg.StoreTimeout + 2*time.Second
	}
	return cfg
}
