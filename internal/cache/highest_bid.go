// Package cache holds the advisory Redis caches of the bidding core.  Values
// here may be stale or missing at any time; they are never consulted when a
// bid is validated.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/live-auction/internal/model"
)

// BidCache caches the current highest bid of each auction under
// auction:<id>:highestBid.  A nil client turns every call into a no-op.
type BidCache struct {
	rdb redis.UniversalClient
	ttl time.Duration
	now func() time.Time
}

// NewBidCache returns a cache whose entries expire after ttl.
func NewBidCache(rdb redis.UniversalClient, ttl time.Duration) *BidCache {
	return &BidCache{rdb: rdb, ttl: ttl, now: time.Now}
}

func highestBidKey(auctionID string) string {
	return "auction:" + auctionID + ":highestBid"
}

// GetHighestBid returns the cached value and whether it was present.
func (c *BidCache) GetHighestBid(ctx context.Context, auctionID string) (model.HighestBid, bool, error) {
	if c == nil || c.rdb == nil {
		return model.HighestBid{}, false, nil
	}
	raw, err := c.rdb.Get(ctx, highestBidKey(auctionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.HighestBid{}, false, nil
	}
	if err != nil {
		return model.HighestBid{}, false, err
	}
	var hb model.HighestBid
	if err := cbor.Unmarshal(raw, &hb); err != nil {
		// an undecodable entry is treated as a miss and dropped
		_ = c.rdb.Del(ctx, highestBidKey(auctionID)).Err()
		return model.HighestBid{}, false, nil
	}
	return hb, true, nil
}

// SetHighestBid overwrites the cached value.
func (c *BidCache) SetHighestBid(ctx context.Context, auctionID string, amount int64, bidderID string) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	raw, err := c.encode(amount, bidderID)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, highestBidKey(auctionID), raw, c.ttl).Err()
}

// RepairHighestBid fills a missing entry from the database's view.  An
// existing entry is left alone: it was written by a bid commit and may be
// newer than what the caller read.
func (c *BidCache) RepairHighestBid(ctx context.Context, auctionID string, amount int64, bidderID string) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	raw, err := c.encode(amount, bidderID)
	if err != nil {
		return err
	}
	return c.rdb.SetNX(ctx, highestBidKey(auctionID), raw, c.ttl).Err()
}

func (c *BidCache) encode(amount int64, bidderID string) ([]byte, error) {
	return cbor.Marshal(model.HighestBid{Amount: amount, BidderID: bidderID, UpdatedAt: c.now().UnixMilli()})
}

// Invalidate removes the entry, e.g. once the auction has ended.
func (c *BidCache) Invalidate(ctx context.Context, auctionID string) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Del(ctx, highestBidKey(auctionID)).Err()
}
