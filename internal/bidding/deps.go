// Package bidding is the bid serializer and auction state machine.  Every
// mutation of an auction runs under its lock lease and finishes with a
// version-checked write; events are published only after the lease is
// released.
package bidding

import (
	"context"

	"github.com/iliyamo/live-auction/internal/model"
	"github.com/iliyamo/live-auction/internal/queue"
)

// HighestBidCache is the advisory highest-bid cache.  *cache.BidCache
// implements it.
type HighestBidCache interface {
	GetHighestBid(ctx context.Context, auctionID string) (model.HighestBid, bool, error)
	SetHighestBid(ctx context.Context, auctionID string, amount int64, bidderID string) error
	// RepairHighestBid writes the value only when no entry exists.
	RepairHighestBid(ctx context.Context, auctionID string, amount int64, bidderID string) error
	Invalidate(ctx context.Context, auctionID string) error
}

// EventPublisher emits committed facts to the event pipeline.
// *queue.Publisher implements it.
type EventPublisher interface {
	PublishBidCommitted(ctx context.Context, ev queue.BidCommitted, priority bool) error
	PublishLifecycle(ctx context.Context, ev queue.AuctionLifecycleEvent) error
}

type nopCache struct{}

func (nopCache) GetHighestBid(context.Context, string) (model.HighestBid, bool, error) {
	return model.HighestBid{}, false, nil
}

func (nopCache) SetHighestBid(context.Context, string, int64, string) error    { return nil }
func (nopCache) RepairHighestBid(context.Context, string, int64, string) error { return nil }
func (nopCache) Invalidate(context.Context, string) error                      { return nil }

type nopPublisher struct{}

func (nopPublisher) PublishBidCommitted(context.Context, queue.BidCommitted, bool) error { return nil }
func (nopPublisher) PublishLifecycle(context.Context, queue.AuctionLifecycleEvent) error { return nil }
