package model

import "time"

// Bid is an immutable record of one amount submitted by one bidder against
// one auction.  Bids are created exclusively by the bid serializer after a
// successful commit and are never updated or deleted.
//
// Fields:
//
//	ID        – primary key (UUID).
//	AuctionID – auction the bid was placed on.
//	BidderID  – user who placed the bid.
//	Amount    – whole currency units, always positive.
//	CreatedAt – commit time; used as the tie-breaker for equal amounts.
type Bid struct {
	ID        string    `json:"id"`        // bids.id
	AuctionID string    `json:"auctionId"` // bids.auction_id
	BidderID  string    `json:"bidderId"`  // bids.bidder_id
	Amount    int64     `json:"amount"`    // bids.amount
	CreatedAt time.Time `json:"createdAt"` // bids.created_at
}

// HighestBid is the cached projection of an auction's leading bid.  It is
// advisory only and may be stale or missing.
type HighestBid struct {
	Amount   int64  `json:"amount" cbor:"1,keyasint"`
	BidderID string `json:"bidderId" cbor:"2,keyasint"`
	// UpdatedAt is the unix millisecond timestamp of the write.
	UpdatedAt int64 `json:"updatedAt" cbor:"3,keyasint"`
}

// Outranks reports whether b beats other under the winner rule: higher amount
// first, then earlier creation time, then lower id for full determinism.
func (b Bid) Outranks(other Bid) bool {
	if b.Amount != other.Amount {
		return b.Amount > other.Amount
	}
	if !b.CreatedAt.Equal(other.CreatedAt) {
		return b.CreatedAt.Before(other.CreatedAt)
	}
	return b.ID < other.ID
}
