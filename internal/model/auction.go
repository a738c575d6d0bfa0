package model

import "time"

// AuctionStatus is the lifecycle state of an auction.  Status only moves
// forward: PENDING -> ACTIVE -> ENDED.
type AuctionStatus string

const (
	StatusPending AuctionStatus = "PENDING"
	StatusActive  AuctionStatus = "ACTIVE"
	StatusEnded   AuctionStatus = "ENDED"
)

// Valid reports whether s is one of the known statuses.
func (s AuctionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusEnded:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is a legal forward
// step of the state machine.  ENDED is terminal.
func (s AuctionStatus) CanTransition(next AuctionStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusActive
	case StatusActive:
		return next == StatusEnded
	}
	return false
}

// Auction represents a timed sale with a single highest-bid pointer.  It is
// the only mutable record in the bidding core and every committed mutation
// increments Version, which the persistence gateway uses for its
// compare-and-swap update.
//
// Fields:
//
//	ID          – primary key (UUID).
//	OwnerID     – user who created the auction; may not bid on it.
//	Title       – display title.
//	CarID       – opaque reference to the listing owned by the catalog service.
//	Status      – PENDING, ACTIVE or ENDED.
//	StartTime   – when the auction opens for bids.
//	EndTime     – when the auction closes (always after StartTime).
//	StartingBid – minimum amount of the first bid, in whole currency units.
//	CurrentBid  – highest committed amount, nil until the first bid.
//	WinnerID    – bidder of the highest bid; while ACTIVE it is the leading
//	              bidder, once ENDED it is frozen.
//	Version     – optimistic concurrency counter.
//	CreatedAt   – creation timestamp.
//	UpdatedAt   – last mutation timestamp.
type Auction struct {
	ID          string        `json:"id"`          // auctions.id
	OwnerID     string        `json:"ownerId"`     // auctions.owner_id
	Title       string        `json:"title"`       // auctions.title
	CarID       string        `json:"carId"`       // auctions.car_id
	Status      AuctionStatus `json:"status"`      // auctions.status
	StartTime   time.Time     `json:"startTime"`   // auctions.start_time
	EndTime     time.Time     `json:"endTime"`     // auctions.end_time
	StartingBid int64         `json:"startingBid"` // auctions.starting_bid
	CurrentBid  *int64        `json:"currentBid"`  // auctions.current_bid (nullable)
	WinnerID    *string       `json:"winnerId"`    // auctions.winner_id (nullable)
	Version     int64         `json:"version"`     // auctions.version
	CreatedAt   time.Time     `json:"createdAt"`   // auctions.created_at
	UpdatedAt   time.Time     `json:"updatedAt"`   // auctions.updated_at
}

// MinimumNextBid returns the smallest amount the next bid may carry: the
// starting bid when nothing has been committed yet, otherwise one unit above
// the current bid.
func (a Auction) MinimumNextBid() int64 {
	if a.CurrentBid == nil {
		return a.StartingBid
	}
	return *a.CurrentBid + 1
}

// AcceptsBidsAt reports whether the auction is open for bidding at now.
func (a Auction) AcceptsBidsAt(now time.Time) bool {
	return a.Status == StatusActive && !now.After(a.EndTime)
}

// DueForStart reports whether a PENDING auction should be opened at now.
func (a Auction) DueForStart(now time.Time) bool {
	return a.Status == StatusPending && !now.Before(a.StartTime)
}

// DueForEnd reports whether an ACTIVE auction should be closed at now.
func (a Auction) DueForEnd(now time.Time) bool {
	return a.Status == StatusActive && !now.Before(a.EndTime)
}

// Clone returns a deep copy so callers can mutate nullable fields without
// aliasing the stored record.
func (a Auction) Clone() Auction {
	out := a
	if a.CurrentBid != nil {
		v := *a.CurrentBid
		out.CurrentBid = &v
	}
	if a.WinnerID != nil {
		v := *a.WinnerID
		out.WinnerID = &v
	}
	return out
}
