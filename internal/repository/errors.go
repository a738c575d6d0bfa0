// Package repository implements the persistence gateway of the bidding
// core: reads, transactional writes and the compare-and-swap update of
// auction records, the transactional event outbox and the idempotent audit
// ledger.  The sentinel values below let the service layer distinguish
// failure scenarios without inspecting driver errors.
package repository

import "errors"

// ErrAuctionNotFound is returned when no auction has the requested id.
var ErrAuctionNotFound = errors.New("auction not found")

// ErrStaleVersion is returned by a compare-and-swap write whose expected
// version no longer matches the stored row.  Nothing was written.  The
// service treats it as a retryable conflict.
var ErrStaleVersion = errors.New("stale auction version")

// ErrDuplicate is returned when inserting a record whose primary key already
// exists.
var ErrDuplicate = errors.New("duplicate record")

// ErrNoBids is returned by HighestBid when the auction has no committed bid.
var ErrNoBids = errors.New("no bids")
