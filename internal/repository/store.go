package repository

import (
	"context"
	"time"

	"github.com/iliyamo/live-auction/internal/model"
)

// AuctionFilter narrows ListAuctions.  A zero Status matches every status.
type AuctionFilter struct {
	Status model.AuctionStatus
	Limit  int
	Offset int
}

// Store is the persistence gateway used by the bidding service.  Reads
// outside RunInTx see committed state only.  Every mutation goes through a
// Tx so the bid insert and the auction compare-and-swap commit as one unit
// or not at all.
type Store interface {
	GetAuction(ctx context.Context, id string) (model.Auction, error)
	ListAuctions(ctx context.Context, f AuctionFilter) ([]model.Auction, error)
	// ListBids returns bids ordered by amount desc, then earliest first.
	ListBids(ctx context.Context, auctionID string, limit int) ([]model.Bid, error)
	CountBids(ctx context.Context, auctionID string) (int, error)
	DistinctBidders(ctx context.Context, auctionID string) ([]string, error)
	DueForStart(ctx context.Context, now time.Time, limit int) ([]string, error)
	DueForEnd(ctx context.Context, now time.Time, limit int) ([]string, error)
	// RunInTx runs fn inside a transaction.  The transaction commits only
	// when fn returns nil and is rolled back on every other exit path,
	// including a panic inside fn.
	RunInTx(ctx context.Context, fn func(tx Tx) error) error

	// PendingOutbox returns pending outbox rows due at now, oldest first.
	PendingOutbox(ctx context.Context, now time.Time, limit int) ([]model.OutboxEvent, error)
	// ClaimOutbox moves a pending row's next attempt from seen to until and
	// reports whether this caller won the row.
	ClaimOutbox(ctx context.Context, id string, seen, until time.Time) (bool, error)
	// UpdateOutbox stores the delivery state of a row.
	UpdateOutbox(ctx context.Context, ev model.OutboxEvent) error
}

// Tx is a transaction-scoped handle.  It must not be used after the
// RunInTx callback returns.
type Tx interface {
	GetAuction(ctx context.Context, id string) (model.Auction, error)
	InsertAuction(ctx context.Context, a *model.Auction) error
	// UpdateAuction writes a only if the stored version equals
	// expectedVersion, and sets a.Version to expectedVersion+1 on success.
	// It returns ErrStaleVersion otherwise.
	UpdateAuction(ctx context.Context, a *model.Auction, expectedVersion int64) error
	DeleteAuction(ctx context.Context, id string, expectedVersion int64) error
	InsertBid(ctx context.Context, b model.Bid) error
	// HighestBid returns the winning bid under the tie-break rule or ErrNoBids.
	HighestBid(ctx context.Context, auctionID string) (model.Bid, error)
	// InsertOutbox stages an event that becomes visible to the relay only if
	// the transaction commits.
	InsertOutbox(ctx context.Context, ev model.OutboxEvent) error
}

// AuditLedger is the append-only, deduplicated audit trail.
type AuditLedger interface {
	// Record inserts rec unless a record with the same DedupeKey exists.
	// inserted reports whether a new row was written.
	Record(ctx context.Context, rec model.AuditRecord) (inserted bool, err error)
	ListAudit(ctx context.Context, auctionID string, limit int) ([]model.AuditRecord, error)
}
