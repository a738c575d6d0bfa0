package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/live-auction/internal/model"
)

// SQLStore is the MySQL-backed Store and AuditLedger.  It composes the
// table repositories and owns transaction scoping.
type SQLStore struct {
	db       *sql.DB
	auctions *AuctionRepo
	bids     *BidRepo
	audit    *AuditRepo
	outbox   *OutboxRepo
	timeout  time.Duration
}

// NewSQLStore wraps db.  txTimeout bounds every RunInTx call; zero disables
// the bound.
func NewSQLStore(db *sql.DB, txTimeout time.Duration) *SQLStore {
	return &SQLStore{
		db:       db,
		auctions: NewAuctionRepo(),
		bids:     NewBidRepo(),
		audit:    NewAuditRepo(),
		outbox:   NewOutboxRepo(),
		timeout:  txTimeout,
	}
}

// DB exposes the underlying pool for health checks.
func (s *SQLStore) DB() *sql.DB { return s.db }

func (s *SQLStore) GetAuction(ctx context.Context, id string) (model.Auction, error) {
	return s.auctions.GetByID(ctx, s.db, id)
}

func (s *SQLStore) ListAuctions(ctx context.Context, f AuctionFilter) ([]model.Auction, error) {
	return s.auctions.List(ctx, s.db, f)
}

func (s *SQLStore) ListBids(ctx context.Context, auctionID string, limit int) ([]model.Bid, error) {
	return s.bids.ListByAuction(ctx, s.db, auctionID, limit)
}

func (s *SQLStore) CountBids(ctx context.Context, auctionID string) (int, error) {
	return s.bids.Count(ctx, s.db, auctionID)
}

func (s *SQLStore) DistinctBidders(ctx context.Context, auctionID string) ([]string, error) {
	return s.bids.DistinctBidders(ctx, s.db, auctionID)
}

func (s *SQLStore) DueForStart(ctx context.Context, now time.Time, limit int) ([]string, error) {
	return s.auctions.DueIDs(ctx, s.db, model.StatusPending, "start_time", now, limit)
}

func (s *SQLStore) DueForEnd(ctx context.Context, now time.Time, limit int) ([]string, error) {
	return s.auctions.DueIDs(ctx, s.db, model.StatusActive, "end_time", now, limit)
}

// RunInTx begins a transaction, hands a Tx to fn and commits when fn
// succeeds.  The deferred rollback runs on every other path, including a
// panic unwinding through fn, so no connection is ever left inside an open
// transaction.
func (s *SQLStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(&sqlTx{tx: tx, store: s}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *SQLStore) Record(ctx context.Context, rec model.AuditRecord) (bool, error) {
	return s.audit.Record(ctx, s.db, rec)
}

func (s *SQLStore) ListAudit(ctx context.Context, auctionID string, limit int) ([]model.AuditRecord, error) {
	return s.audit.List(ctx, s.db, auctionID, limit)
}

func (s *SQLStore) PendingOutbox(ctx context.Context, now time.Time, limit int) ([]model.OutboxEvent, error) {
	return s.outbox.Pending(ctx, s.db, now, limit)
}

func (s *SQLStore) ClaimOutbox(ctx context.Context, id string, seen, until time.Time) (bool, error) {
	return s.outbox.Claim(ctx, s.db, id, seen, until)
}

func (s *SQLStore) UpdateOutbox(ctx context.Context, ev model.OutboxEvent) error {
	return s.outbox.Update(ctx, s.db, ev)
}

// sqlTx routes every call through the open *sql.Tx.
type sqlTx struct {
	tx    *sql.Tx
	store *SQLStore
}

func (t *sqlTx) GetAuction(ctx context.Context, id string) (model.Auction, error) {
	return t.store.auctions.GetByID(ctx, t.tx, id)
}

func (t *sqlTx) InsertAuction(ctx context.Context, a *model.Auction) error {
	return t.store.auctions.Insert(ctx, t.tx, a)
}

func (t *sqlTx) UpdateAuction(ctx context.Context, a *model.Auction, expectedVersion int64) error {
	return t.store.auctions.CompareAndSwap(ctx, t.tx, a, expectedVersion)
}

func (t *sqlTx) DeleteAuction(ctx context.Context, id string, expectedVersion int64) error {
	return t.store.auctions.Delete(ctx, t.tx, id, expectedVersion)
}

func (t *sqlTx) InsertBid(ctx context.Context, b model.Bid) error {
	return t.store.bids.Create(ctx, t.tx, b)
}

func (t *sqlTx) HighestBid(ctx context.Context, auctionID string) (model.Bid, error) {
	return t.store.bids.Highest(ctx, t.tx, auctionID)
}

func (t *sqlTx) InsertOutbox(ctx context.Context, ev model.OutboxEvent) error {
	return t.store.outbox.Insert(ctx, t.tx, ev)
}
