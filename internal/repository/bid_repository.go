package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/live-auction/internal/model"
)

// BidRepo provides data access to the bids table.  Bids are append-only:
// there is no update or delete.
type BidRepo struct{}

// NewBidRepo constructs a BidRepo.
func NewBidRepo() *BidRepo { return &BidRepo{} }

const bidColumns = `id, auction_id, bidder_id, amount, created_at`

// rankOrder is the winner rule: highest amount, earliest commit, lowest id.
const rankOrder = ` ORDER BY amount DESC, created_at ASC, id ASC`

// Create inserts a bid.  Callers run it in the same transaction as the
// auction compare-and-swap.
func (r *BidRepo) Create(ctx context.Context, q querier, b model.Bid) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO bids (`+bidColumns+`) VALUES (?, ?, ?, ?, ?)`,
		b.ID, b.AuctionID, b.BidderID, b.Amount, b.CreatedAt)
	if isDuplicate(err) {
		return ErrDuplicate
	}
	return err
}

// Highest returns the leading bid of an auction or ErrNoBids.
func (r *BidRepo) Highest(ctx context.Context, q querier, auctionID string) (model.Bid, error) {
	var b model.Bid
	err := q.QueryRowContext(ctx,
		`SELECT `+bidColumns+` FROM bids WHERE auction_id = ?`+rankOrder+` LIMIT 1`, auctionID).
		Scan(&b.ID, &b.AuctionID, &b.BidderID, &b.Amount, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Bid{}, ErrNoBids
	}
	return b, err
}

// ListByAuction returns up to limit bids in rank order.
func (r *BidRepo) ListByAuction(ctx context.Context, q querier, auctionID string, limit int) ([]model.Bid, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := q.QueryContext(ctx,
		`SELECT `+bidColumns+` FROM bids WHERE auction_id = ?`+rankOrder+` LIMIT ?`, auctionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Bid{}
	for rows.Next() {
		var b model.Bid
		if err := rows.Scan(&b.ID, &b.AuctionID, &b.BidderID, &b.Amount, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Count returns the number of bids on an auction.
func (r *BidRepo) Count(ctx context.Context, q querier, auctionID string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM bids WHERE auction_id = ?`, auctionID).Scan(&n)
	return n, err
}

// DistinctBidders returns every user that bid on the auction.
func (r *BidRepo) DistinctBidders(ctx context.Context, q querier, auctionID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT DISTINCT bidder_id FROM bids WHERE auction_id = ? ORDER BY bidder_id`, auctionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
