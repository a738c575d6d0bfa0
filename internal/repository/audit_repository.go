package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/live-auction/internal/model"
)

// AuditRepo writes the audit_log table.  The unique dedupe_key column turns
// redelivered messages into no-ops.
type AuditRepo struct{}

// NewAuditRepo constructs an AuditRepo.
func NewAuditRepo() *AuditRepo { return &AuditRepo{} }

// Record inserts rec with INSERT IGNORE and reports whether a row was added.
func (r *AuditRepo) Record(ctx context.Context, q querier, rec model.AuditRecord) (bool, error) {
	var data any
	if len(rec.Data) > 0 {
		data = []byte(rec.Data)
	}
	res, err := q.ExecContext(ctx,
		`INSERT IGNORE INTO audit_log (dedupe_key, event_type, user_id, auction_id, bid_id, data, occurred_at, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.DedupeKey, rec.EventType, emptyAsNull(rec.UserID), emptyAsNull(rec.AuctionID),
		emptyAsNull(rec.BidID), data, rec.OccurredAt, rec.RecordedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// List returns the newest records first, optionally for one auction.
func (r *AuditRepo) List(ctx context.Context, q querier, auctionID string, limit int) ([]model.AuditRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := q.QueryContext(ctx,
		`SELECT id, dedupe_key, event_type, user_id, auction_id, bid_id, data, occurred_at, recorded_at
		 FROM audit_log WHERE (? = '' OR auction_id = ?) ORDER BY id DESC LIMIT ?`,
		auctionID, auctionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.AuditRecord{}
	for rows.Next() {
		var (
			rec                    model.AuditRecord
			userID, auction, bidID sql.NullString
			data                   []byte
		)
		if err := rows.Scan(&rec.ID, &rec.DedupeKey, &rec.EventType, &userID, &auction, &bidID,
			&data, &rec.OccurredAt, &rec.RecordedAt); err != nil {
			return nil, err
		}
		rec.UserID, rec.AuctionID, rec.BidID = userID.String, auction.String, bidID.String
		rec.Data = data
		out = append(out, rec)
	}
	return out, rows.Err()
}
