package repository

import (
	"context"      // context for controlling query lifetime
	"database/sql" // sql provides DB abstraction
	"errors"       // errors for sentinel matching
	"time"         // time for schedule queries

	"github.com/go-sql-driver/mysql" // mysql exposes driver error numbers

	"github.com/iliyamo/live-auction/internal/model"
)

// querier is satisfied by both *sql.DB and *sql.Tx, so every repository
// method can run inside or outside a transaction chosen by the caller.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

const auctionColumns = `id, owner_id, title, car_id, status, start_time, end_time, starting_bid, current_bid, winner_id, version, created_at, updated_at`

// AuctionRepo manages persistence for the auctions table.  It never decides
// whether a mutation is allowed; the bidding service does that while holding
// the auction lock, and the repository only guarantees the version check.
type AuctionRepo struct{}

// NewAuctionRepo constructs an AuctionRepo.
func NewAuctionRepo() *AuctionRepo { return &AuctionRepo{} }

type rowScanner interface{ Scan(dest ...any) error }

func scanAuction(s rowScanner) (model.Auction, error) {
	var (
		a       model.Auction
		status  string
		current sql.NullInt64
		winner  sql.NullString
	)
	err := s.Scan(&a.ID, &a.OwnerID, &a.Title, &a.CarID, &status, &a.StartTime, &a.EndTime,
		&a.StartingBid, &current, &winner, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return model.Auction{}, err
	}
	a.Status = model.AuctionStatus(status)
	if current.Valid {
		v := current.Int64
		a.CurrentBid = &v
	}
	if winner.Valid {
		v := winner.String
		a.WinnerID = &v
	}
	return a, nil
}

// GetByID retrieves an auction by its id.  It returns ErrAuctionNotFound if
// there is no matching row.
func (r *AuctionRepo) GetByID(ctx context.Context, q querier, id string) (model.Auction, error) {
	a, err := scanAuction(q.QueryRowContext(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Auction{}, ErrAuctionNotFound
	}
	return a, err
}

// Insert writes a new auction row.  The version always starts at 1.
func (r *AuctionRepo) Insert(ctx context.Context, q querier, a *model.Auction) error {
	a.Version = 1
	const ins = `INSERT INTO auctions (` + auctionColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := q.ExecContext(ctx, ins,
		a.ID, a.OwnerID, a.Title, a.CarID, string(a.Status), a.StartTime, a.EndTime,
		a.StartingBid, nullInt(a.CurrentBid), nullStr(a.WinnerID), a.Version, a.CreatedAt, a.UpdatedAt)
	if isDuplicate(err) {
		return ErrDuplicate
	}
	return err
}

// CompareAndSwap updates every mutable column of an auction in a single
// statement guarded by `version = expectedVersion`.  When no row matches, the
// record was changed (or removed) since it was read and ErrStaleVersion is
// returned without any effect.  On success a.Version is advanced.
func (r *AuctionRepo) CompareAndSwap(ctx context.Context, q querier, a *model.Auction, expectedVersion int64) error {
	const upd = `UPDATE auctions
		SET title = ?, car_id = ?, status = ?, start_time = ?, end_time = ?, starting_bid = ?,
		    current_bid = ?, winner_id = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`
	res, err := q.ExecContext(ctx, upd,
		a.Title, a.CarID, string(a.Status), a.StartTime, a.EndTime, a.StartingBid,
		nullInt(a.CurrentBid), nullStr(a.WinnerID), a.UpdatedAt, a.ID, expectedVersion)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStaleVersion
	}
	a.Version = expectedVersion + 1
	return nil
}

// Delete removes an auction guarded by its version.
func (r *AuctionRepo) Delete(ctx context.Context, q querier, id string, expectedVersion int64) error {
	res, err := q.ExecContext(ctx, `DELETE FROM auctions WHERE id = ? AND version = ?`, id, expectedVersion)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStaleVersion
	}
	return nil
}

// List returns auctions ordered by start time.
func (r *AuctionRepo) List(ctx context.Context, q querier, f AuctionFilter) ([]model.Auction, error) {
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `SELECT ` + auctionColumns + ` FROM auctions`
	args := []any{}
	if f.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(f.Status))
	}
	query += ` ORDER BY start_time ASC, id ASC LIMIT ? OFFSET ?`
	args = append(args, limit, f.Offset)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Auction{}
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// DueIDs returns ids of auctions in status whose timeColumn has passed.
// timeColumn is one of the two schedule columns and never user input.
func (r *AuctionRepo) DueIDs(ctx context.Context, q querier, status model.AuctionStatus, timeColumn string, now time.Time, limit int) ([]string, error) {
	if timeColumn != "start_time" && timeColumn != "end_time" {
		return nil, errors.New("repository: unsupported schedule column")
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := q.QueryContext(ctx,
		`SELECT id FROM auctions WHERE status = ? AND `+timeColumn+` <= ? ORDER BY `+timeColumn+` ASC LIMIT ?`,
		string(status), now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullStr(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}

func emptyAsNull(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
