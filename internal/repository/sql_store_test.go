package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/live-auction/internal/model"
)

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLStore(db, time.Second), mock
}

func TestSQLStoreCompareAndSwapStale(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t)
	ctx := context.Background()

	amount := int64(150)
	a := model.Auction{ID: "a1", Status: model.StatusActive, CurrentBid: &amount, Version: 3}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE auctions")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "ACTIVE", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "a1", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.RunInTx(ctx, func(tx Tx) error { return tx.UpdateAuction(ctx, &a, 3) })
	require.ErrorIs(t, err, ErrStaleVersion)
	require.Equal(t, int64(3), a.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreCommitsBidAndAuctionTogether(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t)
	ctx := context.Background()

	amount := int64(150)
	a := model.Auction{ID: "a1", Status: model.StatusActive, CurrentBid: &amount, Version: 1}
	b := model.Bid{ID: "b1", AuctionID: "a1", BidderID: "u1", Amount: 150, CreatedAt: time.Now()}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO bids")).
		WithArgs("b1", "a1", "u1", int64(150), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE auctions")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.RunInTx(ctx, func(tx Tx) error {
		if err := tx.InsertBid(ctx, b); err != nil {
			return err
		}
		return tx.UpdateAuction(ctx, &a, 1)
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), a.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreRollsBackOnPanic(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	require.Panics(t, func() {
		_ = s.RunInTx(context.Background(), func(tx Tx) error { panic("handler bug") })
	})
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreGetAuctionNotFound(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM auctions WHERE id = ?")).
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetAuction(context.Background(), "nope")
	require.True(t, errors.Is(err, ErrAuctionNotFound))
}

func TestSQLStoreGetAuctionScansNullables(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "owner_id", "title", "car_id", "status", "start_time", "end_time",
		"starting_bid", "current_bid", "winner_id", "version", "created_at", "updated_at"}).
		AddRow("a1", "o1", "Coupe", "car-9", "ACTIVE", now, now.Add(time.Hour), int64(100), int64(120), "u7", int64(4), now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, owner_id")).WithArgs("a1").WillReturnRows(rows)

	a, err := s.GetAuction(context.Background(), "a1")
	require.NoError(t, err)
	require.Equal(t, model.StatusActive, a.Status)
	require.Equal(t, int64(120), *a.CurrentBid)
	require.Equal(t, "u7", *a.WinnerID)
	require.Equal(t, int64(4), a.Version)
}

func TestSQLLedgerRecordReportsDuplicates(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t)
	rec := model.AuditRecord{DedupeKey: "bid:b1", EventType: "bid_committed", BidID: "b1", OccurredAt: time.Now()}

	mock.ExpectExec(regexp.QuoteMeta("INSERT IGNORE INTO audit_log")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT IGNORE INTO audit_log")).WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err := s.Record(context.Background(), rec)
	require.NoError(t, err)
	require.True(t, inserted)

	inserted, err = s.Record(context.Background(), rec)
	require.NoError(t, err)
	require.False(t, inserted)
}

func TestSQLStoreWritesOutboxInsideTheTransaction(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t)
	ctx := context.Background()
	row := model.OutboxEvent{
		ID: "bid-b1", AggregateID: "a1", EventType: "BidCommitted", Payload: []byte(`{"bidId":"b1"}`),
		Status: model.OutboxPending, NextAttemptAt: time.Now(), CreatedAt: time.Now(),
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO bids")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO event_outbox")).
		WithArgs("bid-b1", "a1", "BidCommitted", sqlmock.AnyArg(), false, "pending", 0, nil, sqlmock.AnyArg(), sqlmock.AnyArg(), nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := s.RunInTx(ctx, func(tx Tx) error {
		if err := tx.InsertBid(ctx, model.Bid{ID: "b1", AuctionID: "a1", BidderID: "u1", Amount: 150, CreatedAt: time.Now()}); err != nil {
			return err
		}
		return tx.InsertOutbox(ctx, row)
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreOutboxClaimChecksTheDueTime(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t)
	ctx := context.Background()
	seen := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	until := seen.Add(15 * time.Second)

	claim := regexp.QuoteMeta("UPDATE event_outbox SET next_attempt_at = ? WHERE id = ? AND status = 'pending' AND next_attempt_at = ?")
	mock.ExpectExec(claim).WithArgs(until, "e1", seen).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(claim).WithArgs(until, "e1", seen).WillReturnResult(sqlmock.NewResult(0, 0))

	won, err := s.ClaimOutbox(ctx, "e1", seen, until)
	require.NoError(t, err)
	require.True(t, won)
	won, err = s.ClaimOutbox(ctx, "e1", seen, until)
	require.NoError(t, err)
	require.False(t, won)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStorePendingOutboxScansRows(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "aggregate_id", "event_type", "payload", "priority", "status", "attempts",
		"last_error", "next_attempt_at", "created_at", "published_at"}).
		AddRow("bid-b1", "a1", "BidCommitted", []byte(`{}`), true, "pending", 2, "broker unreachable", now, now, nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM event_outbox")).WithArgs(now, 100).WillReturnRows(rows)

	got, err := s.PendingOutbox(context.Background(), now, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.True(t, got[0].Priority)
	require.Equal(t, model.OutboxPending, got[0].Status)
	require.Equal(t, 2, got[0].Attempts)
	require.Equal(t, "broker unreachable", got[0].LastError)
	require.Nil(t, got[0].PublishedAt)
}
