package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/live-auction/internal/model"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func seedAuction(t *testing.T, s *MemoryStore, id string, status model.AuctionStatus) model.Auction {
	t.Helper()
	a := model.Auction{
		ID: id, OwnerID: "owner", Status: status, StartingBid: 100,
		StartTime: t0, EndTime: t0.Add(time.Hour), CreatedAt: t0, UpdatedAt: t0,
	}
	require.NoError(t, s.RunInTx(context.Background(), func(tx Tx) error {
		return tx.InsertAuction(context.Background(), &a)
	}))
	require.Equal(t, int64(1), a.Version)
	return a
}

func TestMemoryStoreCompareAndSwap(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()
	a := seedAuction(t, s, "a1", model.StatusActive)

	amount := int64(150)
	a.CurrentBid = &amount
	require.NoError(t, s.RunInTx(ctx, func(tx Tx) error { return tx.UpdateAuction(ctx, &a, 1) }))
	require.Equal(t, int64(2), a.Version)

	// a writer holding the old version loses and changes nothing
	stale := a
	other := int64(999)
	stale.CurrentBid = &other
	err := s.RunInTx(ctx, func(tx Tx) error { return tx.UpdateAuction(ctx, &stale, 1) })
	require.ErrorIs(t, err, ErrStaleVersion)

	got, err := s.GetAuction(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, int64(150), *got.CurrentBid)
	require.Equal(t, int64(2), got.Version)
}

func TestMemoryStoreRollsBackOnCallbackError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()
	a := seedAuction(t, s, "a1", model.StatusActive)

	boom := errors.New("boom")
	err := s.RunInTx(ctx, func(tx Tx) error {
		require.NoError(t, tx.InsertBid(ctx, model.Bid{ID: "b1", AuctionID: "a1", BidderID: "x", Amount: 100, CreatedAt: t0}))
		amount := int64(100)
		a.CurrentBid = &amount
		require.NoError(t, tx.UpdateAuction(ctx, &a, 1))
		return boom
	})
	require.ErrorIs(t, err, boom)

	n, _ := s.CountBids(ctx, "a1")
	require.Zero(t, n)
	got, _ := s.GetAuction(ctx, "a1")
	require.Nil(t, got.CurrentBid)
	require.Equal(t, int64(1), got.Version)
}

func TestMemoryStoreConcurrentCASOnlyOneWins(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()
	seedAuction(t, s, "a1", model.StatusActive)

	const writers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.RunInTx(ctx, func(tx Tx) error {
				a, err := tx.GetAuction(ctx, "a1")
				if err != nil {
					return err
				}
				amount := int64(100 + i)
				a.CurrentBid = &amount
				return tx.UpdateAuction(ctx, &a, 1)
			})
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			} else {
				require.ErrorIs(t, err, ErrStaleVersion)
			}
		}(i)
	}
	wg.Wait()
	require.Equal(t, 1, success)
}

func TestMemoryStoreHighestBidTieBreak(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()
	seedAuction(t, s, "a1", model.StatusActive)

	require.NoError(t, s.RunInTx(ctx, func(tx Tx) error {
		_ = tx.InsertBid(ctx, model.Bid{ID: "late", AuctionID: "a1", BidderID: "b", Amount: 100, CreatedAt: t0.Add(time.Second)})
		_ = tx.InsertBid(ctx, model.Bid{ID: "early", AuctionID: "a1", BidderID: "a", Amount: 100, CreatedAt: t0})
		_ = tx.InsertBid(ctx, model.Bid{ID: "low", AuctionID: "a1", BidderID: "c", Amount: 90, CreatedAt: t0})
		return nil
	}))

	var top model.Bid
	require.NoError(t, s.RunInTx(ctx, func(tx Tx) error {
		var err error
		top, err = tx.HighestBid(ctx, "a1")
		return err
	}))
	require.Equal(t, "early", top.ID)

	bids, err := s.ListBids(ctx, "a1", 10)
	require.NoError(t, err)
	require.Equal(t, []string{"early", "late", "low"}, []string{bids[0].ID, bids[1].ID, bids[2].ID})

	bidders, err := s.DistinctBidders(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, bidders)

	require.NoError(t, s.RunInTx(ctx, func(tx Tx) error {
		_, err := tx.HighestBid(ctx, "missing")
		require.ErrorIs(t, err, ErrNoBids)
		return nil
	}))
}

func TestMemoryStoreDueAndList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()
	seedAuction(t, s, "p1", model.StatusPending)
	seedAuction(t, s, "a1", model.StatusActive)

	start, _ := s.DueForStart(ctx, t0, 10)
	require.Equal(t, []string{"p1"}, start)
	end, _ := s.DueForEnd(ctx, t0.Add(time.Hour), 10)
	require.Equal(t, []string{"a1"}, end)
	none, _ := s.DueForEnd(ctx, t0, 10)
	require.Empty(t, none)

	pending, _ := s.ListAuctions(ctx, AuctionFilter{Status: model.StatusPending})
	require.Len(t, pending, 1)
	all, _ := s.ListAuctions(ctx, AuctionFilter{})
	require.Len(t, all, 2)
}

func TestMemoryLedgerDeduplicates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()

	rec := model.AuditRecord{DedupeKey: "bid:b1", EventType: "bid_committed", AuctionID: "a1", OccurredAt: t0}
	inserted, err := s.Record(ctx, rec)
	require.NoError(t, err)
	require.True(t, inserted)

	inserted, err = s.Record(ctx, rec)
	require.NoError(t, err)
	require.False(t, inserted)

	list, _ := s.ListAudit(ctx, "a1", 10)
	require.Len(t, list, 1)
}

func TestMemoryOutboxStagesWithTheTransaction(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()
	row := model.OutboxEvent{ID: "bid-b1", AggregateID: "a1", Status: model.OutboxPending, NextAttemptAt: t0, CreatedAt: t0}

	boom := errors.New("boom")
	err := s.RunInTx(ctx, func(tx Tx) error {
		require.NoError(t, tx.InsertOutbox(ctx, row))
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Empty(t, s.Outbox())

	require.NoError(t, s.RunInTx(ctx, func(tx Tx) error { return tx.InsertOutbox(ctx, row) }))
	err = s.RunInTx(ctx, func(tx Tx) error { return tx.InsertOutbox(ctx, row) })
	require.ErrorIs(t, err, ErrDuplicate)
	require.Len(t, s.Outbox(), 1)
}

func TestMemoryOutboxClaimIsExclusive(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.RunInTx(ctx, func(tx Tx) error {
		require.NoError(t, tx.InsertOutbox(ctx, model.OutboxEvent{ID: "e1", Status: model.OutboxPending, NextAttemptAt: t0, CreatedAt: t0}))
		return tx.InsertOutbox(ctx, model.OutboxEvent{ID: "e2", Status: model.OutboxPending, NextAttemptAt: t0.Add(time.Minute), CreatedAt: t0})
	}))

	due, err := s.PendingOutbox(ctx, t0, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, "e1", due[0].ID)

	until := t0.Add(15 * time.Second)
	won, err := s.ClaimOutbox(ctx, "e1", t0, until)
	require.NoError(t, err)
	require.True(t, won)
	won, err = s.ClaimOutbox(ctx, "e1", t0, until)
	require.NoError(t, err)
	require.False(t, won, "a second relay saw the old due time")

	due, _ = s.PendingOutbox(ctx, t0.Add(time.Minute), 10)
	require.Len(t, due, 1)
	require.Equal(t, "e2", due[0].ID)

	sent := due[0]
	sent.Status = model.OutboxSent
	require.NoError(t, s.UpdateOutbox(ctx, sent))
	won, _ = s.ClaimOutbox(ctx, "e2", sent.NextAttemptAt, until)
	require.False(t, won, "sent rows cannot be claimed")
	due, _ = s.PendingOutbox(ctx, t0.Add(time.Hour), 10)
	require.Len(t, due, 1)
	require.Equal(t, "e1", due[0].ID)
}
