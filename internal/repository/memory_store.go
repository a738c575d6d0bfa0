package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/live-auction/internal/model"
)

// MemoryStore is an in-process Store and AuditLedger.  It backs local
// development (STORE_DRIVER=memory) and the service tests.  Transactions
// stage their writes and apply them atomically at commit, re-checking every
// compare-and-swap against committed state, so concurrent transactions on
// different auctions proceed in parallel and a failed callback leaves no
// trace.
type MemoryStore struct {
	mu        sync.RWMutex
	auctions  map[string]model.Auction
	bids      map[string][]model.Bid // auction id -> bids in commit order
	audit     []model.AuditRecord
	auditKeys map[string]struct{}
	nextAudit int64
	outbox    []model.OutboxEvent // commit order
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		auctions:  make(map[string]model.Auction),
		bids:      make(map[string][]model.Bid),
		auditKeys: make(map[string]struct{}),
	}
}

func (s *MemoryStore) GetAuction(_ context.Context, id string) (model.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.auctions[id]
	if !ok {
		return model.Auction{}, ErrAuctionNotFound
	}
	return a.Clone(), nil
}

func (s *MemoryStore) ListAuctions(_ context.Context, f AuctionFilter) ([]model.Auction, error) {
	s.mu.RLock()
	out := make([]model.Auction, 0, len(s.auctions))
	for _, a := range s.auctions {
		if f.Status == "" || a.Status == f.Status {
			out = append(out, a.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if f.Offset >= len(out) {
		return []model.Auction{}, nil
	}
	out = out[f.Offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListBids(_ context.Context, auctionID string, limit int) ([]model.Bid, error) {
	s.mu.RLock()
	out := append([]model.Bid(nil), s.bids[auctionID]...)
	s.mu.RUnlock()

	sortRanked(out)
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if len(out) > limit {
		out = out[:limit]
	}
	if out == nil {
		out = []model.Bid{}
	}
	return out, nil
}

func (s *MemoryStore) CountBids(_ context.Context, auctionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bids[auctionID]), nil
}

func (s *MemoryStore) DistinctBidders(_ context.Context, auctionID string) ([]string, error) {
	s.mu.RLock()
	seen := map[string]struct{}{}
	out := []string{}
	for _, b := range s.bids[auctionID] {
		if _, ok := seen[b.BidderID]; !ok {
			seen[b.BidderID] = struct{}{}
			out = append(out, b.BidderID)
		}
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) DueForStart(_ context.Context, now time.Time, limit int) ([]string, error) {
	return s.due(func(a model.Auction) bool { return a.DueForStart(now) }, limit), nil
}

func (s *MemoryStore) DueForEnd(_ context.Context, now time.Time, limit int) ([]string, error) {
	return s.due(func(a model.Auction) bool { return a.DueForEnd(now) }, limit), nil
}

func (s *MemoryStore) due(match func(model.Auction) bool, limit int) []string {
	s.mu.RLock()
	ids := []string{}
	for id, a := range s.auctions {
		if match(a) {
			ids = append(ids, id)
		}
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	if limit <= 0 {
		limit = 100
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids
}

// RunInTx stages fn's writes and applies them only if fn succeeds and every
// staged compare-and-swap still matches committed state.
func (s *MemoryStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	tx := &memTx{store: s, staged: map[string]*stagedAuction{}}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *MemoryStore) commit(tx *memTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, st := range tx.staged {
		cur, exists := s.auctions[id]
		switch st.op {
		case opInsert:
			if exists {
				return ErrDuplicate
			}
		case opUpdate, opDelete:
			if !exists || cur.Version != st.expected {
				return ErrStaleVersion
			}
		}
	}
	for _, b := range tx.bids {
		for _, existing := range s.bids[b.AuctionID] {
			if existing.ID == b.ID {
				return ErrDuplicate
			}
		}
	}
	for _, ev := range tx.outbox {
		if s.outboxIndex(ev.ID) >= 0 {
			return ErrDuplicate
		}
	}

	for id, st := range tx.staged {
		switch st.op {
		case opInsert, opUpdate:
			s.auctions[id] = st.auction.Clone()
		case opDelete:
			delete(s.auctions, id)
			delete(s.bids, id)
		}
	}
	for _, b := range tx.bids {
		s.bids[b.AuctionID] = append(s.bids[b.AuctionID], b)
	}
	s.outbox = append(s.outbox, tx.outbox...)
	return nil
}

func (s *MemoryStore) outboxIndex(id string) int {
	for i := range s.outbox {
		if s.outbox[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *MemoryStore) PendingOutbox(_ context.Context, now time.Time, limit int) ([]model.OutboxEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 100
	}
	out := []model.OutboxEvent{}
	for _, ev := range s.outbox {
		if len(out) == limit {
			break
		}
		if ev.Status == model.OutboxPending && !ev.NextAttemptAt.After(now) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *MemoryStore) ClaimOutbox(_ context.Context, id string, seen, until time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.outboxIndex(id)
	if i < 0 || s.outbox[i].Status != model.OutboxPending || !s.outbox[i].NextAttemptAt.Equal(seen) {
		return false, nil
	}
	s.outbox[i].NextAttemptAt = until
	return true, nil
}

func (s *MemoryStore) UpdateOutbox(_ context.Context, ev model.OutboxEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.outboxIndex(ev.ID); i >= 0 {
		s.outbox[i] = ev
	}
	return nil
}

// Outbox returns every outbox row in commit order.
func (s *MemoryStore) Outbox() []model.OutboxEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.OutboxEvent(nil), s.outbox...)
}

func (s *MemoryStore) Record(_ context.Context, rec model.AuditRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.auditKeys[rec.DedupeKey]; dup {
		return false, nil
	}
	s.nextAudit++
	rec.ID = s.nextAudit
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	s.auditKeys[rec.DedupeKey] = struct{}{}
	s.audit = append(s.audit, rec)
	return true, nil
}

func (s *MemoryStore) ListAudit(_ context.Context, auctionID string, limit int) ([]model.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	out := []model.AuditRecord{}
	for i := len(s.audit) - 1; i >= 0 && len(out) < limit; i-- {
		if auctionID == "" || s.audit[i].AuctionID == auctionID {
			out = append(out, s.audit[i])
		}
	}
	return out, nil
}

type stagedOp int

const (
	opInsert stagedOp = iota + 1
	opUpdate
	opDelete
)

type stagedAuction struct {
	op       stagedOp
	auction  model.Auction
	expected int64
}

type memTx struct {
	store  *MemoryStore
	staged map[string]*stagedAuction
	bids   []model.Bid
	outbox []model.OutboxEvent
}

func (t *memTx) GetAuction(ctx context.Context, id string) (model.Auction, error) {
	if st, ok := t.staged[id]; ok {
		if st.op == opDelete {
			return model.Auction{}, ErrAuctionNotFound
		}
		return st.auction.Clone(), nil
	}
	return t.store.GetAuction(ctx, id)
}

func (t *memTx) InsertAuction(ctx context.Context, a *model.Auction) error {
	if _, err := t.GetAuction(ctx, a.ID); err == nil {
		return ErrDuplicate
	}
	a.Version = 1
	t.staged[a.ID] = &stagedAuction{op: opInsert, auction: a.Clone()}
	return nil
}

func (t *memTx) UpdateAuction(ctx context.Context, a *model.Auction, expectedVersion int64) error {
	cur, err := t.GetAuction(ctx, a.ID)
	if err != nil || cur.Version != expectedVersion {
		return ErrStaleVersion
	}
	next := a.Clone()
	next.Version = expectedVersion + 1
	st := &stagedAuction{op: opUpdate, auction: next, expected: expectedVersion}
	if prev, ok := t.staged[a.ID]; ok {
		// a second write in the same tx keeps the version the tx started from
		st.op, st.expected = prev.op, prev.expected
	}
	t.staged[a.ID] = st
	a.Version = next.Version
	return nil
}

func (t *memTx) DeleteAuction(ctx context.Context, id string, expectedVersion int64) error {
	cur, err := t.GetAuction(ctx, id)
	if err != nil || cur.Version != expectedVersion {
		return ErrStaleVersion
	}
	t.staged[id] = &stagedAuction{op: opDelete, auction: cur, expected: expectedVersion}
	return nil
}

func (t *memTx) InsertBid(_ context.Context, b model.Bid) error {
	t.bids = append(t.bids, b)
	return nil
}

func (t *memTx) InsertOutbox(_ context.Context, ev model.OutboxEvent) error {
	t.outbox = append(t.outbox, ev)
	return nil
}

func (t *memTx) HighestBid(_ context.Context, auctionID string) (model.Bid, error) {
	t.store.mu.RLock()
	all := append([]model.Bid(nil), t.store.bids[auctionID]...)
	t.store.mu.RUnlock()
	for _, b := range t.bids {
		if b.AuctionID == auctionID {
			all = append(all, b)
		}
	}
	if len(all) == 0 {
		return model.Bid{}, ErrNoBids
	}
	sortRanked(all)
	return all[0], nil
}

func sortRanked(bids []model.Bid) {
	sort.Slice(bids, func(i, j int) bool { return bids[i].Outranks(bids[j]) })
}
