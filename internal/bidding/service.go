package bidding

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/live-auction/internal/biddingerrors"
	"github.com/iliyamo/live-auction/internal/config"
	"github.com/iliyamo/live-auction/internal/lock"
	"github.com/iliyamo/live-auction/internal/model"
	"github.com/iliyamo/live-auction/internal/queue"
	"github.com/iliyamo/live-auction/internal/repository"
	"github.com/iliyamo/live-auction/internal/utils"
)

// Service serializes bids and drives the auction lifecycle.  It is safe for
// concurrent use; the only shared serialization point is the per-auction
// lock.
type Service struct {
	store  repository.Store
	locker lock.Locker
	cache  HighestBidCache
	events EventPublisher
	ledger repository.AuditLedger
	cfg    config.BiddingConfig
	now    func() time.Time
	newID  func() string
	log    *logrus.Entry
}

// NewService wires the serializer.  cache and events may be nil, in which
// case cache writes are skipped and outbox rows are settled without
// publishing.  When store also implements repository.AuditLedger,
// abandoned outbox events are recorded there.
func NewService(store repository.Store, locker lock.Locker, cache HighestBidCache, events EventPublisher, cfg config.BiddingConfig) *Service {
	if store == nil || locker == nil {
		panic("bidding: nil store or locker passed to NewService")
	}
	if cache == nil {
		cache = nopCache{}
	}
	if events == nil {
		events = nopPublisher{}
	}
	ledger, _ := store.(repository.AuditLedger)
	return &Service{
		store:  store,
		locker: locker,
		cache:  cache,
		events: events,
		ledger: ledger,
		cfg:    cfg,
		now:    time.Now,
		newID:  utils.NewID,
		log:    utils.Component("bidding"),
	}
}

// PlaceBidRequest is one bid submission.  Amount is the textual amount as
// received from the client so fractional input can be rejected.
type PlaceBidRequest struct {
	AuctionID string
	BidderID  string
	Amount    string
}

// BidResult describes a committed bid.
type BidResult struct {
	Bid             model.Bid `json:"bid"`
	PreviousHighest *int64    `json:"previousHighest"`
	IsHighest       bool      `json:"isHighest"`
	Priority        bool      `json:"priority"`
}

// PlaceBid validates and commits one bid.  The bid, the auction update and
// the BidCommitted outbox row commit together or not at all.  The cache
// refresh and the inline publish are best effort and never undo a commit;
// an unpublished event is left to the outbox relay.
func (s *Service) PlaceBid(ctx context.Context, req PlaceBidRequest) (BidResult, error) {
	if !utils.ValidID(req.AuctionID) {
		return BidResult{}, fmt.Errorf("%w: auction id", biddingerrors.ErrInvalidID)
	}
	if req.BidderID == "" {
		return BidResult{}, fmt.Errorf("%w: bidder id", biddingerrors.ErrInvalidID)
	}
	amount, err := ParseAmount(req.Amount, s.cfg.BidCeiling)
	if err != nil {
		return BidResult{}, err
	}

	// self-bid is an input check and needs no lease
	a, err := s.store.GetAuction(ctx, req.AuctionID)
	if err != nil {
		return BidResult{}, mapStoreError(err)
	}
	if a.OwnerID == req.BidderID {
		return BidResult{}, biddingerrors.ErrSelfBid
	}

	lease, err := s.acquire(ctx, req.AuctionID)
	if err != nil {
		return BidResult{}, err
	}
	released := false
	release := func() {
		if !released {
			released = true
			s.release(ctx, lease)
		}
	}
	defer release()

	var (
		res     BidResult
		pending pendingEvent
	)
	err = s.store.RunInTx(ctx, func(tx repository.Tx) error {
		cur, err := tx.GetAuction(ctx, req.AuctionID)
		if err != nil {
			return err
		}
		now := s.clock()
		if err := validateBid(cur, req.BidderID, amount, now); err != nil {
			return err
		}
		bid := model.Bid{
			ID:        s.newID(),
			AuctionID: cur.ID,
			BidderID:  req.BidderID,
			Amount:    amount,
			CreatedAt: now,
		}
		if err := tx.InsertBid(ctx, bid); err != nil {
			return err
		}
		next := cur.Clone()
		next.CurrentBid = &bid.Amount
		next.WinnerID = &bid.BidderID
		next.UpdatedAt = now
		if err := tx.UpdateAuction(ctx, &next, cur.Version); err != nil {
			return err
		}
		res = BidResult{
			Bid:             bid,
			PreviousHighest: cur.CurrentBid,
			IsHighest:       true,
			Priority:        cur.EndTime.Sub(now) <= s.cfg.PriorityWindow,
		}
		ev := queue.BidCommitted{
			BidID:           bid.ID,
			AuctionID:       bid.AuctionID,
			BidderID:        bid.BidderID,
			Amount:          bid.Amount,
			PreviousHighest: cur.CurrentBid,
			Timestamp:       bid.CreatedAt,
		}
		pending, err = s.stageBidCommitted(ctx, tx, ev, res.Priority, now)
		return err
	})
	if err != nil {
		return BidResult{}, mapStoreError(err)
	}

	log := s.log.WithFields(logrus.Fields{"auction_id": req.AuctionID, "bid_id": res.Bid.ID, "amount": amount})
	if err := s.cache.SetHighestBid(ctx, req.AuctionID, amount, req.BidderID); err != nil {
		log.WithError(err).Warn("highest bid cache write failed")
	}
	release()

	s.deliver(ctx, pending)
	log.WithField("priority", res.Priority).Info("bid committed")
	return res, nil
}

// PlaceBidWithRetry retries PlaceBid on contention errors only, with
// jittered exponential backoff capped at 32 times the first step.
func (s *Service) PlaceBidWithRetry(ctx context.Context, req PlaceBidRequest) (BidResult, error) {
	attempts := s.cfg.ContentionRetries
	if attempts < 1 {
		attempts = 1
	}
	backoff := s.cfg.ContentionBackoff
	if backoff <= 0 {
		backoff = 25 * time.Millisecond
	}
	maxStep := backoff * 32
	step := backoff
	var lastErr error
	for i := 0; i < attempts; i++ {
		res, err := s.PlaceBid(ctx, req)
		if err == nil || !biddingerrors.IsRetryable(err) {
			return res, err
		}
		lastErr = err
		if i == attempts-1 {
			break
		}
		wait := step + rand.N(backoff)
		if step < maxStep {
			step *= 2
		}
		select {
		case <-ctx.Done():
			return BidResult{}, ctx.Err()
		case <-time.After(wait):
		}
	}
	return BidResult{}, lastErr
}

func validateBid(a model.Auction, bidderID string, amount int64, now time.Time) error {
	if a.OwnerID == bidderID {
		return biddingerrors.ErrSelfBid
	}
	switch {
	case a.Status == model.StatusEnded:
		return biddingerrors.ErrAuctionClosed
	case a.Status != model.StatusActive:
		return biddingerrors.ErrAuctionNotActive
	case now.After(a.EndTime):
		return biddingerrors.ErrAuctionClosed
	}
	if minimum := a.MinimumNextBid(); amount < minimum {
		return fmt.Errorf("%w: minimum is %d", biddingerrors.ErrBidTooLow, minimum)
	}
	return nil
}

func (s *Service) acquire(ctx context.Context, auctionID string) (lock.Lease, error) {
	lease, err := s.locker.Acquire(ctx, lock.AuctionKey(auctionID), s.cfg.LockLease)
	if errors.Is(err, lock.ErrNotAcquired) {
		return lock.Lease{}, biddingerrors.ErrLockNotAcquired
	}
	if err != nil {
		return lock.Lease{}, fmt.Errorf("acquire auction lock: %w", err)
	}
	return lease, nil
}

func (s *Service) release(ctx context.Context, lease lock.Lease) {
	if err := s.locker.Release(context.WithoutCancel(ctx), lease); err != nil {
		s.log.WithError(err).WithField("key", lease.Key).Warn("lease release failed")
	}
}

// clock returns now in UTC at millisecond precision, the resolution the
// store keeps.
func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// mapStoreError translates persistence sentinels into the bidding taxonomy
// and leaves everything else untouched.
func mapStoreError(err error) error {
	switch {
	case errors.Is(err, repository.ErrAuctionNotFound):
		return biddingerrors.ErrAuctionNotFound
	case errors.Is(err, repository.ErrStaleVersion):
		return biddingerrors.ErrVersionConflict
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("store timeout: %w", err)
	}
	return err
}
