package bidding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/live-auction/internal/biddingerrors"
	"github.com/iliyamo/live-auction/internal/model"
	"github.com/iliyamo/live-auction/internal/queue"
	"github.com/iliyamo/live-auction/internal/repository"
	"github.com/iliyamo/live-auction/internal/utils"
)

// startSkew is how far in the past a new auction's start time may lie;
// anything older is treated as a client mistake rather than "start now".
const startSkew = time.Minute

// CreateAuctionRequest carries the fields a seller supplies.  A zero
// StartTime means "now".
type CreateAuctionRequest struct {
	OwnerID     string
	Title       string
	CarID       string
	StartTime   time.Time
	EndTime     time.Time
	StartingBid int64
}

// UpdateAuctionRequest lists the fields that may change while an auction is
// still pending.  Nil fields are left alone.
type UpdateAuctionRequest struct {
	Title       *string
	CarID       *string
	StartTime   *time.Time
	EndTime     *time.Time
	StartingBid *int64
}

// CreateAuction stores a new auction.  It opens immediately when its start
// time has already arrived.
func (s *Service) CreateAuction(ctx context.Context, req CreateAuctionRequest) (model.Auction, error) {
	if req.OwnerID == "" {
		return model.Auction{}, fmt.Errorf("%w: owner id", biddingerrors.ErrInvalidID)
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return model.Auction{}, fmt.Errorf("%w: title is required", biddingerrors.ErrInvalidSchedule)
	}
	now := s.clock()
	start := req.StartTime.UTC().Truncate(time.Millisecond)
	if req.StartTime.IsZero() {
		start = now
	}
	end := req.EndTime.UTC().Truncate(time.Millisecond)
	if err := s.validateSchedule(start, end, req.StartingBid, now); err != nil {
		return model.Auction{}, err
	}

	a := model.Auction{
		ID:          s.newID(),
		OwnerID:     req.OwnerID,
		Title:       title,
		CarID:       req.CarID,
		Status:      model.StatusPending,
		StartTime:   start,
		EndTime:     end,
		StartingBid: req.StartingBid,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if !start.After(now) {
		a.Status = model.StatusActive
	}
	var events []pendingEvent
	if err := s.store.RunInTx(ctx, func(tx repository.Tx) error {
		events = events[:0]
		if err := tx.InsertAuction(ctx, &a); err != nil {
			return err
		}
		created, err := s.stageLifecycle(ctx, tx, a, queue.LifecycleCreated, req.OwnerID, map[string]any{
			"title":       a.Title,
			"status":      a.Status,
			"startTime":   a.StartTime,
			"endTime":     a.EndTime,
			"startingBid": a.StartingBid,
		}, now)
		if err != nil {
			return err
		}
		events = append(events, created)
		if a.Status == model.StatusActive {
			started, err := s.stageLifecycle(ctx, tx, a, queue.LifecycleStarted, "", map[string]any{"startTime": a.StartTime}, now)
			if err != nil {
				return err
			}
			events = append(events, started)
		}
		return nil
	}); err != nil {
		return model.Auction{}, mapStoreError(err)
	}

	s.deliver(ctx, events...)
	return a, nil
}

func (s *Service) validateSchedule(start, end time.Time, startingBid int64, now time.Time) error {
	switch {
	case end.IsZero():
		return fmt.Errorf("%w: end time is required", biddingerrors.ErrInvalidSchedule)
	case start.Before(now.Add(-startSkew)):
		return fmt.Errorf("%w: start time is in the past", biddingerrors.ErrInvalidSchedule)
	case !end.After(start):
		return fmt.Errorf("%w: end time must be after start time", biddingerrors.ErrInvalidSchedule)
	case !end.After(now):
		return fmt.Errorf("%w: end time is in the past", biddingerrors.ErrInvalidSchedule)
	}
	if startingBid < 0 {
		return fmt.Errorf("%w: starting bid must not be negative", biddingerrors.ErrInvalidAmount)
	}
	if s.cfg.BidCeiling > 0 && startingBid > s.cfg.BidCeiling {
		return fmt.Errorf("%w: starting bid exceeds the maximum of %d", biddingerrors.ErrInvalidAmount, s.cfg.BidCeiling)
	}
	return nil
}

// UpdateAuction edits a pending auction on behalf of its owner.
func (s *Service) UpdateAuction(ctx context.Context, id, actor string, req UpdateAuctionRequest) (model.Auction, error) {
	var (
		out     model.Auction
		pending pendingEvent
	)
	err := s.mutate(ctx, id, func(tx repository.Tx, cur model.Auction, now time.Time) error {
		if cur.OwnerID != actor {
			return biddingerrors.ErrNotOwner
		}
		if cur.Status != model.StatusPending {
			return biddingerrors.ErrNotEditable
		}
		next := cur.Clone()
		if req.Title != nil {
			if t := strings.TrimSpace(*req.Title); t != "" {
				next.Title = t
			}
		}
		if req.CarID != nil {
			next.CarID = *req.CarID
		}
		if req.StartTime != nil {
			next.StartTime = req.StartTime.UTC().Truncate(time.Millisecond)
		}
		if req.EndTime != nil {
			next.EndTime = req.EndTime.UTC().Truncate(time.Millisecond)
		}
		if req.StartingBid != nil {
			next.StartingBid = *req.StartingBid
		}
		if err := s.validateSchedule(next.StartTime, next.EndTime, next.StartingBid, now); err != nil {
			return err
		}
		next.UpdatedAt = now
		if err := tx.UpdateAuction(ctx, &next, cur.Version); err != nil {
			return err
		}
		out = next
		var err error
		pending, err = s.stageLifecycle(ctx, tx, out, queue.LifecycleUpdated, actor, map[string]any{
			"title":       out.Title,
			"startTime":   out.StartTime,
			"endTime":     out.EndTime,
			"startingBid": out.StartingBid,
		}, now)
		return err
	})
	if err != nil {
		return model.Auction{}, err
	}
	s.deliver(ctx, pending)
	return out, nil
}

// DeleteAuction removes a pending auction on behalf of its owner.
func (s *Service) DeleteAuction(ctx context.Context, id, actor string) error {
	var pending pendingEvent
	err := s.mutate(ctx, id, func(tx repository.Tx, cur model.Auction, now time.Time) error {
		if cur.OwnerID != actor {
			return biddingerrors.ErrNotOwner
		}
		if cur.Status != model.StatusPending {
			return biddingerrors.ErrNotEditable
		}
		if err := tx.DeleteAuction(ctx, id, cur.Version); err != nil {
			return err
		}
		var err error
		pending, err = s.stageLifecycle(ctx, tx, cur, queue.LifecycleDeleted, actor, nil, now)
		return err
	})
	if err != nil {
		return err
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.log.WithError(err).WithField("auction_id", id).Warn("cache invalidate failed")
	}
	s.deliver(ctx, pending)
	return nil
}

// StartAuction moves a PENDING auction to ACTIVE.  A non-empty actor must be
// the owner; the scheduler passes an empty actor.  Starting ahead of
// schedule moves the start time to now.
func (s *Service) StartAuction(ctx context.Context, id, actor string) (model.Auction, error) {
	var (
		out     model.Auction
		pending pendingEvent
	)
	err := s.mutate(ctx, id, func(tx repository.Tx, cur model.Auction, now time.Time) error {
		if actor != "" && cur.OwnerID != actor {
			return biddingerrors.ErrNotOwner
		}
		if !cur.Status.CanTransition(model.StatusActive) {
			return fmt.Errorf("%w: %s -> %s", biddingerrors.ErrInvalidTransition, cur.Status, model.StatusActive)
		}
		next := cur.Clone()
		next.Status = model.StatusActive
		if now.Before(next.StartTime) {
			next.StartTime = now
		}
		next.UpdatedAt = now
		if err := tx.UpdateAuction(ctx, &next, cur.Version); err != nil {
			return err
		}
		out = next
		var err error
		pending, err = s.stageLifecycle(ctx, tx, out, queue.LifecycleStarted, actor, map[string]any{
			"startTime": out.StartTime,
			"startedBy": actor,
		}, now)
		return err
	})
	if err != nil {
		return model.Auction{}, err
	}
	s.deliver(ctx, pending)
	return out, nil
}

// EndAuction moves an ACTIVE auction to ENDED and freezes the winner: the
// bidder of the highest committed bid, ties broken by earliest bid.  Ending
// ahead of schedule moves the end time to now.
func (s *Service) EndAuction(ctx context.Context, id, actor string) (model.Auction, error) {
	var (
		out     model.Auction
		pending pendingEvent
	)
	err := s.mutate(ctx, id, func(tx repository.Tx, cur model.Auction, now time.Time) error {
		if actor != "" && cur.OwnerID != actor {
			return biddingerrors.ErrNotOwner
		}
		if !cur.Status.CanTransition(model.StatusEnded) {
			return fmt.Errorf("%w: %s -> %s", biddingerrors.ErrInvalidTransition, cur.Status, model.StatusEnded)
		}
		next := cur.Clone()
		next.Status = model.StatusEnded
		next.CurrentBid, next.WinnerID = nil, nil
		top, err := tx.HighestBid(ctx, id)
		switch {
		case err == nil:
			next.CurrentBid = &top.Amount
			next.WinnerID = &top.BidderID
		case !errors.Is(err, repository.ErrNoBids):
			return err
		}
		if now.Before(next.EndTime) {
			next.EndTime = now
		}
		next.UpdatedAt = now
		if err := tx.UpdateAuction(ctx, &next, cur.Version); err != nil {
			return err
		}
		out = next
		data := map[string]any{"endTime": out.EndTime, "endedBy": actor, "winnerId": nil, "winningBid": nil}
		if out.WinnerID != nil {
			data["winnerId"] = *out.WinnerID
			data["winningBid"] = *out.CurrentBid
		}
		pending, err = s.stageLifecycle(ctx, tx, out, queue.LifecycleEnded, actor, data, now)
		return err
	})
	if err != nil {
		return model.Auction{}, err
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.log.WithError(err).WithField("auction_id", id).Warn("cache invalidate failed")
	}
	s.deliver(ctx, pending)
	return out, nil
}

// mutate runs fn inside a transaction while holding the auction lease.  fn
// receives the authoritative record and the commit timestamp.
func (s *Service) mutate(ctx context.Context, id string, fn func(tx repository.Tx, cur model.Auction, now time.Time) error) error {
	if !utils.ValidID(id) {
		return fmt.Errorf("%w: auction id", biddingerrors.ErrInvalidID)
	}
	lease, err := s.acquire(ctx, id)
	if err != nil {
		return err
	}
	defer s.release(ctx, lease)

	err = s.store.RunInTx(ctx, func(tx repository.Tx) error {
		cur, err := tx.GetAuction(ctx, id)
		if err != nil {
			return err
		}
		return fn(tx, cur, s.clock())
	})
	return mapStoreError(err)
}
