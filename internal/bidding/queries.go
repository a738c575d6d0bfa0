package bidding

import (
	"context"
	"fmt"

	"github.com/iliyamo/live-auction/internal/biddingerrors"
	"github.com/iliyamo/live-auction/internal/model"
	"github.com/iliyamo/live-auction/internal/repository"
	"github.com/iliyamo/live-auction/internal/utils"
)

// StatusView is the full-state snapshot a client uses to re-sync.
type StatusView struct {
	Auction      model.Auction     `json:"auction"`
	HighestBid   *model.HighestBid `json:"highestBid"`
	BidCount     int               `json:"bidCount"`
	Participants int               `json:"participants"` // distinct bidders, not room members
}

// GetAuction reads committed state.
func (s *Service) GetAuction(ctx context.Context, id string) (model.Auction, error) {
	if !utils.ValidID(id) {
		return model.Auction{}, fmt.Errorf("%w: auction id", biddingerrors.ErrInvalidID)
	}
	a, err := s.store.GetAuction(ctx, id)
	return a, mapStoreError(err)
}

// ListAuctions lists auctions, optionally filtered by status.
func (s *Service) ListAuctions(ctx context.Context, f repository.AuctionFilter) ([]model.Auction, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", biddingerrors.ErrInvalidSchedule, f.Status)
	}
	return s.store.ListAuctions(ctx, f)
}

// ListBids returns an auction's bids, best first.
func (s *Service) ListBids(ctx context.Context, id string, limit int) ([]model.Bid, error) {
	if _, err := s.GetAuction(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListBids(ctx, id, limit)
}

// HighestBid answers from the cache when it can and otherwise from the
// store, repairing the cache for auctions that are still taking bids.  The
// result is advisory.
func (s *Service) HighestBid(ctx context.Context, id string) (model.HighestBid, bool, error) {
	if !utils.ValidID(id) {
		return model.HighestBid{}, false, fmt.Errorf("%w: auction id", biddingerrors.ErrInvalidID)
	}
	hb, ok, err := s.cache.GetHighestBid(ctx, id)
	if err != nil {
		s.log.WithError(err).WithField("auction_id", id).Warn("highest bid cache read failed")
	}
	if ok {
		return hb, true, nil
	}
	a, err := s.store.GetAuction(ctx, id)
	if err != nil {
		return model.HighestBid{}, false, mapStoreError(err)
	}
	return s.fromAuction(ctx, a)
}

func (s *Service) fromAuction(ctx context.Context, a model.Auction) (model.HighestBid, bool, error) {
	if a.CurrentBid == nil || a.WinnerID == nil {
		return model.HighestBid{}, false, nil
	}
	hb := model.HighestBid{Amount: *a.CurrentBid, BidderID: *a.WinnerID, UpdatedAt: a.UpdatedAt.UnixMilli()}
	if a.Status == model.StatusActive {
		if err := s.cache.RepairHighestBid(ctx, a.ID, hb.Amount, hb.BidderID); err != nil {
			s.log.WithError(err).WithField("auction_id", a.ID).Warn("highest bid cache repair failed")
		}
	}
	return hb, true, nil
}

// AuctionStatus returns the auction together with its highest bid and bid
// statistics.
func (s *Service) AuctionStatus(ctx context.Context, id string) (StatusView, error) {
	a, err := s.GetAuction(ctx, id)
	if err != nil {
		return StatusView{}, err
	}
	view := StatusView{Auction: a}
	hb, ok, err := s.cache.GetHighestBid(ctx, id)
	if err != nil || !ok {
		hb, ok, _ = s.fromAuction(ctx, a)
	}
	if ok {
		view.HighestBid = &hb
	}
	if view.BidCount, err = s.store.CountBids(ctx, id); err != nil {
		return StatusView{}, err
	}
	bidders, err := s.store.DistinctBidders(ctx, id)
	if err != nil {
		return StatusView{}, err
	}
	view.Participants = len(bidders)
	return view, nil
}

// Bidders returns every distinct bidder of an auction.
func (s *Service) Bidders(ctx context.Context, id string) ([]string, error) {
	return s.store.DistinctBidders(ctx, id)
}
