package processor

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/live-auction/internal/queue"
	"github.com/iliyamo/live-auction/internal/realtime"
	"github.com/iliyamo/live-auction/internal/utils"
)

// BidProcessor consumes bid.processing and bid.priority.  It updates the
// room, broadcasts bidPlaced once per bid, queues a confirmation for the
// bidder and announces the bid to everyone online.
type BidProcessor struct {
	hub    realtime.Broadcaster
	rooms  RoomUpdater
	notify NotificationPublisher
	log    *logrus.Entry
}

func NewBidProcessor(hub realtime.Broadcaster, rooms RoomUpdater, notify NotificationPublisher) *BidProcessor {
	return &BidProcessor{hub: hub, rooms: rooms, notify: notify, log: utils.Component("bid-processor")}
}

func (p *BidProcessor) Handle(ctx context.Context, env queue.Envelope) error {
	var ev queue.BidCommitted
	if err := env.Decode(&ev); err != nil {
		return err
	}
	if ev.BidID == "" || ev.AuctionID == "" || ev.BidderID == "" {
		return malformed("bid event without ids")
	}

	p.rooms.SetHighestBid(ctx, ev.AuctionID, ev.Amount, ev.BidderID)
	sent := p.hub.BroadcastOnce(ctx, ev.AuctionID, realtime.EventBidPlaced, realtime.BidKey(ev.BidID), realtime.BidPlaced{
		BidID:           ev.BidID,
		AuctionID:       ev.AuctionID,
		BidderID:        ev.BidderID,
		Amount:          ev.Amount,
		PreviousHighest: ev.PreviousHighest,
		Timestamp:       ev.Timestamp,
	})

	data := map[string]any{
		"auctionId": ev.AuctionID,
		"bidId":     ev.BidID,
		"amount":    ev.Amount,
	}
	notes := []queue.Notification{{
		UserID:    ev.BidderID,
		Type:      queue.NotifyBidPlaced,
		Title:     "Bid placed",
		Message:   fmt.Sprintf("Your bid of %d is now the highest", ev.Amount),
		Data:      data,
		Timestamp: ev.Timestamp,
	}, {
		Broadcast: true,
		Type:      queue.NotifyBidPlaced,
		Title:     "New bid",
		Message:   fmt.Sprintf("A bid of %d was placed", ev.Amount),
		Data:      data,
		Timestamp: ev.Timestamp,
	}}
	for _, n := range notes {
		if err := p.notify.PublishNotification(ctx, n); err != nil {
			return fmt.Errorf("queue bid notification: %w", err)
		}
	}
	p.log.WithFields(logrus.Fields{
		"bid_id":      ev.BidID,
		"auction_id":  ev.AuctionID,
		"priority":    ev.Priority,
		"broadcasted": sent,
	}).Debug("bid processed")
	return nil
}
