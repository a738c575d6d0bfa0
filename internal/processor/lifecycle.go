package processor

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/live-auction/internal/model"
	"github.com/iliyamo/live-auction/internal/queue"
	"github.com/iliyamo/live-auction/internal/realtime"
	"github.com/iliyamo/live-auction/internal/utils"
)

// LifecycleProcessor consumes auction.lifecycle.  Starting and ending are
// broadcast to the room and announced to users; an ended auction also
// tells every bidder whether they won.
type LifecycleProcessor struct {
	hub     realtime.Broadcaster
	rooms   RoomUpdater
	notify  NotificationPublisher
	bidders BidderLister
	log     *logrus.Entry
}

func NewLifecycleProcessor(hub realtime.Broadcaster, rooms RoomUpdater, notify NotificationPublisher, bidders BidderLister) *LifecycleProcessor {
	return &LifecycleProcessor{
		hub:     hub,
		rooms:   rooms,
		notify:  notify,
		bidders: bidders,
		log:     utils.Component("lifecycle-processor"),
	}
}

func (p *LifecycleProcessor) Handle(ctx context.Context, env queue.Envelope) error {
	var ev queue.AuctionLifecycleEvent
	if err := env.Decode(&ev); err != nil {
		return err
	}
	if ev.AuctionID == "" || ev.EventType == "" {
		return malformed("lifecycle event without auction id or type")
	}
	log := p.log.WithFields(logrus.Fields{"auction_id": ev.AuctionID, "event_type": ev.EventType})

	switch ev.EventType {
	case queue.LifecycleStarted:
		return p.started(ctx, ev)
	case queue.LifecycleEnded:
		return p.ended(ctx, ev)
	case queue.LifecycleUpdated:
		data := map[string]any{"auctionId": ev.AuctionID}
		for k, v := range ev.Data {
			data[k] = v
		}
		p.hub.Broadcast(ctx, ev.AuctionID, realtime.EventAuctionUpdated, data)
	case queue.LifecycleDeleted:
		p.hub.Broadcast(ctx, ev.AuctionID, realtime.EventAuctionDeleted, map[string]string{"auctionId": ev.AuctionID})
		p.rooms.CloseRoom(ctx, ev.AuctionID)
	case queue.LifecycleCreated:
		log.Debug("auction created")
	default:
		log.Warn("unknown lifecycle event ignored")
	}
	return nil
}

func (p *LifecycleProcessor) started(ctx context.Context, ev queue.AuctionLifecycleEvent) error {
	p.rooms.SetStatus(ctx, ev.AuctionID, model.StatusActive)
	msg := realtime.AuctionStarted{
		AuctionID: ev.AuctionID,
		StartedBy: stringField(ev.Data, "startedBy"),
		StartTime: timeField(ev.Data, "startTime", ev.Timestamp),
	}
	p.hub.BroadcastOnce(ctx, ev.AuctionID, realtime.EventAuctionStarted, realtime.StartedKey(ev.AuctionID), msg)

	err := p.notify.PublishNotification(ctx, queue.Notification{
		Broadcast: true,
		Type:      queue.NotifyAuctionStarted,
		Title:     "Auction started",
		Message:   "An auction is now open for bids",
		Data:      map[string]any{"auctionId": ev.AuctionID, "startTime": msg.StartTime},
		Timestamp: ev.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("queue start notification: %w", err)
	}
	return nil
}

func (p *LifecycleProcessor) ended(ctx context.Context, ev queue.AuctionLifecycleEvent) error {
	p.rooms.SetStatus(ctx, ev.AuctionID, model.StatusEnded)

	msg := realtime.AuctionEnded{
		AuctionID: ev.AuctionID,
		EndedBy:   stringField(ev.Data, "endedBy"),
		EndTime:   timeField(ev.Data, "endTime", ev.Timestamp),
	}
	winner := stringField(ev.Data, "winnerId")
	if winner != "" {
		msg.WinnerID = &winner
		if amount, ok := int64Field(ev.Data, "winningBid"); ok {
			msg.WinningBid = &amount
		}
	}
	p.hub.BroadcastOnce(ctx, ev.AuctionID, realtime.EventAuctionEnded, realtime.EndedKey(ev.AuctionID), msg)

	bidders, err := p.bidders.Bidders(ctx, ev.AuctionID)
	if err != nil {
		return fmt.Errorf("list bidders: %w", err)
	}
	for _, n := range outcomeNotifications(msg, bidders, ev) {
		if err := p.notify.PublishNotification(ctx, n); err != nil {
			return fmt.Errorf("queue end notification: %w", err)
		}
	}
	return nil
}

// outcomeNotifications builds the won/lost messages for every bidder plus
// one broadcast that the auction closed.
func outcomeNotifications(msg realtime.AuctionEnded, bidders []string, ev queue.AuctionLifecycleEvent) []queue.Notification {
	data := map[string]any{"auctionId": msg.AuctionID, "winnerId": msg.WinnerID, "winningBid": msg.WinningBid}
	out := make([]queue.Notification, 0, len(bidders)+1)
	for _, b := range bidders {
		n := queue.Notification{
			UserID:    b,
			Type:      queue.NotifyAuctionLost,
			Title:     "Auction ended",
			Message:   "You were outbid",
			Data:      data,
			Timestamp: ev.Timestamp,
		}
		if msg.WinnerID != nil && *msg.WinnerID == b {
			n.Type = queue.NotifyAuctionWon
			n.Title = "You won"
			n.Message = "Your bid won the auction"
			if msg.WinningBid != nil {
				n.Message = fmt.Sprintf("Your bid of %d won the auction", *msg.WinningBid)
			}
		}
		out = append(out, n)
	}
	return append(out, queue.Notification{
		Broadcast: true,
		Type:      queue.NotifyAuctionEnded,
		Title:     "Auction ended",
		Message:   "An auction has closed",
		Data:      data,
		Timestamp: ev.Timestamp,
	})
}
