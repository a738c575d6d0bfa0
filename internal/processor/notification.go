package processor

import (
	"context"

	"github.com/iliyamo/live-auction/internal/queue"
	"github.com/iliyamo/live-auction/internal/realtime"
)

// NotificationProcessor delivers notification.queue messages to the
// addressed user's connections, or to everyone for broadcasts.  Users who
// are offline simply miss the message; notifications are not stored.
type NotificationProcessor struct {
	hub realtime.Broadcaster
}

func NewNotificationProcessor(hub realtime.Broadcaster) *NotificationProcessor {
	return &NotificationProcessor{hub: hub}
}

func (p *NotificationProcessor) Handle(ctx context.Context, env queue.Envelope) error {
	var n queue.Notification
	if err := env.Decode(&n); err != nil {
		return err
	}
	switch {
	case n.Broadcast:
		p.hub.BroadcastAll(ctx, realtime.EventNotification, n)
	case n.UserID != "":
		p.hub.SendToUser(ctx, n.UserID, realtime.EventNotification, n)
	default:
		return malformed("notification without recipient")
	}
	return nil
}
