// Package processor holds the queue handlers that turn broker messages into
// websocket fan-out, user notifications and audit ledger rows.  Every
// handler is idempotent; the consumer may deliver a message more than once.
package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/iliyamo/live-auction/internal/model"
	"github.com/iliyamo/live-auction/internal/queue"
)

// RoomUpdater mirrors committed state into the live room registry.
// *realtime.Registry implements it.
type RoomUpdater interface {
	SetHighestBid(ctx context.Context, auctionID string, amount int64, bidderID string)
	SetStatus(ctx context.Context, auctionID string, status model.AuctionStatus)
	CloseRoom(ctx context.Context, auctionID string) []string
}

// NotificationPublisher queues user notifications.  *queue.Publisher
// implements it.
type NotificationPublisher interface {
	PublishNotification(ctx context.Context, n queue.Notification) error
}

// BidderLister returns the distinct bidders of an auction.
type BidderLister interface {
	Bidders(ctx context.Context, auctionID string) ([]string, error)
}

// Ledger is the write side of the audit trail.
type Ledger interface {
	Record(ctx context.Context, rec model.AuditRecord) (bool, error)
}

func malformed(what string) error {
	return fmt.Errorf("%w: %s", queue.ErrMalformed, what)
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// int64Field reads a number decoded from JSON.
func int64Field(m map[string]any, key string) (int64, bool) {
	switch v := m[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	}
	return 0, false
}

func timeField(m map[string]any, key string, fallback time.Time) time.Time {
	switch v := m[key].(type) {
	case time.Time:
		return v
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t
		}
	}
	return fallback
}
