// Package queue defines the message payloads exchanged over RabbitMQ, the
// broker topology, and the publish/consume primitives with retry and
// dead-letter routing.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Envelope types.
const (
	TypeBidCommitted = "bid_committed"
	TypeLifecycle    = "auction_lifecycle"
	TypeNotification = "notification"
	TypeAudit        = "audit_entry"
)

// Lifecycle event types carried in AuctionLifecycleEvent.EventType.
const (
	LifecycleCreated = "created"
	LifecycleStarted = "started"
	LifecycleEnded   = "ended"
	LifecycleUpdated = "updated"
	LifecycleDeleted = "deleted"
)

// Notification types.
const (
	NotifyBidPlaced      = "bid_placed"
	NotifyAuctionWon     = "auction_won"
	NotifyAuctionLost    = "auction_lost"
	NotifyAuctionStarted = "auction_started"
	NotifyAuctionEnded   = "auction_ended"
)

// Audit event types produced by the pipeline itself.
const (
	AuditMessageFailed     = "message_failed"
	AuditMessageDeadLetter = "message_dead_letter"
)

// Envelope wraps every message on the broker.  The body is owned by the
// pipeline until a consumer acknowledges it; RetryCount starts at 0 and is
// incremented each time the message is routed through the retry queue.
type Envelope struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	RoutingKey  string          `json:"routingKey"`
	Timestamp   time.Time       `json:"timestamp"`
	RetryCount  int             `json:"retryCount"`
	OriginQueue string          `json:"originQueue,omitempty"`
	LastError   string          `json:"lastError,omitempty"`
	FailedAt    *time.Time      `json:"failedAt,omitempty"`
	Payload     json.RawMessage `json:"payload"`
}

// ErrMalformed marks a body that cannot be decoded.  Such messages are
// dead-lettered without retry.
var ErrMalformed = errors.New("queue: malformed message")

// DecodeEnvelope parses a broker body.
func DecodeEnvelope(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" || len(env.Payload) == 0 {
		return Envelope{}, fmt.Errorf("%w: missing type or payload", ErrMalformed)
	}
	return env, nil
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformed, e.Type, err)
	}
	return nil
}

// BidCommitted is published after a bid has been durably committed.
type BidCommitted struct {
	BidID           string    `json:"bidId"`
	AuctionID       string    `json:"auctionId"`
	BidderID        string    `json:"bidderId"`
	Amount          int64     `json:"amount"`
	PreviousHighest *int64    `json:"previousHighest,omitempty"`
	Priority        bool      `json:"priority"`
	Timestamp       time.Time `json:"timestamp"`
}

// AuctionLifecycleEvent reports a change to the auction record itself.  A
// non-empty ID becomes the broker message id, so every publish of the same
// event carries the same id.
type AuctionLifecycleEvent struct {
	ID        string         `json:"id,omitempty"`
	AuctionID string         `json:"auctionId"`
	EventType string         `json:"eventType"`
	Data      map[string]any `json:"data,omitempty"`
	UserID    string         `json:"userId,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Notification is addressed to one user, or to everyone when Broadcast is set.
type Notification struct {
	UserID    string         `json:"userId,omitempty"`
	Broadcast bool           `json:"broadcast,omitempty"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// AuditEntry is fanned out to every audit consumer.
type AuditEntry struct {
	EventType string         `json:"eventType"`
	UserID    string         `json:"userId,omitempty"`
	AuctionID string         `json:"auctionId,omitempty"`
	BidID     string         `json:"bidId,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	IPAddress string         `json:"ipAddress,omitempty"`
	UserAgent string         `json:"userAgent,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
