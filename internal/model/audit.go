package model

import (
	"encoding/json"
	"time"
)

// AuditRecord is one row of the append-only audit ledger.  DedupeKey is
// unique: inserting a record whose key already exists is a no-op, which is
// what makes the audit consumer safe under at-least-once delivery.
//
// Fields:
//
//	ID         – surrogate primary key assigned by the store.
//	DedupeKey  – idempotency key, e.g. "bid:<bidId>".
//	EventType  – bid_committed, auction_started, message_failed, ...
//	UserID     – acting user when known.
//	AuctionID  – related auction when known.
//	BidID      – related bid when known.
//	Data       – raw JSON payload of the originating message.
//	OccurredAt – timestamp carried by the message.
//	RecordedAt – when the ledger row was written.
type AuditRecord struct {
	ID         int64           `json:"id"`
	DedupeKey  string          `json:"dedupeKey"`
	EventType  string          `json:"eventType"`
	UserID     string          `json:"userId,omitempty"`
	AuctionID  string          `json:"auctionId,omitempty"`
	BidID      string          `json:"bidId,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	OccurredAt time.Time       `json:"occurredAt"`
	RecordedAt time.Time       `json:"recordedAt"`
}
