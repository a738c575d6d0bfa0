package model

import (
	"encoding/json"
	"time"
)

// OutboxStatus is the delivery state of an outbox row.
type OutboxStatus string

const (
	OutboxPending OutboxStatus = "pending"
	OutboxSent    OutboxStatus = "sent"
	OutboxFailed  OutboxStatus = "failed"
)

// OutboxEvent is a committed fact waiting to reach the broker.  It is written
// in the same transaction as the state change it describes, so a commit
// always leaves exactly one row behind, and it stays pending until a publish
// is confirmed.
//
// ID doubles as the broker message id ("bid-<bidId>", "lifecycle-<uuid>"),
// which lets consumers recognise a row published more than once.
type OutboxEvent struct {
	ID            string          `json:"id"`
	AggregateID   string          `json:"aggregateId"`
	EventType     string          `json:"eventType"`
	Payload       json.RawMessage `json:"payload"`
	Priority      bool            `json:"priority"`
	Status        OutboxStatus    `json:"status"`
	Attempts      int             `json:"attempts"`
	LastError     string          `json:"lastError,omitempty"`
	NextAttemptAt time.Time       `json:"nextAttemptAt"`
	CreatedAt     time.Time       `json:"createdAt"`
	PublishedAt   *time.Time      `json:"publishedAt,omitempty"`
}
