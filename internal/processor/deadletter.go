package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/live-auction/internal/model"
	"github.com/iliyamo/live-auction/internal/queue"
	"github.com/iliyamo/live-auction/internal/utils"
)

// DeadLetterProcessor consumes dead.letter.queue and records every message
// that exhausted its retries in the audit ledger as message_dead_letter.
// Nothing is replayed automatically.
type DeadLetterProcessor struct {
	ledger Ledger
	now    func() time.Time
	log    *logrus.Entry
}

func NewDeadLetterProcessor(ledger Ledger) *DeadLetterProcessor {
	return &DeadLetterProcessor{ledger: ledger, now: time.Now, log: utils.Component("dead-letter")}
}

func (p *DeadLetterProcessor) Handle(ctx context.Context, env queue.Envelope) error {
	if env.ID == "" {
		return malformed("dead letter without id")
	}
	data, err := json.Marshal(map[string]any{
		"originalMessage": env,
		"originQueue":     env.OriginQueue,
		"lastError":       env.LastError,
		"retryCount":      env.RetryCount,
	})
	if err != nil {
		return malformed("dead letter data")
	}

	var ref struct {
		AuctionID string `json:"auctionId"`
		BidID     string `json:"bidId"`
		UserID    string `json:"userId"`
	}
	_ = json.Unmarshal(env.Payload, &ref)

	occurred := env.Timestamp
	if env.FailedAt != nil {
		occurred = *env.FailedAt
	}
	rec := model.AuditRecord{
		DedupeKey:  "dead_letter:" + env.ID,
		EventType:  queue.AuditMessageDeadLetter,
		UserID:     ref.UserID,
		AuctionID:  ref.AuctionID,
		BidID:      ref.BidID,
		Data:       data,
		OccurredAt: occurred,
		RecordedAt: p.now().UTC(),
	}
	inserted, err := p.ledger.Record(ctx, rec)
	if err != nil {
		return fmt.Errorf("record dead letter %s: %w", env.ID, err)
	}
	if inserted {
		p.log.WithFields(logrus.Fields{
			"message_id":   env.ID,
			"type":         env.Type,
			"origin_queue": env.OriginQueue,
			"last_error":   env.LastError,
		}).Warn("message dead-lettered")
	}
	return nil
}
