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

// AuditProcessor consumes audit.queue, which receives every auction event
// plus explicit audit entries, and appends them to the ledger.  Committed
// bids are keyed by bid id so a bid is recorded once however many times it
// is delivered; everything else is keyed by its envelope id.
type AuditProcessor struct {
	ledger Ledger
	now    func() time.Time
	log    *logrus.Entry
}

func NewAuditProcessor(ledger Ledger) *AuditProcessor {
	return &AuditProcessor{ledger: ledger, now: time.Now, log: utils.Component("audit-processor")}
}

func (p *AuditProcessor) Handle(ctx context.Context, env queue.Envelope) error {
	rec, err := auditRecord(env)
	if err != nil {
		return err
	}
	rec.RecordedAt = p.now().UTC()
	inserted, err := p.ledger.Record(ctx, rec)
	if err != nil {
		return fmt.Errorf("record audit %s: %w", rec.DedupeKey, err)
	}
	if !inserted {
		p.log.WithField("dedupe_key", rec.DedupeKey).Debug("duplicate audit record skipped")
	}
	return nil
}

func auditRecord(env queue.Envelope) (model.AuditRecord, error) {
	rec := model.AuditRecord{
		EventType:  env.Type,
		Data:       env.Payload,
		OccurredAt: env.Timestamp,
	}
	switch env.Type {
	case queue.TypeBidCommitted:
		var ev queue.BidCommitted
		if err := env.Decode(&ev); err != nil {
			return rec, err
		}
		if ev.BidID == "" {
			return rec, malformed("bid event without bid id")
		}
		rec.DedupeKey = "bid:" + ev.BidID
		rec.UserID, rec.AuctionID, rec.BidID = ev.BidderID, ev.AuctionID, ev.BidID
		rec.OccurredAt = ev.Timestamp
	case queue.TypeLifecycle:
		var ev queue.AuctionLifecycleEvent
		if err := env.Decode(&ev); err != nil {
			return rec, err
		}
		rec.EventType = "auction_" + ev.EventType
		rec.UserID, rec.AuctionID = ev.UserID, ev.AuctionID
		rec.OccurredAt = ev.Timestamp
	case queue.TypeAudit:
		var e queue.AuditEntry
		if err := env.Decode(&e); err != nil {
			return rec, err
		}
		if e.EventType != "" {
			rec.EventType = e.EventType
		}
		rec.UserID, rec.AuctionID, rec.BidID = e.UserID, e.AuctionID, e.BidID
		rec.OccurredAt = e.Timestamp
		if len(e.Data) > 0 {
			raw, err := json.Marshal(e.Data)
			if err != nil {
				return rec, malformed("audit data")
			}
			rec.Data = raw
		}
	}
	if rec.DedupeKey == "" {
		if env.ID == "" {
			return rec, malformed("envelope without id")
		}
		rec.DedupeKey = rec.EventType + ":" + env.ID
	}
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = env.Timestamp
	}
	return rec, nil
}
