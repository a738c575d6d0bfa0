package bidding

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/live-auction/internal/model"
	"github.com/iliyamo/live-auction/internal/queue"
	"github.com/iliyamo/live-auction/internal/repository"
	"github.com/iliyamo/live-auction/internal/utils"
)

const (
	outboxBatch       = 100
	maxOutboxErrorLen = 512
)

// pendingEvent is an outbox row staged inside a transaction together with
// the typed publish used right after the commit.
type pendingEvent struct {
	row  model.OutboxEvent
	send func(ctx context.Context) error
}

func (s *Service) stageBidCommitted(ctx context.Context, tx repository.Tx, ev queue.BidCommitted, priority bool, now time.Time) (pendingEvent, error) {
	row, err := s.outboxRow("bid-"+ev.BidID, ev.AuctionID, queue.TypeBidCommitted, priority, ev, now)
	if err != nil {
		return pendingEvent{}, err
	}
	if err := tx.InsertOutbox(ctx, row); err != nil {
		return pendingEvent{}, err
	}
	send := func(ctx context.Context) error { return s.events.PublishBidCommitted(ctx, ev, priority) }
	return pendingEvent{row: row, send: send}, nil
}

func (s *Service) stageLifecycle(ctx context.Context, tx repository.Tx, a model.Auction, eventType, actor string, data map[string]any, now time.Time) (pendingEvent, error) {
	ev := queue.AuctionLifecycleEvent{
		ID:        "lifecycle-" + s.newID(),
		AuctionID: a.ID,
		EventType: eventType,
		Data:      data,
		UserID:    actor,
		Timestamp: now,
	}
	row, err := s.outboxRow(ev.ID, a.ID, queue.TypeLifecycle, false, ev, now)
	if err != nil {
		return pendingEvent{}, err
	}
	if err := tx.InsertOutbox(ctx, row); err != nil {
		return pendingEvent{}, err
	}
	send := func(ctx context.Context) error { return s.events.PublishLifecycle(ctx, ev) }
	return pendingEvent{row: row, send: send}, nil
}

// outboxRow builds a pending row.  The first relay attempt is deferred by
// the grace period so the inline publish normally settles the row first.
func (s *Service) outboxRow(id, aggregateID, eventType string, priority bool, payload any, now time.Time) (model.OutboxEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return model.OutboxEvent{}, fmt.Errorf("encode %s outbox payload: %w", eventType, err)
	}
	return model.OutboxEvent{
		ID:            id,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       raw,
		Priority:      priority,
		Status:        model.OutboxPending,
		NextAttemptAt: now.Add(s.outboxGrace()),
		CreatedAt:     now,
	}, nil
}

// deliver publishes committed events in order and records each outcome.
// It never fails the caller: an event that cannot be published stays
// pending and the relay retries it.
func (s *Service) deliver(ctx context.Context, events ...pendingEvent) {
	ctx = context.WithoutCancel(ctx)
	for _, p := range events {
		s.settle(ctx, p.row, p.send(ctx))
	}
}

// settle stores the result of one publish attempt and returns the row's new
// status.  When the last allowed attempt fails the row is marked failed and
// a message_failed record goes straight to the audit ledger, since the
// broker that refused the event cannot be trusted to carry the alert.
func (s *Service) settle(ctx context.Context, row model.OutboxEvent, pubErr error) model.OutboxStatus {
	now := s.clock()
	row.Attempts++
	log := s.log.WithFields(logrus.Fields{
		"outbox_id":    row.ID,
		"event":        row.EventType,
		"auction_id":   row.AggregateID,
		"attempt":      row.Attempts,
		"max_attempts": s.outboxMaxAttempts(),
	})
	switch {
	case pubErr == nil:
		row.Status = model.OutboxSent
		row.PublishedAt = &now
		row.LastError = ""
	case row.Attempts >= s.outboxMaxAttempts():
		row.Status = model.OutboxFailed
		row.LastError = clip(pubErr.Error())
		log.WithError(pubErr).Error("outbox event abandoned")
		s.escalate(ctx, row, pubErr, now)
	default:
		row.LastError = clip(pubErr.Error())
		row.NextAttemptAt = now.Add(s.outboxBackoff(row.Attempts))
		log.WithError(pubErr).WithField("next_attempt_at", row.NextAttemptAt).Warn("event publish failed; relay will retry")
	}
	if err := s.store.UpdateOutbox(ctx, row); err != nil {
		log.WithError(err).Warn("outbox state update failed")
	}
	return row.Status
}

func (s *Service) escalate(ctx context.Context, row model.OutboxEvent, cause error, now time.Time) {
	if s.ledger == nil {
		return
	}
	data, err := json.Marshal(map[string]any{
		"outboxId":        row.ID,
		"eventType":       row.EventType,
		"attempts":        row.Attempts,
		"error":           cause.Error(),
		"originalMessage": row.Payload,
	})
	if err != nil {
		s.log.WithError(err).WithField("outbox_id", row.ID).Error("encode outbox failure record")
		return
	}
	rec := model.AuditRecord{
		DedupeKey:  "outbox_failed:" + row.ID,
		EventType:  queue.AuditMessageFailed,
		AuctionID:  row.AggregateID,
		Data:       data,
		OccurredAt: now,
		RecordedAt: now,
	}
	if row.EventType == queue.TypeBidCommitted {
		rec.BidID = strings.TrimPrefix(row.ID, "bid-")
	}
	if _, err := s.ledger.Record(ctx, rec); err != nil {
		s.log.WithError(err).WithField("outbox_id", row.ID).Error("outbox failure record not written")
	}
}

// replay publishes a stored row through the typed publisher methods.
func (s *Service) replay(ctx context.Context, row model.OutboxEvent) error {
	switch row.EventType {
	case queue.TypeBidCommitted:
		var ev queue.BidCommitted
		if err := json.Unmarshal(row.Payload, &ev); err != nil {
			return fmt.Errorf("decode outbox %s: %w", row.ID, err)
		}
		return s.events.PublishBidCommitted(ctx, ev, row.Priority)
	case queue.TypeLifecycle:
		var ev queue.AuctionLifecycleEvent
		if err := json.Unmarshal(row.Payload, &ev); err != nil {
			return fmt.Errorf("decode outbox %s: %w", row.ID, err)
		}
		return s.events.PublishLifecycle(ctx, ev)
	}
	return fmt.Errorf("outbox %s: unknown event type %q", row.ID, row.EventType)
}

// OutboxResult counts what one relay pass did.
type OutboxResult struct {
	Published int `json:"published"`
	Retrying  int `json:"retrying"`
	Failed    int `json:"failed"`
}

// FlushOutbox publishes every due outbox row once.  Each row is claimed
// first, so relays on several instances never publish the same attempt
// twice.
func (s *Service) FlushOutbox(ctx context.Context) (OutboxResult, error) {
	var res OutboxResult
	now := s.clock()
	rows, err := s.store.PendingOutbox(ctx, now, outboxBatch)
	if err != nil {
		return res, err
	}
	for _, row := range rows {
		until := now.Add(s.outboxGrace())
		won, err := s.store.ClaimOutbox(ctx, row.ID, row.NextAttemptAt, until)
		if err != nil {
			return res, err
		}
		if !won {
			continue
		}
		row.NextAttemptAt = until
		switch s.settle(ctx, row, s.replay(ctx, row)) {
		case model.OutboxSent:
			res.Published++
		case model.OutboxFailed:
			res.Failed++
		default:
			res.Retrying++
		}
	}
	return res, nil
}

// outboxBackoff returns base * 2^(attempts-1), capped at the maximum.
func (s *Service) outboxBackoff(attempts int) time.Duration {
	d := s.cfg.OutboxRetryBase
	if d <= 0 {
		d = time.Second
	}
	limit := s.cfg.OutboxRetryMax
	if limit <= 0 {
		limit = time.Minute
	}
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= limit {
			return limit
		}
	}
	return d
}

func (s *Service) outboxGrace() time.Duration {
	if s.cfg.OutboxGrace > 0 {
		return s.cfg.OutboxGrace
	}
	return 15 * time.Second
}

func (s *Service) outboxMaxAttempts() int {
	if s.cfg.OutboxMaxAttempts > 0 {
		return s.cfg.OutboxMaxAttempts
	}
	return 10
}

func clip(msg string) string {
	if len(msg) > maxOutboxErrorLen {
		return msg[:maxOutboxErrorLen]
	}
	return msg
}

// OutboxRelay runs FlushOutbox periodically.
type OutboxRelay struct {
	svc      *Service
	interval time.Duration
	log      *logrus.Entry
}

// NewOutboxRelay returns a relay ticking every interval.
func NewOutboxRelay(svc *Service, interval time.Duration) *OutboxRelay {
	if interval <= 0 {
		interval = time.Second
	}
	return &OutboxRelay{svc: svc, interval: interval, log: utils.Component("outbox")}
}

// Run flushes once immediately and then on every tick until ctx is
// cancelled.
func (r *OutboxRelay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		r.tick(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *OutboxRelay) tick(ctx context.Context) {
	res, err := r.svc.FlushOutbox(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.log.WithError(err).Error("outbox flush failed")
		}
		return
	}
	if res.Published > 0 || res.Retrying > 0 || res.Failed > 0 {
		r.log.WithFields(logrus.Fields{"published": res.Published, "retrying": res.Retrying, "failed": res.Failed}).Info("outbox flush")
	}
}
