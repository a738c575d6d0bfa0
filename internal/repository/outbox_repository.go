package repository

import (
	"context"      // context for controlling query lifetime
	"database/sql" // sql provides nullable column types
	"time"         // time for due and claim timestamps

	"github.com/iliyamo/live-auction/internal/model"
)

const outboxColumns = `id, aggregate_id, event_type, payload, priority, status, attempts, last_error, next_attempt_at, created_at, published_at`

// OutboxRepo manages the event_outbox table.  Rows are inserted inside the
// transaction that commits the described change and are afterwards only
// updated by the delivery path.
type OutboxRepo struct{}

// NewOutboxRepo constructs an OutboxRepo.
func NewOutboxRepo() *OutboxRepo { return &OutboxRepo{} }

// Insert writes a new pending row.
func (r *OutboxRepo) Insert(ctx context.Context, q querier, ev model.OutboxEvent) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO event_outbox (`+outboxColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.AggregateID, ev.EventType, []byte(ev.Payload), ev.Priority, string(ev.Status),
		ev.Attempts, emptyAsNull(ev.LastError), ev.NextAttemptAt, ev.CreatedAt, nullTime(ev.PublishedAt))
	if isDuplicate(err) {
		return ErrDuplicate
	}
	return err
}

// Pending returns pending rows whose next attempt is due, oldest first.
func (r *OutboxRepo) Pending(ctx context.Context, q querier, now time.Time, limit int) ([]model.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := q.QueryContext(ctx,
		`SELECT `+outboxColumns+` FROM event_outbox
		 WHERE status = 'pending' AND next_attempt_at <= ? ORDER BY created_at, id LIMIT ?`,
		now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.OutboxEvent{}
	for rows.Next() {
		var (
			ev        model.OutboxEvent
			status    string
			payload   []byte
			lastError sql.NullString
			published sql.NullTime
		)
		if err := rows.Scan(&ev.ID, &ev.AggregateID, &ev.EventType, &payload, &ev.Priority, &status,
			&ev.Attempts, &lastError, &ev.NextAttemptAt, &ev.CreatedAt, &published); err != nil {
			return nil, err
		}
		ev.Payload = payload
		ev.Status = model.OutboxStatus(status)
		ev.LastError = lastError.String
		if published.Valid {
			t := published.Time
			ev.PublishedAt = &t
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Claim pushes next_attempt_at of a pending row from seen to until.  It
// reports false when another relay changed the row first.
func (r *OutboxRepo) Claim(ctx context.Context, q querier, id string, seen, until time.Time) (bool, error) {
	res, err := q.ExecContext(ctx,
		`UPDATE event_outbox SET next_attempt_at = ? WHERE id = ? AND status = 'pending' AND next_attempt_at = ?`,
		until, id, seen)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Update stores the delivery state of ev.
func (r *OutboxRepo) Update(ctx context.Context, q querier, ev model.OutboxEvent) error {
	_, err := q.ExecContext(ctx,
		`UPDATE event_outbox SET status = ?, attempts = ?, last_error = ?, next_attempt_at = ?, published_at = ? WHERE id = ?`,
		string(ev.Status), ev.Attempts, emptyAsNull(ev.LastError), ev.NextAttemptAt, nullTime(ev.PublishedAt), ev.ID)
	return err
}
