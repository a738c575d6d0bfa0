package queue

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/live-auction/internal/utils"
)

// HeaderRetryCount mirrors Envelope.RetryCount for broker-side inspection.
const HeaderRetryCount = "x-retry-count"

// priorityBid is the AMQP priority given to late-auction bids.
const priorityBid uint8 = 10

// Sender is the raw publish primitive.  *Manager implements it.
type Sender interface {
	Publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error
}

// Publisher wraps payloads in an Envelope and routes them through the
// topology.  All messages are persistent JSON.
type Publisher struct {
	out   Sender
	now   func() time.Time
	newID func() string
}

// NewPublisher returns a publisher writing through out.
func NewPublisher(out Sender) *Publisher {
	return &Publisher{out: out, now: time.Now, newID: utils.NewID}
}

// PublishBidCommitted routes a committed bid to bid.priority when priority is
// set and to bid.placed otherwise.  The message id is derived from the bid id
// so redeliveries and republishes are recognisable downstream.
func (p *Publisher) PublishBidCommitted(ctx context.Context, ev BidCommitted, priority bool) error {
	key, prio := KeyBidPlaced, uint8(0)
	if priority {
		key, prio = KeyBidPriority, priorityBid
	}
	ev.Priority = priority
	return p.publish(ctx, ExchangeEvents, key, TypeBidCommitted, "bid-"+ev.BidID, prio, ev)
}

// PublishLifecycle routes to auction.<eventType>.  The message id is ev.ID
// when set and a fresh id otherwise.
func (p *Publisher) PublishLifecycle(ctx context.Context, ev AuctionLifecycleEvent) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = p.now().UTC()
	}
	id := ev.ID
	if id == "" {
		id = p.newID()
	}
	return p.publish(ctx, ExchangeEvents, LifecycleKey(ev.EventType), TypeLifecycle, id, 0, ev)
}

// PublishNotification routes to user.<id>, or user.broadcast for broadcasts.
func (p *Publisher) PublishNotification(ctx context.Context, n Notification) error {
	key := KeyUserBroadcast
	if !n.Broadcast {
		key = UserKey(n.UserID)
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = p.now().UTC()
	}
	return p.publish(ctx, ExchangeNotifications, key, TypeNotification, "notification-"+p.newID(), 0, n)
}

// PublishAudit fans an entry out to every audit consumer.
func (p *Publisher) PublishAudit(ctx context.Context, e AuditEntry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = p.now().UTC()
	}
	return p.publish(ctx, ExchangeAudit, "", TypeAudit, p.newID(), 0, e)
}

// Retry parks env in the retry tier matching delay, rounded up to the next
// tier.  When the tier's TTL elapses the broker returns the message to
// originQueue.  priority is the AMQP priority of the failed delivery and is
// kept so a late-auction bid stays ahead of ordinary traffic.
func (p *Publisher) Retry(ctx context.Context, originQueue string, env Envelope, delay time.Duration, priority uint8) error {
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	tier := RetryTierFor(delay)
	msg := p.message(env, priority, body)
	msg.Headers[HeaderOriginQueue] = originQueue
	return p.out.Publish(ctx, ExchangeRetry, tier.Queue, msg)
}

func (p *Publisher) publish(ctx context.Context, exchange, key, typ, id string, priority uint8, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	env := Envelope{
		ID:         id,
		Type:       typ,
		RoutingKey: key,
		Timestamp:  p.now().UTC(),
		Payload:    raw,
	}
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return p.out.Publish(ctx, exchange, key, p.message(env, priority, body))
}

func (p *Publisher) message(env Envelope, priority uint8, body []byte) amqp.Publishing {
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Priority:     priority,
		MessageId:    env.ID,
		Type:         env.Type,
		Timestamp:    p.now().UTC(),
		Headers:      amqp.Table{HeaderRetryCount: int32(env.RetryCount)},
		Body:         body,
	}
}
