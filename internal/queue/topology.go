package queue

import (
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchanges.
const (
	ExchangeEvents        = "auction.events" // topic: bid.* and auction.*
	ExchangeNotifications = "notifications"  // direct: user.<id>, user.broadcast
	ExchangeUnrouted      = "notifications.unrouted"
	ExchangeAudit         = "audit.events" // fanout
	ExchangeDeadLetter    = "dlx"
	ExchangeRetry         = "retry"        // direct: key is the tier queue name
	ExchangeRetryReturn   = "retry.return" // headers: x-origin-queue picks the queue
)

// Queues.
const (
	QueueBidProcessing = "bid.processing"
	QueueBidPriority   = "bid.priority"
	QueueLifecycle     = "auction.lifecycle"
	QueueNotifications = "notification.queue"
	QueueAudit         = "audit.queue"
	QueueDeadLetter    = "dead.letter.queue"
)

// Routing keys.
const (
	KeyBidPlaced     = "bid.placed"
	KeyBidPriority   = "bid.priority"
	KeyUserBroadcast = "user.broadcast"
	KeyDeadLetter    = "failed"
)

// HeaderOriginQueue names the queue a retried message returns to.
const HeaderOriginQueue = "x-origin-queue"

// RetryTier is one parking queue of the retry path.  A queue-level TTL keeps
// every message in a tier on the same delay, so the head of the queue always
// expires first and no message waits behind a longer one.
type RetryTier struct {
	Queue string
	TTL   time.Duration
}

// RetryTiers are ordered by TTL.
var RetryTiers = []RetryTier{
	{Queue: "retry.1s", TTL: time.Second},
	{Queue: "retry.5s", TTL: 5 * time.Second},
	{Queue: "retry.10s", TTL: 10 * time.Second},
	{Queue: "retry.30s", TTL: 30 * time.Second},
	{Queue: "retry.1m", TTL: time.Minute},
	{Queue: "retry.5m", TTL: 5 * time.Minute},
}

// RetryTierFor returns the shortest tier that waits at least delay, or the
// longest tier when delay exceeds all of them.
func RetryTierFor(delay time.Duration) RetryTier {
	for _, t := range RetryTiers {
		if t.TTL >= delay {
			return t
		}
	}
	return RetryTiers[len(RetryTiers)-1]
}

// LifecycleKey returns the topic key of a lifecycle event, e.g. auction.ended.
func LifecycleKey(eventType string) string { return "auction." + eventType }

// UserKey returns the direct routing key of a user's notifications.
func UserKey(userID string) string { return "user." + userID }

// Declarer is the subset of *amqp.Channel used to declare the topology.
type Declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

type exchangeSpec struct {
	name string
	kind string
	args amqp.Table
}

type binding struct {
	exchange string
	key      string
	args     amqp.Table
}

type queueSpec struct {
	name     string
	args     amqp.Table
	bindings []binding
}

// PrimaryQueues are the queues consumed by processors.  Each of them
// dead-letters to dlx and can be re-entered from the retry tiers.
var PrimaryQueues = []string{QueueBidProcessing, QueueBidPriority, QueueLifecycle, QueueNotifications, QueueAudit}

// AllQueues lists every declared queue, in declaration order.
var AllQueues = func() []string {
	out := append(append([]string{}, PrimaryQueues...), QueueDeadLetter)
	for _, t := range RetryTiers {
		out = append(out, t.Queue)
	}
	return out
}()

func deadLettered(extra amqp.Table) amqp.Table {
	t := amqp.Table{
		"x-dead-letter-exchange":    ExchangeDeadLetter,
		"x-dead-letter-routing-key": KeyDeadLetter,
	}
	for k, v := range extra {
		t[k] = v
	}
	return t
}

func exchanges() []exchangeSpec {
	return []exchangeSpec{
		{name: ExchangeEvents, kind: amqp.ExchangeTopic},
		{name: ExchangeUnrouted, kind: amqp.ExchangeFanout},
		// Direct exchanges match keys exactly, so per-user keys nobody bound
		// explicitly fall through to the alternate exchange and reach the
		// shared notification queue.
		{name: ExchangeNotifications, kind: amqp.ExchangeDirect, args: amqp.Table{"alternate-exchange": ExchangeUnrouted}},
		{name: ExchangeAudit, kind: amqp.ExchangeFanout},
		{name: ExchangeDeadLetter, kind: amqp.ExchangeDirect},
		{name: ExchangeRetry, kind: amqp.ExchangeDirect},
		{name: ExchangeRetryReturn, kind: amqp.ExchangeHeaders},
	}
}

func queues() []queueSpec {
	// every consumed queue, the dead-letter queue included, can be re-entered
	// from the retry tiers
	returns := func(q string) binding {
		return binding{exchange: ExchangeRetryReturn, args: amqp.Table{"x-match": "all", HeaderOriginQueue: q}}
	}
	specs := []queueSpec{
		{
			name:     QueueBidProcessing,
			args:     deadLettered(amqp.Table{"x-max-priority": int32(10), "x-message-ttl": int32(300000)}),
			bindings: []binding{{exchange: ExchangeEvents, key: KeyBidPlaced}, returns(QueueBidProcessing)},
		},
		{
			name:     QueueBidPriority,
			args:     deadLettered(amqp.Table{"x-max-priority": int32(255)}),
			bindings: []binding{{exchange: ExchangeEvents, key: KeyBidPriority}, returns(QueueBidPriority)},
		},
		{
			name:     QueueLifecycle,
			args:     deadLettered(nil),
			bindings: []binding{{exchange: ExchangeEvents, key: "auction.*"}, returns(QueueLifecycle)},
		},
		{
			name: QueueNotifications,
			args: deadLettered(nil),
			bindings: []binding{
				{exchange: ExchangeNotifications, key: KeyUserBroadcast},
				{exchange: ExchangeUnrouted},
				returns(QueueNotifications),
			},
		},
		{
			name:     QueueAudit,
			args:     deadLettered(amqp.Table{"x-message-ttl": int32(86400000)}),
			bindings: []binding{{exchange: ExchangeAudit}, {exchange: ExchangeEvents, key: "#"}, returns(QueueAudit)},
		},
		{
			name:     QueueDeadLetter,
			bindings: []binding{{exchange: ExchangeDeadLetter, key: KeyDeadLetter}, returns(QueueDeadLetter)},
		},
	}
	for _, t := range RetryTiers {
		// On expiry the message keeps its headers, so the headers exchange
		// hands it back to the queue named in x-origin-queue.
		specs = append(specs, queueSpec{
			name: t.Queue,
			args: amqp.Table{
				"x-message-ttl":          int32(t.TTL.Milliseconds()),
				"x-dead-letter-exchange": ExchangeRetryReturn,
			},
			bindings: []binding{{exchange: ExchangeRetry, key: t.Queue}},
		})
	}
	return specs
}

// Declare creates every exchange, queue and binding.  All declarations are
// idempotent, so it runs after each (re)connect.
func Declare(d Declarer) error {
	for _, ex := range exchanges() {
		if err := d.ExchangeDeclare(ex.name, ex.kind, true, false, false, false, ex.args); err != nil {
			return err
		}
	}
	for _, q := range queues() {
		if _, err := d.QueueDeclare(q.name, true, false, false, false, q.args); err != nil {
			return err
		}
		for _, b := range q.bindings {
			if err := d.QueueBind(q.name, b.key, b.exchange, false, b.args); err != nil {
				return err
			}
		}
	}
	return nil
}
