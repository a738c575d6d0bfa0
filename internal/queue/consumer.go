package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/live-auction/internal/config"
	"github.com/iliyamo/live-auction/internal/utils"
)

// Handler processes one decoded message.  Returning nil acknowledges it;
// any error sends it through retry and, eventually, the dead-letter queue.
// Handlers must be idempotent: a message can be delivered more than once.
type Handler interface {
	Handle(ctx context.Context, env Envelope) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, env Envelope) error

func (f HandlerFunc) Handle(ctx context.Context, env Envelope) error { return f(ctx, env) }

// Source yields deliveries for a queue.  *Manager implements it.
type Source interface {
	Consume(ctx context.Context, queue string, prefetch int) (<-chan amqp.Delivery, error)
}

// Failure publishing is split out so the consumer can be tested without a
// broker.
type failurePublisher interface {
	Retry(ctx context.Context, originQueue string, env Envelope, delay time.Duration, priority uint8) error
	PublishAudit(ctx context.Context, e AuditEntry) error
}

// Consumer runs a blocking receive loop for one queue.
type Consumer struct {
	queue string
	h     Handler
	src   Source
	pub   failurePublisher
	cfg   config.QueueConfig
	log   *logrus.Entry
	now   func() time.Time
}

// NewConsumer binds h to queue.
func NewConsumer(queue string, h Handler, src Source, pub failurePublisher, cfg config.QueueConfig) *Consumer {
	return &Consumer{
		queue: queue,
		h:     h,
		src:   src,
		pub:   pub,
		cfg:   cfg,
		log:   utils.Component("consumer").WithField("queue", queue),
		now:   time.Now,
	}
}

// Run consumes until ctx is cancelled, re-subscribing with backoff whenever
// the delivery channel closes.  It returns ctx.Err().
func (c *Consumer) Run(ctx context.Context) error {
	backoff := c.cfg.ReconnectMin
	if backoff <= 0 {
		backoff = time.Second
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		deliveries, err := c.src.Consume(ctx, c.queue, c.cfg.Prefetch)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, ErrClosed) {
				return ctx.Err()
			}
			c.log.WithError(err).WithField("retry_in", backoff.String()).Warn("subscribe failed")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			if backoff < c.cfg.ReconnectMax {
				backoff *= 2
			}
			continue
		}
		backoff = c.cfg.ReconnectMin
		c.log.Info("consuming")
		if err := c.drain(ctx, deliveries); err != nil {
			return err
		}
		c.log.Warn("deliveries channel closed; resubscribing")
	}
}

func (c *Consumer) drain(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			c.Process(ctx, d)
		}
	}
}

// Process handles a single delivery and settles it: ack on success, retry
// with exponential backoff while attempts remain, otherwise nack without
// requeue (which dead-letters it) plus exactly one message_failed audit
// entry.
func (c *Consumer) Process(ctx context.Context, d amqp.Delivery) {
	// settling must survive shutdown of the consume loop
	settleCtx := context.WithoutCancel(ctx)

	env, err := DecodeEnvelope(d.Body)
	if err != nil {
		c.deadLetter(settleCtx, d, Envelope{ID: d.MessageId, RoutingKey: d.RoutingKey}, 1, err)
		return
	}

	timeout := c.cfg.ProcessingTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	hctx, cancel := context.WithTimeout(ctx, timeout)
	err = c.safeHandle(hctx, env)
	cancel()
	if err == nil {
		if ackErr := d.Ack(false); ackErr != nil {
			c.log.WithError(ackErr).WithField("message_id", env.ID).Warn("ack failed")
		}
		return
	}

	attempt := env.RetryCount + 1
	fields := logrus.Fields{"message_id": env.ID, "type": env.Type, "attempt": attempt, "max_attempts": c.cfg.MaxAttempts}
	if attempt >= c.cfg.MaxAttempts || errors.Is(err, ErrMalformed) {
		c.log.WithError(err).WithFields(fields).Error("message exhausted retries")
		c.deadLetter(settleCtx, d, env, attempt, err)
		return
	}

	failedAt := c.now().UTC()
	next := env
	next.RetryCount = attempt
	next.OriginQueue = c.queue
	next.LastError = err.Error()
	next.FailedAt = &failedAt
	delay := RetryTierFor(c.backoff(attempt)).TTL
	if perr := c.pub.Retry(settleCtx, c.queue, next, delay, d.Priority); perr != nil {
		// could not park it, let the broker redeliver the original
		c.log.WithError(perr).WithFields(fields).Error("retry publish failed; requeueing")
		_ = d.Nack(false, true)
		return
	}
	c.log.WithError(err).WithFields(fields).WithField("delay", delay.String()).Warn("message scheduled for retry")
	_ = d.Ack(false)
}

func (c *Consumer) safeHandle(ctx context.Context, env Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return c.h.Handle(ctx, env)
}

// backoff returns base * 2^(attempt-1), capped at the configured maximum.
func (c *Consumer) backoff(attempt int) time.Duration {
	d := c.cfg.RetryBaseDelay
	if d <= 0 {
		d = time.Second
	}
	for i := 1; i < attempt; i++ {
		d *= 2
		if c.cfg.RetryMaxDelay > 0 && d >= c.cfg.RetryMaxDelay {
			return c.cfg.RetryMaxDelay
		}
	}
	return d
}

func (c *Consumer) deadLetter(ctx context.Context, d amqp.Delivery, env Envelope, attempts int, cause error) {
	if err := d.Nack(false, false); err != nil {
		c.log.WithError(err).WithField("message_id", env.ID).Error("nack to dead-letter failed")
		return
	}
	if c.queue == QueueAudit {
		// an audit failure would feed itself; the dead-letter consumer
		// records it instead
		return
	}
	original := any(string(d.Body))
	if len(env.Payload) > 0 {
		original = env
	}
	entry := AuditEntry{
		EventType: AuditMessageFailed,
		Data: map[string]any{
			"originalMessage": original,
			"error":           cause.Error(),
			"retryCount":      env.RetryCount,
			"attempts":        attempts,
			"queue":           c.queue,
		},
		Timestamp: c.now().UTC(),
	}
	if err := c.pub.PublishAudit(ctx, entry); err != nil {
		c.log.WithError(err).WithField("message_id", env.ID).Error("message_failed audit publish failed")
	}
}
