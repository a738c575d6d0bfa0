package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/live-auction/internal/utils"
)

const relayPattern = "ws:*"

// Relay carries hub broadcasts between instances over Redis pub/sub.  Each
// instance publishes to ws:room:<id>, ws:user:<id> or ws:all and ignores
// messages it published itself.
type Relay struct {
	rdb        redis.UniversalClient
	instanceID string
	hub        *Hub
	log        *logrus.Entry
}

// NewRelay attaches a relay to hub.  With a nil client it returns nil and
// the hub stays local.
func NewRelay(rdb redis.UniversalClient, instanceID string, hub *Hub) *Relay {
	if rdb == nil {
		return nil
	}
	r := &Relay{rdb: rdb, instanceID: instanceID, hub: hub, log: utils.Component("relay")}
	hub.setRelay(r)
	return r
}

func channelFor(scope, target string) string {
	switch scope {
	case scopeRoom:
		return "ws:room:" + target
	case scopeUser:
		return "ws:user:" + target
	}
	return "ws:all"
}

func (r *Relay) publish(ctx context.Context, msg relayMessage) error {
	msg.Origin = r.instanceID
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := r.rdb.Publish(ctx, channelFor(msg.Scope, msg.Target), raw).Err(); err != nil {
		return fmt.Errorf("relay publish: %w", err)
	}
	return nil
}

// Run subscribes and delivers remote messages to the hub until ctx ends.
func (r *Relay) Run(ctx context.Context) error {
	if r == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	sub := r.rdb.PSubscribe(ctx, relayPattern)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("relay subscribe: %w", err)
	}
	r.log.WithField("instance_id", r.instanceID).Info("relay subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(m)
		}
	}
}

func (r *Relay) handle(m *redis.Message) {
	var msg relayMessage
	if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
		r.log.WithError(err).WithField("channel", m.Channel).Warn("relay message dropped")
		return
	}
	if msg.Origin == r.instanceID {
		return
	}
	r.hub.deliverRelayed(msg)
}
