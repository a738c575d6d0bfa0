package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/live-auction/internal/utils"
)

// Frame is the JSON shape of every websocket message in both directions.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Conn is one live client connection.  Send must be safe for concurrent use.
type Conn interface {
	ID() string
	UserID() string
	Send(f Frame) error
}

// Broadcaster is the fan-out surface used by the gateway and the queue
// processors.
type Broadcaster interface {
	Broadcast(ctx context.Context, auctionID, event string, data any)
	BroadcastOnce(ctx context.Context, auctionID, event, key string, data any) bool
	SendToUser(ctx context.Context, userID, event string, data any)
	BroadcastAll(ctx context.Context, event string, data any)
}

// relay scopes.
const (
	scopeRoom = "room"
	scopeUser = "user"
	scopeAll  = "all"
)

// relayMessage is what travels between instances.
type relayMessage struct {
	Origin string          `json:"origin"`
	Scope  string          `json:"scope"`
	Target string          `json:"target,omitempty"`
	Key    string          `json:"key,omitempty"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data,omitempty"`
}

type relayPublisher interface {
	publish(ctx context.Context, msg relayMessage) error
}

const seenTTL = time.Minute

// Hub delivers frames to local connections and, when a relay is attached,
// republishes them so the other instances deliver to theirs.
type Hub struct {
	mu     sync.RWMutex
	conns  map[string]Conn
	byUser map[string]map[string]Conn
	rooms  *Registry
	relay  relayPublisher

	seenMu sync.Mutex
	seen   map[string]time.Time

	now func() time.Time
	log *logrus.Entry
}

var _ Broadcaster = (*Hub)(nil)

// NewHub returns a hub that resolves room membership through rooms.
func NewHub(rooms *Registry) *Hub {
	return &Hub{
		conns:  make(map[string]Conn),
		byUser: make(map[string]map[string]Conn),
		rooms:  rooms,
		seen:   make(map[string]time.Time),
		now:    time.Now,
		log:    utils.Component("hub"),
	}
}

// Rooms returns the registry the hub delivers through.
func (h *Hub) Rooms() *Registry { return h.rooms }

// Register makes a connection reachable.
func (h *Hub) Register(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c.ID()] = c
	if h.byUser[c.UserID()] == nil {
		h.byUser[c.UserID()] = make(map[string]Conn)
	}
	h.byUser[c.UserID()][c.ID()] = c
}

// Unregister forgets a connection.  Room membership is handled separately
// by the registry.
func (h *Hub) Unregister(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c.ID())
	if set := h.byUser[c.UserID()]; set != nil {
		delete(set, c.ID())
		if len(set) == 0 {
			delete(h.byUser, c.UserID())
		}
	}
}

// ConnectionCount returns the number of local connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Send delivers a frame to a single local connection.
func (h *Hub) Send(connID, event string, data any) error {
	h.mu.RLock()
	c, ok := h.conns[connID]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	return c.Send(Frame{Event: event, Data: data})
}

// Broadcast sends an event to everyone in an auction room.
func (h *Hub) Broadcast(ctx context.Context, auctionID, event string, data any) {
	h.deliverRoom(auctionID, Frame{Event: event, Data: data})
	h.forward(ctx, scopeRoom, auctionID, "", event, data)
}

// BroadcastOnce is Broadcast deduplicated on key for a short window, so an
// event that reaches this process through both the gateway and a queue
// consumer is delivered once.  It reports whether the frame was sent.
func (h *Hub) BroadcastOnce(ctx context.Context, auctionID, event, key string, data any) bool {
	if !h.markSeen(key) {
		return false
	}
	h.deliverRoom(auctionID, Frame{Event: event, Data: data})
	h.forward(ctx, scopeRoom, auctionID, key, event, data)
	return true
}

// SendToUser sends an event to every connection of one user.
func (h *Hub) SendToUser(ctx context.Context, userID, event string, data any) {
	h.deliverUser(userID, Frame{Event: event, Data: data})
	h.forward(ctx, scopeUser, userID, "", event, data)
}

// BroadcastAll sends an event to every connection.
func (h *Hub) BroadcastAll(ctx context.Context, event string, data any) {
	h.deliverAll(Frame{Event: event, Data: data})
	h.forward(ctx, scopeAll, "", "", event, data)
}

// deliverRelayed handles a message published by another instance.
func (h *Hub) deliverRelayed(msg relayMessage) {
	if msg.Key != "" && !h.markSeen(msg.Key) {
		return
	}
	f := Frame{Event: msg.Event}
	if len(msg.Data) > 0 {
		f.Data = msg.Data
	}
	switch msg.Scope {
	case scopeRoom:
		h.deliverRoom(msg.Target, f)
	case scopeUser:
		h.deliverUser(msg.Target, f)
	case scopeAll:
		h.deliverAll(f)
	}
}

func (h *Hub) deliverRoom(auctionID string, f Frame) {
	ids := h.rooms.ConnectionIDs(auctionID)
	if len(ids) == 0 {
		return
	}
	h.mu.RLock()
	targets := make([]Conn, 0, len(ids))
	for _, id := range ids {
		if c, ok := h.conns[id]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	h.sendAll(targets, f)
}

func (h *Hub) deliverUser(userID string, f Frame) {
	h.mu.RLock()
	targets := make([]Conn, 0, len(h.byUser[userID]))
	for _, c := range h.byUser[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	h.sendAll(targets, f)
}

func (h *Hub) deliverAll(f Frame) {
	h.mu.RLock()
	targets := make([]Conn, 0, len(h.conns))
	for _, c := range h.conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	h.sendAll(targets, f)
}

func (h *Hub) sendAll(targets []Conn, f Frame) {
	for _, c := range targets {
		if err := c.Send(f); err != nil {
			h.log.WithError(err).WithFields(logrus.Fields{"conn_id": c.ID(), "event": f.Event}).Debug("send failed")
		}
	}
}

func (h *Hub) forward(ctx context.Context, scope, target, key, event string, data any) {
	h.mu.RLock()
	r := h.relay
	h.mu.RUnlock()
	if r == nil {
		return
	}
	msg := relayMessage{Scope: scope, Target: target, Key: key, Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			h.log.WithError(err).WithField("event", event).Warn("relay payload encode failed")
			return
		}
		msg.Data = raw
	}
	if err := r.publish(context.WithoutCancel(ctx), msg); err != nil {
		h.log.WithError(err).WithField("event", event).Warn("relay publish failed")
	}
}

func (h *Hub) setRelay(r relayPublisher) {
	h.mu.Lock()
	h.relay = r
	h.mu.Unlock()
}

// markSeen records key and reports whether it was new.  An empty key is
// always new.
func (h *Hub) markSeen(key string) bool {
	if key == "" {
		return true
	}
	now := h.now()
	h.seenMu.Lock()
	defer h.seenMu.Unlock()
	if at, ok := h.seen[key]; ok && now.Sub(at) < seenTTL {
		return false
	}
	h.seen[key] = now
	if len(h.seen) > 1024 {
		for k, at := range h.seen {
			if now.Sub(at) >= seenTTL {
				delete(h.seen, k)
			}
		}
	}
	return true
}
