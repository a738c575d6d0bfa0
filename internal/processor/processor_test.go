package processor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/live-auction/internal/model"
	"github.com/iliyamo/live-auction/internal/queue"
	"github.com/iliyamo/live-auction/internal/realtime"
	"github.com/iliyamo/live-auction/internal/repository"
)

var t0 = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type conn struct {
	id, user string

	mu     sync.Mutex
	frames []realtime.Frame
}

func (c *conn) ID() string     { return c.id }
func (c *conn) UserID() string { return c.user }

func (c *conn) Send(f realtime.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
	return nil
}

func (c *conn) count(event string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, f := range c.frames {
		if f.Event == event {
			n++
		}
	}
	return n
}

type notifier struct {
	mu   sync.Mutex
	out  []queue.Notification
	fail error
}

func (n *notifier) PublishNotification(_ context.Context, msg queue.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail != nil {
		return n.fail
	}
	n.out = append(n.out, msg)
	return nil
}

type bidders []string

func (b bidders) Bidders(context.Context, string) ([]string, error) { return b, nil }

func envelope(t *testing.T, typ, id string, payload any) queue.Envelope {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return queue.Envelope{ID: id, Type: typ, Timestamp: t0, Payload: raw}
}

func room(t *testing.T, auctionID string, users ...string) (*realtime.Hub, *realtime.Registry, []*conn) {
	t.Helper()
	rooms := realtime.NewRegistry(nil)
	hub := realtime.NewHub(rooms)
	var conns []*conn
	for _, u := range users {
		c := &conn{id: "conn-" + u, user: u}
		hub.Register(c)
		rooms.Join(context.Background(), c.id, u, auctionID)
		conns = append(conns, c)
	}
	return hub, rooms, conns
}

func TestBidProcessorBroadcastsOncePerBid(t *testing.T) {
	hub, rooms, conns := room(t, "a1", "alice", "bob")
	n := &notifier{}
	p := NewBidProcessor(hub, rooms, n)
	ctx := context.Background()

	env := envelope(t, queue.TypeBidCommitted, "bid-b1", queue.BidCommitted{
		BidID: "b1", AuctionID: "a1", BidderID: "bob", Amount: 150, Timestamp: t0,
	})
	require.NoError(t, p.Handle(ctx, env))
	// redelivery
	require.NoError(t, p.Handle(ctx, env))

	for _, c := range conns {
		assert.Equal(t, 1, c.count(realtime.EventBidPlaced), c.user)
	}
	snap, ok := rooms.Room("a1")
	require.True(t, ok)
	require.NotNil(t, snap.HighestBid)
	assert.Equal(t, int64(150), snap.HighestBid.Amount)

	// notifications are at-least-once: the redelivery queues them again
	require.Len(t, n.out, 4)
	assert.Equal(t, "bob", n.out[0].UserID)
	assert.Equal(t, queue.NotifyBidPlaced, n.out[0].Type)
	assert.True(t, n.out[1].Broadcast)
}

func TestBidProcessorRejectsIncompleteEvents(t *testing.T) {
	hub, rooms, _ := room(t, "a1")
	p := NewBidProcessor(hub, rooms, &notifier{})

	err := p.Handle(context.Background(), envelope(t, queue.TypeBidCommitted, "x", queue.BidCommitted{AuctionID: "a1"}))
	require.ErrorIs(t, err, queue.ErrMalformed)
}

func TestBidProcessorSurfacesNotificationFailure(t *testing.T) {
	hub, rooms, _ := room(t, "a1")
	p := NewBidProcessor(hub, rooms, &notifier{fail: errors.New("broker down")})

	err := p.Handle(context.Background(), envelope(t, queue.TypeBidCommitted, "bid-b1", queue.BidCommitted{
		BidID: "b1", AuctionID: "a1", BidderID: "bob", Amount: 150,
	}))
	require.Error(t, err)
	assert.NotErrorIs(t, err, queue.ErrMalformed)
}

func TestLifecycleEndedNotifiesWinnerAndLosers(t *testing.T) {
	hub, rooms, conns := room(t, "a1", "viewer")
	rooms.SetStatus(context.Background(), "a1", model.StatusActive)
	n := &notifier{}
	p := NewLifecycleProcessor(hub, rooms, n, bidders{"alice", "bob"})

	env := envelope(t, queue.TypeLifecycle, "ev-1", queue.AuctionLifecycleEvent{
		AuctionID: "a1",
		EventType: queue.LifecycleEnded,
		Data:      map[string]any{"winnerId": "bob", "winningBid": 220, "endedBy": "", "endTime": t0},
		Timestamp: t0,
	})
	require.NoError(t, p.Handle(context.Background(), env))

	assert.Equal(t, 1, conns[0].count(realtime.EventAuctionEnded))
	snap, _ := rooms.Room("a1")
	assert.Equal(t, model.StatusEnded, snap.Status)

	byUser := map[string]string{}
	broadcasts := 0
	for _, msg := range n.out {
		if msg.Broadcast {
			broadcasts++
			continue
		}
		byUser[msg.UserID] = msg.Type
	}
	assert.Equal(t, map[string]string{"alice": queue.NotifyAuctionLost, "bob": queue.NotifyAuctionWon}, byUser)
	assert.Equal(t, 1, broadcasts)
}

func TestLifecycleStartedAndDeleted(t *testing.T) {
	hub, rooms, conns := room(t, "a1", "viewer")
	n := &notifier{}
	p := NewLifecycleProcessor(hub, rooms, n, bidders(nil))
	ctx := context.Background()

	started := envelope(t, queue.TypeLifecycle, "ev-1", queue.AuctionLifecycleEvent{
		AuctionID: "a1", EventType: queue.LifecycleStarted, Data: map[string]any{"startedBy": "owner"}, Timestamp: t0,
	})
	require.NoError(t, p.Handle(ctx, started))
	// the gateway already announced it on this instance
	assert.False(t, hub.BroadcastOnce(ctx, "a1", realtime.EventAuctionStarted, realtime.StartedKey("a1"), nil))
	assert.Equal(t, 1, conns[0].count(realtime.EventAuctionStarted))
	require.Len(t, n.out, 1)
	assert.True(t, n.out[0].Broadcast)

	deleted := envelope(t, queue.TypeLifecycle, "ev-2", queue.AuctionLifecycleEvent{AuctionID: "a1", EventType: queue.LifecycleDeleted})
	require.NoError(t, p.Handle(ctx, deleted))
	assert.Equal(t, 1, conns[0].count(realtime.EventAuctionDeleted))
	_, ok := rooms.Room("a1")
	assert.False(t, ok)

	unknown := envelope(t, queue.TypeLifecycle, "ev-3", queue.AuctionLifecycleEvent{AuctionID: "a1", EventType: "paused"})
	assert.NoError(t, p.Handle(ctx, unknown))
}

func TestNotificationRouting(t *testing.T) {
	hub, _, conns := room(t, "a1", "alice", "bob")
	p := NewNotificationProcessor(hub)
	ctx := context.Background()

	require.NoError(t, p.Handle(ctx, envelope(t, queue.TypeNotification, "n1", queue.Notification{UserID: "alice", Type: queue.NotifyAuctionWon})))
	assert.Equal(t, 1, conns[0].count(realtime.EventNotification))
	assert.Zero(t, conns[1].count(realtime.EventNotification))

	require.NoError(t, p.Handle(ctx, envelope(t, queue.TypeNotification, "n2", queue.Notification{Broadcast: true, Type: queue.NotifyAuctionStarted})))
	assert.Equal(t, 2, conns[0].count(realtime.EventNotification))
	assert.Equal(t, 1, conns[1].count(realtime.EventNotification))

	err := p.Handle(ctx, envelope(t, queue.TypeNotification, "n3", queue.Notification{Type: queue.NotifyBidPlaced}))
	require.ErrorIs(t, err, queue.ErrMalformed)
}

func TestAuditRecordsEachBidOnce(t *testing.T) {
	store := repository.NewMemoryStore()
	p := NewAuditProcessor(store)
	ctx := context.Background()

	ev := queue.BidCommitted{BidID: "b1", AuctionID: "a1", BidderID: "bob", Amount: 150, Timestamp: t0}
	require.NoError(t, p.Handle(ctx, envelope(t, queue.TypeBidCommitted, "bid-b1", ev)))
	require.NoError(t, p.Handle(ctx, envelope(t, queue.TypeBidCommitted, "bid-b1", ev)))
	// a republish under a different envelope id is still the same bid
	require.NoError(t, p.Handle(ctx, envelope(t, queue.TypeBidCommitted, "other-id", ev)))

	lifecycle := queue.AuctionLifecycleEvent{AuctionID: "a1", EventType: queue.LifecycleEnded, UserID: "owner", Timestamp: t0}
	require.NoError(t, p.Handle(ctx, envelope(t, queue.TypeLifecycle, "ev-1", lifecycle)))
	require.NoError(t, p.Handle(ctx, envelope(t, queue.TypeLifecycle, "ev-1", lifecycle)))

	entry := queue.AuditEntry{EventType: queue.AuditMessageFailed, AuctionID: "a1", Data: map[string]any{"error": "boom"}}
	require.NoError(t, p.Handle(ctx, envelope(t, queue.TypeAudit, "au-1", entry)))

	recs, err := store.ListAudit(ctx, "a1", 10)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, queue.AuditMessageFailed, recs[0].EventType)
	assert.JSONEq(t, `{"error":"boom"}`, string(recs[0].Data))
	assert.Equal(t, "auction_ended", recs[1].EventType)
	assert.Equal(t, "auction_ended:ev-1", recs[1].DedupeKey)
	assert.Equal(t, "bid:b1", recs[2].DedupeKey)
	assert.Equal(t, "b1", recs[2].BidID)
	assert.Equal(t, t0, recs[2].OccurredAt)
}

func TestDeadLetterIsRecorded(t *testing.T) {
	store := repository.NewMemoryStore()
	p := NewDeadLetterProcessor(store)
	ctx := context.Background()

	failedAt := t0.Add(time.Minute)
	env := envelope(t, queue.TypeBidCommitted, "bid-b9", queue.BidCommitted{BidID: "b9", AuctionID: "a1", BidderID: "bob"})
	env.RetryCount = 2
	env.OriginQueue = queue.QueueBidProcessing
	env.LastError = "boom"
	env.FailedAt = &failedAt

	require.NoError(t, p.Handle(ctx, env))
	require.NoError(t, p.Handle(ctx, env))

	recs, err := store.ListAudit(ctx, "a1", 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, queue.AuditMessageDeadLetter, recs[0].EventType)
	assert.Equal(t, "b9", recs[0].BidID)
	assert.Equal(t, failedAt, recs[0].OccurredAt)

	var data map[string]any
	require.NoError(t, json.Unmarshal(recs[0].Data, &data))
	assert.Equal(t, queue.QueueBidProcessing, data["originQueue"])
	assert.Equal(t, float64(2), data["retryCount"])
}
