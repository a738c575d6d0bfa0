package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/live-auction/internal/cache"
	"github.com/iliyamo/live-auction/internal/model"
)

type clock struct{ t time.Time }

func newClock() *clock { return &clock{t: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)} }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestJoinLeaveKeepsInverseIndex(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	r := NewRegistry(nil)
	r.now = c.now

	r.Join(ctx, "c1", "alice", "a1")
	r.Join(ctx, "c1", "alice", "a2")
	c.advance(time.Second)
	snap := r.Join(ctx, "c2", "bob", "a1")
	assert.Equal(t, 2, snap.ParticipantCount)
	assert.Equal(t, []string{"a1", "a2"}, r.RoomsOf("c1"))

	ps := r.Participants("a1")
	require.Len(t, ps, 2)
	assert.Equal(t, "alice", ps[0].UserID, "ordered by join time")

	p, ok := r.Leave(ctx, "c2", "a1")
	require.True(t, ok)
	assert.Equal(t, "bob", p.UserID)
	_, ok = r.Leave(ctx, "c2", "a1")
	assert.False(t, ok)
	assert.Empty(t, r.RoomsOf("c2"))

	left := r.RemoveConnection(ctx, "c1")
	assert.Equal(t, []string{"a1", "a2"}, left)
	assert.Empty(t, r.Rooms(), "empty rooms are removed")
	assert.Equal(t, Stats{}, r.Stats())
}

func TestRejoinKeepsOriginalJoinTime(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	r := NewRegistry(nil)
	r.now = c.now

	first := r.Join(ctx, "c1", "alice", "a1").Participants[0].JoinedAt
	c.advance(time.Minute)
	r.Join(ctx, "c1", "alice", "a1")
	// a second tab for the same user
	r.Join(ctx, "c9", "alice", "a1")

	for _, p := range r.Participants("a1") {
		assert.Equal(t, first, p.JoinedAt, p.ConnectionID)
	}
}

func TestRoomStateAndStats(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(nil)

	// updates never create rooms
	r.SetHighestBid(ctx, "ghost", 100, "x")
	_, ok := r.Room("ghost")
	assert.False(t, ok)

	r.Join(ctx, "c1", "alice", "a1")
	r.Join(ctx, "c2", "bob", "a2")
	r.Join(ctx, "c3", "carol", "a2")
	r.SetStatus(ctx, "a1", model.StatusActive)
	r.SetStatus(ctx, "a2", model.StatusEnded)

	r.SetHighestBid(ctx, "a1", 150, "bob")
	r.SetHighestBid(ctx, "a1", 140, "carol") // stale, ignored
	snap, ok := r.Room("a1")
	require.True(t, ok)
	require.NotNil(t, snap.HighestBid)
	assert.Equal(t, int64(150), snap.HighestBid.Amount)
	assert.Equal(t, 1, snap.BidCount)

	assert.Equal(t, Stats{TotalRooms: 2, TotalParticipants: 3, ActiveRooms: 1}, r.Stats())

	conns := r.CloseRoom(ctx, "a2")
	assert.Equal(t, []string{"c2", "c3"}, conns)
	assert.Empty(t, r.RoomsOf("c2"))
}

func TestRoomsAreMirroredToRedis(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	rc := cache.NewRoomCache(rdb, 300*time.Second)
	r := NewRegistry(rc)

	r.Join(ctx, "c1", "alice", "a1")
	r.Seed(ctx, "a1", model.StatusActive, &model.HighestBid{Amount: 120, BidderID: "bob"}, 4)

	info, ok, err := rc.LoadRoom(ctx, "a1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, info.Participants)
	assert.Equal(t, int64(120), info.CurrentHighestBid)
	assert.Equal(t, 4, info.BidCount)
	assert.Equal(t, "ACTIVE", info.Status)
	assert.Equal(t, 300*time.Second, mr.TTL("auction:room:a1"))

	r.Leave(ctx, "c1", "a1")
	assert.False(t, mr.Exists("auction:room:a1"))
}

func TestCleanupInactive(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	r := NewRegistry(nil)
	r.now = c.now

	r.Join(ctx, "c1", "alice", "idle")
	c.advance(50 * time.Minute)
	r.Join(ctx, "c2", "bob", "busy")
	c.advance(20 * time.Minute)

	removed := r.CleanupInactive(ctx, time.Hour)
	assert.Equal(t, map[string][]string{"idle": {"c1"}}, removed)
	_, ok := r.Room("busy")
	assert.True(t, ok)
	assert.Empty(t, r.RoomsOf("c1"))
}
