package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestBidCacheRoundTripAndInvalidate(t *testing.T) {
	mr, rdb := newClient(t)
	c := NewBidCache(rdb, time.Minute)
	ctx := context.Background()

	_, ok, err := c.GetHighestBid(ctx, "a1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.SetHighestBid(ctx, "a1", 150, "u1"))
	require.True(t, mr.Exists("auction:a1:highestBid"))

	hb, ok, err := c.GetHighestBid(ctx, "a1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(150), hb.Amount)
	require.Equal(t, "u1", hb.BidderID)
	require.NotZero(t, hb.UpdatedAt)

	require.NoError(t, c.Invalidate(ctx, "a1"))
	_, ok, _ = c.GetHighestBid(ctx, "a1")
	require.False(t, ok)
}

func TestBidCacheRepairNeverOverwrites(t *testing.T) {
	mr, rdb := newClient(t)
	c := NewBidCache(rdb, time.Minute)
	ctx := context.Background()

	// a commit wrote 200 after the reader loaded the auction at 150
	require.NoError(t, c.SetHighestBid(ctx, "a1", 200, "u2"))
	require.NoError(t, c.RepairHighestBid(ctx, "a1", 150, "u1"))
	hb, ok, err := c.GetHighestBid(ctx, "a1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(200), hb.Amount)
	require.Equal(t, "u2", hb.BidderID)

	require.NoError(t, c.RepairHighestBid(ctx, "a2", 150, "u1"))
	hb, ok, err = c.GetHighestBid(ctx, "a2")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(150), hb.Amount)
	require.Equal(t, time.Minute, mr.TTL("auction:a2:highestBid"))
}

func TestBidCacheEntriesExpire(t *testing.T) {
	mr, rdb := newClient(t)
	c := NewBidCache(rdb, time.Second)
	ctx := context.Background()

	require.NoError(t, c.SetHighestBid(ctx, "a1", 10, "u"))
	mr.FastForward(2 * time.Second)
	_, ok, err := c.GetHighestBid(ctx, "a1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBidCacheCorruptEntryIsAMiss(t *testing.T) {
	mr, rdb := newClient(t)
	c := NewBidCache(rdb, time.Minute)

	require.NoError(t, mr.Set("auction:a1:highestBid", "not-cbor-\xff\xff"))
	_, ok, err := c.GetHighestBid(context.Background(), "a1")
	require.NoError(t, err)
	require.False(t, ok)
	require.False(t, mr.Exists("auction:a1:highestBid"))
}

func TestNilClientIsNoop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	bc := NewBidCache(nil, time.Minute)
	require.NoError(t, bc.SetHighestBid(ctx, "a1", 1, "u"))
	require.NoError(t, bc.RepairHighestBid(ctx, "a1", 1, "u"))
	_, ok, err := bc.GetHighestBid(ctx, "a1")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, bc.Invalidate(ctx, "a1"))

	rc := NewRoomCache(nil, time.Minute)
	require.NoError(t, rc.SaveRoom(ctx, RoomInfo{AuctionID: "a1"}))
	_, ok, err = rc.LoadRoom(ctx, "a1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRoomCacheUsesTTL(t *testing.T) {
	mr, rdb := newClient(t)
	c := NewRoomCache(rdb, 300*time.Second)
	ctx := context.Background()

	require.NoError(t, c.SaveRoom(ctx, RoomInfo{AuctionID: "a1", Participants: 3, Status: "ACTIVE"}))
	require.Equal(t, 300*time.Second, mr.TTL("auction:room:a1"))

	info, ok, err := c.LoadRoom(ctx, "a1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 3, info.Participants)

	require.NoError(t, c.DeleteRoom(ctx, "a1"))
	require.False(t, mr.Exists("auction:room:a1"))
}
