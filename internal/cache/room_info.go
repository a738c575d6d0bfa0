package cache

import (
	"context"
	"errors"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"
)

// RoomInfo is the snapshot of a live room mirrored to Redis so that other
// instances can report on it.
type RoomInfo struct {
	AuctionID         string `cbor:"1,keyasint" json:"auctionId"`
	Participants      int    `cbor:"2,keyasint" json:"participants"`
	CurrentHighestBid int64  `cbor:"3,keyasint" json:"currentHighestBid"`
	BidCount          int    `cbor:"4,keyasint" json:"bidCount"`
	Status            string `cbor:"5,keyasint" json:"status"`
	LastActivity      int64  `cbor:"6,keyasint" json:"lastActivity"` // unix ms
}

// RoomCache stores RoomInfo under auction:room:<id>.
type RoomCache struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

// NewRoomCache returns a room cache with the given entry lifetime.
func NewRoomCache(rdb redis.UniversalClient, ttl time.Duration) *RoomCache {
	return &RoomCache{rdb: rdb, ttl: ttl}
}

func roomKey(auctionID string) string { return "auction:room:" + auctionID }

func (c *RoomCache) SaveRoom(ctx context.Context, info RoomInfo) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	raw, err := cbor.Marshal(info)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, roomKey(info.AuctionID), raw, c.ttl).Err()
}

func (c *RoomCache) LoadRoom(ctx context.Context, auctionID string) (RoomInfo, bool, error) {
	if c == nil || c.rdb == nil {
		return RoomInfo{}, false, nil
	}
	raw, err := c.rdb.Get(ctx, roomKey(auctionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return RoomInfo{}, false, nil
	}
	if err != nil {
		return RoomInfo{}, false, err
	}
	var info RoomInfo
	if err := cbor.Unmarshal(raw, &info); err != nil {
		return RoomInfo{}, false, nil
	}
	return info, true, nil
}

func (c *RoomCache) DeleteRoom(ctx context.Context, auctionID string) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Del(ctx, roomKey(auctionID)).Err()
}
