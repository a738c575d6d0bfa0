// Package realtime tracks live auction rooms and fans events out to the
// websocket connections subscribed to them, across instances when Redis is
// available.
package realtime

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/live-auction/internal/cache"
	"github.com/iliyamo/live-auction/internal/model"
	"github.com/iliyamo/live-auction/internal/utils"
)

// Participant is one connection inside a room.
type Participant struct {
	ConnectionID string    `json:"connectionId"`
	UserID       string    `json:"userId"`
	JoinedAt     time.Time `json:"joinedAt"`
}

// RoomSnapshot is a copy of a room that is safe to hand out.
type RoomSnapshot struct {
	AuctionID        string              `json:"auctionId"`
	Participants     []Participant       `json:"participants"`
	ParticipantCount int                 `json:"participantCount"`
	Status           model.AuctionStatus `json:"status,omitempty"`
	HighestBid       *model.HighestBid   `json:"highestBid"`
	BidCount         int                 `json:"bidCount"`
	CreatedAt        time.Time           `json:"createdAt"`
	LastActivity     time.Time           `json:"lastActivity"`
}

// Stats summarises the registry.  ActiveRooms counts rooms whose auction is
// known to be ACTIVE.
type Stats struct {
	TotalRooms        int `json:"totalRooms"`
	TotalParticipants int `json:"totalParticipants"`
	ActiveRooms       int `json:"activeRooms"`
}

// RoomMirror receives room snapshots for cross-instance reporting.
// *cache.RoomCache implements it.
type RoomMirror interface {
	SaveRoom(ctx context.Context, info cache.RoomInfo) error
	DeleteRoom(ctx context.Context, auctionID string) error
}

type room struct {
	auctionID    string
	members      map[string]Participant // connection id -> participant
	status       model.AuctionStatus
	highest      *model.HighestBid
	bidCount     int
	createdAt    time.Time
	lastActivity time.Time
}

// Registry maps auctions to their joined connections and keeps the inverse
// index so a disconnect only touches the rooms that connection was in.  A
// room exists only while it has at least one participant.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]*room
	byConn map[string]map[string]struct{} // connection id -> auction ids
	mirror RoomMirror
	now    func() time.Time
	log    *logrus.Entry
}

// NewRegistry returns an empty registry.  mirror may be nil.
func NewRegistry(mirror RoomMirror) *Registry {
	return &Registry{
		rooms:  make(map[string]*room),
		byConn: make(map[string]map[string]struct{}),
		mirror: mirror,
		now:    time.Now,
		log:    utils.Component("rooms"),
	}
}

// Join adds a connection to an auction's room, creating the room when
// needed.  A user who is already present through another connection keeps
// the original join time.
func (r *Registry) Join(ctx context.Context, connID, userID, auctionID string) RoomSnapshot {
	r.mu.Lock()
	now := r.now().UTC()
	rm, ok := r.rooms[auctionID]
	if !ok {
		rm = &room{auctionID: auctionID, members: make(map[string]Participant), createdAt: now}
		r.rooms[auctionID] = rm
	}
	joinedAt := now
	if p, ok := rm.members[connID]; ok {
		joinedAt = p.JoinedAt
	} else {
		for _, p := range rm.members {
			if p.UserID == userID && p.JoinedAt.Before(joinedAt) {
				joinedAt = p.JoinedAt
			}
		}
	}
	rm.members[connID] = Participant{ConnectionID: connID, UserID: userID, JoinedAt: joinedAt}
	rm.lastActivity = now
	if r.byConn[connID] == nil {
		r.byConn[connID] = make(map[string]struct{})
	}
	r.byConn[connID][auctionID] = struct{}{}
	snap := rm.snapshot()
	r.mu.Unlock()

	r.save(ctx, snap)
	return snap
}

// Leave removes a connection from a room.  It reports whether the
// connection was a member.
func (r *Registry) Leave(ctx context.Context, connID, auctionID string) (Participant, bool) {
	r.mu.Lock()
	p, snap, emptied, ok := r.leaveLocked(connID, auctionID)
	r.mu.Unlock()
	if !ok {
		return Participant{}, false
	}
	if emptied {
		r.drop(ctx, auctionID)
	} else {
		r.save(ctx, snap)
	}
	return p, true
}

// RemoveConnection drops a connection from every room it joined and returns
// those auction ids.
func (r *Registry) RemoveConnection(ctx context.Context, connID string) []string {
	r.mu.Lock()
	joined := r.byConn[connID]
	ids := make([]string, 0, len(joined))
	var saves []RoomSnapshot
	var drops []string
	for auctionID := range joined {
		_, snap, emptied, ok := r.leaveLocked(connID, auctionID)
		if !ok {
			continue
		}
		ids = append(ids, auctionID)
		if emptied {
			drops = append(drops, auctionID)
		} else {
			saves = append(saves, snap)
		}
	}
	delete(r.byConn, connID)
	r.mu.Unlock()

	for _, s := range saves {
		r.save(ctx, s)
	}
	for _, id := range drops {
		r.drop(ctx, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) leaveLocked(connID, auctionID string) (Participant, RoomSnapshot, bool, bool) {
	rm, ok := r.rooms[auctionID]
	if !ok {
		return Participant{}, RoomSnapshot{}, false, false
	}
	p, ok := rm.members[connID]
	if !ok {
		return Participant{}, RoomSnapshot{}, false, false
	}
	delete(rm.members, connID)
	if set := r.byConn[connID]; set != nil {
		delete(set, auctionID)
		if len(set) == 0 {
			delete(r.byConn, connID)
		}
	}
	rm.lastActivity = r.now().UTC()
	if len(rm.members) == 0 {
		delete(r.rooms, auctionID)
		return p, RoomSnapshot{}, true, true
	}
	return p, rm.snapshot(), false, true
}

// CloseRoom removes a room outright, e.g. after its auction was deleted, and
// returns the connections that were in it.
func (r *Registry) CloseRoom(ctx context.Context, auctionID string) []string {
	r.mu.Lock()
	rm, ok := r.rooms[auctionID]
	var conns []string
	if ok {
		for connID := range rm.members {
			conns = append(conns, connID)
			if set := r.byConn[connID]; set != nil {
				delete(set, auctionID)
				if len(set) == 0 {
					delete(r.byConn, connID)
				}
			}
		}
		delete(r.rooms, auctionID)
	}
	r.mu.Unlock()
	if ok {
		r.drop(ctx, auctionID)
	}
	sort.Strings(conns)
	return conns
}

// Participants lists a room's members ordered by join time.
func (r *Registry) Participants(auctionID string) []Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[auctionID]
	if !ok {
		return []Participant{}
	}
	return rm.participants()
}

// ConnectionIDs returns the connections currently in a room.
func (r *Registry) ConnectionIDs(auctionID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[auctionID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(rm.members))
	for id := range rm.members {
		out = append(out, id)
	}
	return out
}

// RoomsOf returns the auctions a connection has joined.
func (r *Registry) RoomsOf(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byConn[connID]))
	for id := range r.byConn[connID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Room returns a snapshot of one room.
func (r *Registry) Room(auctionID string) (RoomSnapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[auctionID]
	if !ok {
		return RoomSnapshot{}, false
	}
	return rm.snapshot(), true
}

// Rooms returns every room ordered by auction id.
func (r *Registry) Rooms() []RoomSnapshot {
	r.mu.RLock()
	out := make([]RoomSnapshot, 0, len(r.rooms))
	for _, rm := range r.rooms {
		out = append(out, rm.snapshot())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].AuctionID < out[j].AuctionID })
	return out
}

// Stats reports room and participant totals.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := Stats{TotalRooms: len(r.rooms)}
	for _, rm := range r.rooms {
		s.TotalParticipants += len(rm.members)
		if rm.status == model.StatusActive {
			s.ActiveRooms++
		}
	}
	return s
}

// SetHighestBid records a new leading bid on an existing room.  Rooms are
// never created by it.
func (r *Registry) SetHighestBid(ctx context.Context, auctionID string, amount int64, bidderID string) {
	r.update(ctx, auctionID, func(rm *room, now time.Time) {
		if rm.highest != nil && rm.highest.Amount >= amount {
			return
		}
		rm.highest = &model.HighestBid{Amount: amount, BidderID: bidderID, UpdatedAt: now.UnixMilli()}
		rm.bidCount++
	})
}

// SetStatus records the auction status on an existing room.
func (r *Registry) SetStatus(ctx context.Context, auctionID string, status model.AuctionStatus) {
	r.update(ctx, auctionID, func(rm *room, _ time.Time) { rm.status = status })
}

// Seed primes a room with state read from the store, for example when the
// first viewer joins.
func (r *Registry) Seed(ctx context.Context, auctionID string, status model.AuctionStatus, hb *model.HighestBid, bidCount int) {
	r.update(ctx, auctionID, func(rm *room, _ time.Time) {
		rm.status = status
		if hb != nil && (rm.highest == nil || hb.Amount > rm.highest.Amount) {
			v := *hb
			rm.highest = &v
		}
		if bidCount > rm.bidCount {
			rm.bidCount = bidCount
		}
	})
}

func (r *Registry) update(ctx context.Context, auctionID string, fn func(rm *room, now time.Time)) {
	r.mu.Lock()
	rm, ok := r.rooms[auctionID]
	if !ok {
		r.mu.Unlock()
		return
	}
	now := r.now().UTC()
	fn(rm, now)
	rm.lastActivity = now
	snap := rm.snapshot()
	r.mu.Unlock()
	r.save(ctx, snap)
}

// CleanupInactive removes rooms without activity for longer than threshold
// and returns how many were removed along with their connections.
func (r *Registry) CleanupInactive(ctx context.Context, threshold time.Duration) map[string][]string {
	cutoff := r.now().UTC().Add(-threshold)
	r.mu.RLock()
	var stale []string
	for id, rm := range r.rooms {
		if rm.lastActivity.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()

	out := make(map[string][]string, len(stale))
	for _, id := range stale {
		out[id] = r.CloseRoom(ctx, id)
	}
	if len(out) > 0 {
		r.log.WithField("rooms", len(out)).Info("inactive rooms removed")
	}
	return out
}

func (r *Registry) save(ctx context.Context, snap RoomSnapshot) {
	if r.mirror == nil {
		return
	}
	info := cache.RoomInfo{
		AuctionID:    snap.AuctionID,
		Participants: snap.ParticipantCount,
		BidCount:     snap.BidCount,
		Status:       string(snap.Status),
		LastActivity: snap.LastActivity.UnixMilli(),
	}
	if snap.HighestBid != nil {
		info.CurrentHighestBid = snap.HighestBid.Amount
	}
	if err := r.mirror.SaveRoom(ctx, info); err != nil {
		r.log.WithError(err).WithField("auction_id", snap.AuctionID).Warn("room mirror write failed")
	}
}

func (r *Registry) drop(ctx context.Context, auctionID string) {
	if r.mirror == nil {
		return
	}
	if err := r.mirror.DeleteRoom(ctx, auctionID); err != nil {
		r.log.WithError(err).WithField("auction_id", auctionID).Warn("room mirror delete failed")
	}
}

func (rm *room) participants() []Participant {
	out := make([]Participant, 0, len(rm.members))
	for _, p := range rm.members {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ConnectionID < out[j].ConnectionID
	})
	return out
}

func (rm *room) snapshot() RoomSnapshot {
	s := RoomSnapshot{
		AuctionID:        rm.auctionID,
		Participants:     rm.participants(),
		ParticipantCount: len(rm.members),
		Status:           rm.status,
		BidCount:         rm.bidCount,
		CreatedAt:        rm.createdAt,
		LastActivity:     rm.lastActivity,
	}
	if rm.highest != nil {
		v := *rm.highest
		s.HighestBid = &v
	}
	return s
}
