package realtime

import (
	"time"

	"github.com/iliyamo/live-auction/internal/model"
)

// Client to server events.
const (
	EventJoinAuction         = "joinAuction"
	EventLeaveAuction        = "leaveAuction"
	EventPlaceBid            = "placeBid"
	EventGetAuctionStatus    = "getAuctionStatus"
	EventGetRoomParticipants = "getRoomParticipants"
	EventStartAuction        = "startAuction"
	EventEndAuction          = "endAuction"
)

// Server to client events.
const (
	EventConnected        = "connected"
	EventJoinedAuction    = "joinedAuction"
	EventLeftAuction      = "leftAuction"
	EventUserJoined       = "userJoined"
	EventUserLeft         = "userLeft"
	EventBidPlaced        = "bidPlaced"
	EventBidConfirmed     = "bidConfirmed"
	EventBidError         = "bidError"
	EventAuctionStatus    = "auctionStatus"
	EventRoomParticipants = "roomParticipants"
	EventAuctionStarted   = "auctionStarted"
	EventAuctionEnded     = "auctionEnded"
	EventAuctionUpdated   = "auctionUpdated"
	EventAuctionDeleted   = "auctionDeleted"
	EventNotification     = "notification"
	EventError            = "error"
)

// BidPlaced is broadcast to a room for each committed bid.
type BidPlaced struct {
	BidID           string    `json:"bidId"`
	AuctionID       string    `json:"auctionId"`
	BidderID        string    `json:"bidderId"`
	Amount          int64     `json:"amount"`
	PreviousHighest *int64    `json:"previousHighest"`
	Timestamp       time.Time `json:"timestamp"`
}

// AuctionStarted is broadcast when an auction opens.
type AuctionStarted struct {
	AuctionID string    `json:"auctionId"`
	StartedBy string    `json:"startedBy,omitempty"`
	StartTime time.Time `json:"startTime"`
}

// AuctionEnded is broadcast when an auction closes.
type AuctionEnded struct {
	AuctionID  string    `json:"auctionId"`
	EndedBy    string    `json:"endedBy,omitempty"`
	WinnerID   *string   `json:"winnerId"`
	WinningBid *int64    `json:"winningBid"`
	EndTime    time.Time `json:"endTime"`
}

// JoinedAuction answers joinAuction.
type JoinedAuction struct {
	Auction    model.Auction     `json:"auction"`
	HighestBid *model.HighestBid `json:"highestBid"`
	Room       RoomSnapshot      `json:"room"`
}

// Presence is sent on userJoined and userLeft.
type Presence struct {
	AuctionID        string `json:"auctionId"`
	UserID           string `json:"userId"`
	ParticipantCount int    `json:"participantCount"`
}

// ErrorPayload is the body of bidError and error frames.
type ErrorPayload struct {
	Event      string    `json:"event,omitempty"`
	AuctionID  string    `json:"auctionId,omitempty"`
	Code       string    `json:"code"`
	Message    string    `json:"message"`
	Retryable  bool      `json:"retryable,omitempty"`
	RetryAfter int64     `json:"retryAfterMs,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// BidKey is the BroadcastOnce key for a bidPlaced frame.  The gateway and
// the bid processor both use it so a room sees each bid once.
func BidKey(bidID string) string { return "bid:" + bidID }

// StartedKey is the BroadcastOnce key for auctionStarted.
func StartedKey(auctionID string) string { return "started:" + auctionID }

// EndedKey is the BroadcastOnce key for auctionEnded.
func EndedKey(auctionID string) string { return "ended:" + auctionID }
