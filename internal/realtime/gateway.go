package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/websocket"

	"github.com/iliyamo/live-auction/internal/bidding"
	"github.com/iliyamo/live-auction/internal/biddingerrors"
	"github.com/iliyamo/live-auction/internal/model"
	"github.com/iliyamo/live-auction/internal/ratelimit"
	"github.com/iliyamo/live-auction/internal/utils"
)

// AuctionService is what the gateway needs from the bidding core.
// *bidding.Service implements it.
type AuctionService interface {
	GetAuction(ctx context.Context, id string) (model.Auction, error)
	AuctionStatus(ctx context.Context, id string) (bidding.StatusView, error)
	PlaceBidWithRetry(ctx context.Context, req bidding.PlaceBidRequest) (bidding.BidResult, error)
	StartAuction(ctx context.Context, id, actor string) (model.Auction, error)
	EndAuction(ctx context.Context, id, actor string) (model.Auction, error)
}

const (
	writeTimeout   = 10 * time.Second
	maxFrameBytes  = 64 << 10
	requestTimeout = 15 * time.Second
)

// Gateway upgrades authenticated HTTP requests to websocket sessions and
// dispatches their events.
type Gateway struct {
	svc      AuctionService
	hub      *Hub
	rooms    *Registry
	throttle *ratelimit.Limiter
	secret   string
	log      *logrus.Entry
}

// NewGateway builds a gateway.  throttle may be nil to disable the per-user
// bid throttle.
func NewGateway(svc AuctionService, hub *Hub, throttle *ratelimit.Limiter, jwtSecret string) *Gateway {
	return &Gateway{
		svc:      svc,
		hub:      hub,
		rooms:    hub.Rooms(),
		throttle: throttle,
		secret:   jwtSecret,
		log:      utils.Component("ws"),
	}
}

// Handle is the echo handler for GET /ws.  The access token is taken from
// the token query parameter or a Bearer Authorization header and verified
// before the upgrade.
func (g *Gateway) Handle(c echo.Context) error {
	claims, err := g.authenticate(c.Request())
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid or missing token"})
	}
	srv := websocket.Server{
		// browsers and native clients both connect; the token is the gate
		Handshake: func(*websocket.Config, *http.Request) error { return nil },
		Handler:   func(ws *websocket.Conn) { g.serve(ws, claims) },
	}
	srv.ServeHTTP(c.Response(), c.Request())
	return nil
}

func (g *Gateway) authenticate(r *http.Request) (utils.Claims, error) {
	raw := r.URL.Query().Get("token")
	if raw == "" {
		h := r.Header.Get("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			return utils.Claims{}, utils.ErrInvalidToken
		}
		raw = strings.TrimPrefix(h, "Bearer ")
	}
	return utils.ParseAccessToken(g.secret, raw)
}

// inbound is a client frame before its data is decoded.
type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type auctionRef struct {
	AuctionID string `json:"auctionId"`
}

type placeBidData struct {
	AuctionID string          `json:"auctionId"`
	Amount    json.RawMessage `json:"amount"`
}

func (g *Gateway) serve(ws *websocket.Conn, claims utils.Claims) {
	ws.MaxPayloadBytes = maxFrameBytes
	conn := newWSConn(ws, claims.UserID)
	log := g.log.WithFields(logrus.Fields{"conn_id": conn.ID(), "user_id": conn.UserID()})

	ctx, cancel := context.WithCancel(ws.Request().Context())
	defer cancel()

	g.hub.Register(conn)
	defer g.disconnect(conn)
	log.Debug("connected")

	_ = conn.Send(Frame{Event: EventConnected, Data: map[string]string{
		"connectionId": conn.ID(),
		"userId":       conn.UserID(),
	}})

	for {
		var in inbound
		err := websocket.JSON.Receive(ws, &in)
		if err != nil {
			var syn *json.SyntaxError
			var typ *json.UnmarshalTypeError
			if errors.As(err, &syn) || errors.As(err, &typ) {
				_ = conn.Send(Frame{Event: EventError, Data: ErrorPayload{Code: "validation", Message: "malformed frame", Timestamp: time.Now().UTC()}})
				continue
			}
			if !errors.Is(err, io.EOF) {
				log.WithError(err).Debug("read failed")
			}
			return
		}
		g.dispatch(ctx, conn, in)
	}
}

func (g *Gateway) disconnect(c Conn) {
	ctx := context.Background()
	for _, auctionID := range g.rooms.RemoveConnection(ctx, c.ID()) {
		g.hub.Broadcast(ctx, auctionID, EventUserLeft, Presence{
			AuctionID:        auctionID,
			UserID:           c.UserID(),
			ParticipantCount: len(g.rooms.ConnectionIDs(auctionID)),
		})
	}
	g.hub.Unregister(c)
	g.log.WithFields(logrus.Fields{"conn_id": c.ID(), "user_id": c.UserID()}).Debug("disconnected")
}

// dispatch handles one client event.  Frames from one connection are
// processed in order.
func (g *Gateway) dispatch(ctx context.Context, c Conn, in inbound) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	switch in.Event {
	case EventJoinAuction:
		if ref, ok := g.ref(c, in); ok {
			g.join(ctx, c, ref.AuctionID)
		}
	case EventLeaveAuction:
		if ref, ok := g.ref(c, in); ok {
			g.leave(ctx, c, ref.AuctionID)
		}
	case EventPlaceBid:
		var p placeBidData
		if err := json.Unmarshal(in.Data, &p); err != nil || p.AuctionID == "" {
			g.reject(c, EventBidError, in.Event, p.AuctionID, biddingerrors.ErrInvalidID)
			return
		}
		g.placeBid(ctx, c, p)
	case EventGetAuctionStatus:
		if ref, ok := g.ref(c, in); ok {
			g.status(ctx, c, ref.AuctionID)
		}
	case EventGetRoomParticipants:
		if ref, ok := g.ref(c, in); ok {
			_ = c.Send(Frame{Event: EventRoomParticipants, Data: map[string]any{
				"auctionId":    ref.AuctionID,
				"participants": g.rooms.Participants(ref.AuctionID),
			}})
		}
	case EventStartAuction:
		if ref, ok := g.ref(c, in); ok {
			g.start(ctx, c, ref.AuctionID)
		}
	case EventEndAuction:
		if ref, ok := g.ref(c, in); ok {
			g.end(ctx, c, ref.AuctionID)
		}
	default:
		_ = c.Send(Frame{Event: EventError, Data: ErrorPayload{Event: in.Event, Code: "validation", Message: "unknown event", Timestamp: time.Now().UTC()}})
	}
}

func (g *Gateway) ref(c Conn, in inbound) (auctionRef, bool) {
	var ref auctionRef
	if err := json.Unmarshal(in.Data, &ref); err != nil || ref.AuctionID == "" {
		g.reject(c, EventError, in.Event, "", biddingerrors.ErrInvalidID)
		return ref, false
	}
	return ref, true
}

func (g *Gateway) join(ctx context.Context, c Conn, auctionID string) {
	view, err := g.svc.AuctionStatus(ctx, auctionID)
	if err != nil {
		g.reject(c, EventError, EventJoinAuction, auctionID, err)
		return
	}
	g.rooms.Join(ctx, c.ID(), c.UserID(), auctionID)
	g.rooms.Seed(ctx, auctionID, view.Auction.Status, view.HighestBid, view.BidCount)
	snap, _ := g.rooms.Room(auctionID)

	_ = c.Send(Frame{Event: EventJoinedAuction, Data: JoinedAuction{
		Auction:    view.Auction,
		HighestBid: view.HighestBid,
		Room:       snap,
	}})
	g.hub.Broadcast(ctx, auctionID, EventUserJoined, Presence{
		AuctionID:        auctionID,
		UserID:           c.UserID(),
		ParticipantCount: snap.ParticipantCount,
	})
}

func (g *Gateway) leave(ctx context.Context, c Conn, auctionID string) {
	_, wasMember := g.rooms.Leave(ctx, c.ID(), auctionID)
	_ = c.Send(Frame{Event: EventLeftAuction, Data: auctionRef{AuctionID: auctionID}})
	if !wasMember {
		return
	}
	g.hub.Broadcast(ctx, auctionID, EventUserLeft, Presence{
		AuctionID:        auctionID,
		UserID:           c.UserID(),
		ParticipantCount: len(g.rooms.ConnectionIDs(auctionID)),
	})
}

func (g *Gateway) placeBid(ctx context.Context, c Conn, p placeBidData) {
	if g.throttle != nil {
		d, err := g.throttle.Allow(ctx, g.throttle.Key(c.UserID(), "placeBid"))
		if err != nil {
			g.log.WithError(err).Warn("bid throttle unavailable, allowing")
		}
		if !d.Allowed {
			_ = c.Send(Frame{Event: EventBidError, Data: ErrorPayload{
				Event:      EventPlaceBid,
				AuctionID:  p.AuctionID,
				Code:       "rate_limited",
				Message:    "too many bids, slow down",
				Retryable:  true,
				RetryAfter: d.RetryAfter.Milliseconds(),
				Timestamp:  time.Now().UTC(),
			}})
			return
		}
	}

	res, err := g.svc.PlaceBidWithRetry(ctx, bidding.PlaceBidRequest{
		AuctionID: p.AuctionID,
		BidderID:  c.UserID(),
		Amount:    rawAmount(p.Amount),
	})
	if err != nil {
		g.reject(c, EventBidError, EventPlaceBid, p.AuctionID, err)
		return
	}

	_ = c.Send(Frame{Event: EventBidConfirmed, Data: res})
	g.rooms.SetHighestBid(ctx, p.AuctionID, res.Bid.Amount, res.Bid.BidderID)
	g.hub.BroadcastOnce(ctx, p.AuctionID, EventBidPlaced, BidKey(res.Bid.ID), BidPlaced{
		BidID:           res.Bid.ID,
		AuctionID:       res.Bid.AuctionID,
		BidderID:        res.Bid.BidderID,
		Amount:          res.Bid.Amount,
		PreviousHighest: res.PreviousHighest,
		Timestamp:       res.Bid.CreatedAt,
	})
}

func (g *Gateway) status(ctx context.Context, c Conn, auctionID string) {
	view, err := g.svc.AuctionStatus(ctx, auctionID)
	if err != nil {
		g.reject(c, EventError, EventGetAuctionStatus, auctionID, err)
		return
	}
	_ = c.Send(Frame{Event: EventAuctionStatus, Data: map[string]any{
		"auction":          view.Auction,
		"highestBid":       view.HighestBid,
		"bidCount":         view.BidCount,
		"bidders":          view.Participants,
		"participantCount": len(g.rooms.ConnectionIDs(auctionID)),
	}})
}

func (g *Gateway) start(ctx context.Context, c Conn, auctionID string) {
	a, err := g.svc.StartAuction(ctx, auctionID, c.UserID())
	if err != nil {
		g.reject(c, EventError, EventStartAuction, auctionID, err)
		return
	}
	g.rooms.SetStatus(ctx, a.ID, a.Status)
	g.hub.BroadcastOnce(ctx, a.ID, EventAuctionStarted, StartedKey(a.ID), AuctionStarted{
		AuctionID: a.ID,
		StartedBy: c.UserID(),
		StartTime: a.StartTime,
	})
}

func (g *Gateway) end(ctx context.Context, c Conn, auctionID string) {
	a, err := g.svc.EndAuction(ctx, auctionID, c.UserID())
	if err != nil {
		g.reject(c, EventError, EventEndAuction, auctionID, err)
		return
	}
	g.rooms.SetStatus(ctx, a.ID, a.Status)
	g.hub.BroadcastOnce(ctx, a.ID, EventAuctionEnded, EndedKey(a.ID), AuctionEnded{
		AuctionID:  a.ID,
		EndedBy:    c.UserID(),
		WinnerID:   a.WinnerID,
		WinningBid: a.CurrentBid,
		EndTime:    a.EndTime,
	})
}

// reject sends a typed error frame.  Infrastructure failures are logged and
// reported without their cause.
func (g *Gateway) reject(c Conn, frame, event, auctionID string, err error) {
	kind := biddingerrors.KindOf(err)
	p := ErrorPayload{
		Event:     event,
		AuctionID: auctionID,
		Code:      kind.String(),
		Message:   err.Error(),
		Retryable: biddingerrors.IsRetryable(err),
		Timestamp: time.Now().UTC(),
	}
	if kind == biddingerrors.KindInfrastructure {
		g.log.WithError(err).WithFields(logrus.Fields{"event": event, "auction_id": auctionID}).Error("websocket request failed")
		p.Message = "internal error"
	}
	_ = c.Send(Frame{Event: frame, Data: p})
}

// rawAmount accepts both "150" and 150 as the bid amount.
func rawAmount(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}

// wsConn serializes writes to one websocket.
type wsConn struct {
	id     string
	userID string
	ws     *websocket.Conn
	mu     sync.Mutex
}

func newWSConn(ws *websocket.Conn, userID string) *wsConn {
	return &wsConn{id: utils.NewID(), userID: userID, ws: ws}
}

func (c *wsConn) ID() string     { return c.id }
func (c *wsConn) UserID() string { return c.userID }

func (c *wsConn) Send(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return websocket.JSON.Send(c.ws, f)
}
