package handler

import (
    "context"
    "net/http"
    "slices"
    "strconv"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/live-auction/internal/model"
    "github.com/iliyamo/live-auction/internal/queue"
    "github.com/iliyamo/live-auction/internal/realtime"
)

// QueueAdmin is the broker view exposed to operators.  *queue.Manager
// satisfies it.
type QueueAdmin interface {
    State() queue.State
    Stats(ctx context.Context) ([]queue.QueueStats, error)
    Purge(ctx context.Context, queue string) (int, error)
}

// RoomLister reports the websocket rooms of this instance.
type RoomLister interface {
    Rooms() []realtime.RoomSnapshot
    Stats() realtime.Stats
}

// AuditReader reads the audit ledger, newest first.
type AuditReader interface {
    ListAudit(ctx context.Context, auctionID string, limit int) ([]model.AuditRecord, error)
}

// AdminHandler serves the operator endpoints under /v1/admin.
type AdminHandler struct {
    queues QueueAdmin
    rooms  RoomLister
    audit  AuditReader
}

// NewAdminHandler panics if any dependency is nil.
func NewAdminHandler(queues QueueAdmin, rooms RoomLister, audit AuditReader) *AdminHandler {
    if queues == nil || rooms == nil || audit == nil {
        panic("nil dependency passed to NewAdminHandler")
    }
    return &AdminHandler{queues: queues, rooms: rooms, audit: audit}
}

// Queues handles GET /v1/admin/queues.  The broker state is always
// reported; depths are only available while connected.
func (h *AdminHandler) Queues(c echo.Context) error {
    state := h.queues.State()
    stats, err := h.queues.Stats(c.Request().Context())
    if err != nil {
        log.WithError(err).Warn("queue stats unavailable")
        return c.JSON(http.StatusServiceUnavailable, echo.Map{"state": state.String(), "error": "broker unavailable"})
    }
    return c.JSON(http.StatusOK, echo.Map{"state": state.String(), "queues": stats})
}

// PurgeQueue handles DELETE /v1/admin/queues/:name.  Only declared queues
// may be purged.
func (h *AdminHandler) PurgeQueue(c echo.Context) error {
    name := c.Param("name")
    if !slices.Contains(queue.AllQueues, name) {
        return c.JSON(http.StatusNotFound, errorBody{Error: "not_found", Message: "unknown queue " + strconv.Quote(name)})
    }
    n, err := h.queues.Purge(c.Request().Context(), name)
    if err != nil {
        log.WithError(err).WithField("queue", name).Error("purge failed")
        return c.JSON(http.StatusServiceUnavailable, errorBody{Error: "infrastructure", Message: "broker unavailable"})
    }
    log.WithField("queue", name).WithField("purged", n).Warn("queue purged")
    return c.JSON(http.StatusOK, echo.Map{"queue": name, "purged": n})
}

// Rooms handles GET /v1/admin/rooms.
func (h *AdminHandler) Rooms(c echo.Context) error {
    return c.JSON(http.StatusOK, echo.Map{"stats": h.rooms.Stats(), "rooms": h.rooms.Rooms()})
}

// Audit handles GET /v1/admin/audit?auctionId=&limit=.
func (h *AdminHandler) Audit(c echo.Context) error {
    limit, _ := page(c)
    recs, err := h.audit.ListAudit(c.Request().Context(), c.QueryParam("auctionId"), limit)
    if err != nil {
        return fail(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"items": recs})
}
