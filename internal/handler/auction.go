package handler

import (
    "context"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/live-auction/internal/bidding"
    "github.com/iliyamo/live-auction/internal/middleware"
    "github.com/iliyamo/live-auction/internal/model"
    "github.com/iliyamo/live-auction/internal/repository"
)

// AuctionService is the part of the bidding core the HTTP surface uses.
// *bidding.Service satisfies it.
type AuctionService interface {
    CreateAuction(ctx context.Context, req bidding.CreateAuctionRequest) (model.Auction, error)
    UpdateAuction(ctx context.Context, id, actor string, req bidding.UpdateAuctionRequest) (model.Auction, error)
    DeleteAuction(ctx context.Context, id, actor string) error
    StartAuction(ctx context.Context, id, actor string) (model.Auction, error)
    EndAuction(ctx context.Context, id, actor string) (model.Auction, error)
    ListAuctions(ctx context.Context, f repository.AuctionFilter) ([]model.Auction, error)
    AuctionStatus(ctx context.Context, id string) (bidding.StatusView, error)
    ListBids(ctx context.Context, id string, limit int) ([]model.Bid, error)
    PlaceBidWithRetry(ctx context.Context, req bidding.PlaceBidRequest) (bidding.BidResult, error)
}

// AuctionHandler serves the /v1/auctions resource and its bids.
type AuctionHandler struct {
    svc AuctionService
}

// NewAuctionHandler panics when svc is nil.
func NewAuctionHandler(svc AuctionService) *AuctionHandler {
    if svc == nil {
        panic("nil service passed to NewAuctionHandler")
    }
    return &AuctionHandler{svc: svc}
}

type createAuctionBody struct {
    Title       string     `json:"title"`
    CarID       string     `json:"carId"`
    StartTime   *time.Time `json:"startTime"`
    EndTime     time.Time  `json:"endTime"`
    StartingBid int64      `json:"startingBid"`
}

type updateAuctionBody struct {
    Title       *string    `json:"title"`
    CarID       *string    `json:"carId"`
    StartTime   *time.Time `json:"startTime"`
    EndTime     *time.Time `json:"endTime"`
    StartingBid *int64     `json:"startingBid"`
}

// Create handles POST /v1/auctions.  The caller becomes the owner.
func (h *AuctionHandler) Create(c echo.Context) error {
    var body createAuctionBody
    if err := c.Bind(&body); err != nil {
        return badRequest(c, "invalid request body")
    }
    req := bidding.CreateAuctionRequest{
        OwnerID:     middleware.CurrentUserID(c),
        Title:       body.Title,
        CarID:       body.CarID,
        EndTime:     body.EndTime,
        StartingBid: body.StartingBid,
    }
    if body.StartTime != nil {
        req.StartTime = *body.StartTime
    }
    a, err := h.svc.CreateAuction(c.Request().Context(), req)
    if err != nil {
        return fail(c, err)
    }
    return c.JSON(http.StatusCreated, a)
}

// List handles GET /v1/auctions?status=&limit=&offset=.
func (h *AuctionHandler) List(c echo.Context) error {
    limit, offset := page(c)
    f := repository.AuctionFilter{
        Status: model.AuctionStatus(strings.ToUpper(strings.TrimSpace(c.QueryParam("status")))),
        Limit:  limit,
        Offset: offset,
    }
    items, err := h.svc.ListAuctions(c.Request().Context(), f)
    if err != nil {
        return fail(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"items": items, "limit": limit, "offset": offset})
}

// Get handles GET /v1/auctions/:id and returns the full status view,
// including the highest bid.
func (h *AuctionHandler) Get(c echo.Context) error {
    view, err := h.svc.AuctionStatus(c.Request().Context(), c.Param("id"))
    if err != nil {
        return fail(c, err)
    }
    return c.JSON(http.StatusOK, view)
}

// Update handles PATCH /v1/auctions/:id.  Only the owner may change a
// pending auction; absent fields are left alone.
func (h *AuctionHandler) Update(c echo.Context) error {
    var body updateAuctionBody
    if err := c.Bind(&body); err != nil {
        return badRequest(c, "invalid request body")
    }
    a, err := h.svc.UpdateAuction(c.Request().Context(), c.Param("id"), middleware.CurrentUserID(c), bidding.UpdateAuctionRequest{
        Title:       body.Title,
        CarID:       body.CarID,
        StartTime:   body.StartTime,
        EndTime:     body.EndTime,
        StartingBid: body.StartingBid,
    })
    if err != nil {
        return fail(c, err)
    }
    return c.JSON(http.StatusOK, a)
}

// Delete handles DELETE /v1/auctions/:id.
func (h *AuctionHandler) Delete(c echo.Context) error {
    if err := h.svc.DeleteAuction(c.Request().Context(), c.Param("id"), middleware.CurrentUserID(c)); err != nil {
        return fail(c, err)
    }
    return c.NoContent(http.StatusNoContent)
}

// Start handles POST /v1/auctions/:id/start.
func (h *AuctionHandler) Start(c echo.Context) error {
    a, err := h.svc.StartAuction(c.Request().Context(), c.Param("id"), middleware.CurrentUserID(c))
    if err != nil {
        return fail(c, err)
    }
    return c.JSON(http.StatusOK, a)
}

// End handles POST /v1/auctions/:id/end.
func (h *AuctionHandler) End(c echo.Context) error {
    a, err := h.svc.EndAuction(c.Request().Context(), c.Param("id"), middleware.CurrentUserID(c))
    if err != nil {
        return fail(c, err)
    }
    return c.JSON(http.StatusOK, a)
}
