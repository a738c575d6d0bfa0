package handler

import (
    "encoding/json"
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/live-auction/internal/bidding"
    "github.com/iliyamo/live-auction/internal/middleware"
)

// ListBids handles GET /v1/auctions/:id/bids, best bid first.
func (h *AuctionHandler) ListBids(c echo.Context) error {
    limit, _ := page(c)
    bids, err := h.svc.ListBids(c.Request().Context(), c.Param("id"), limit)
    if err != nil {
        return fail(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"items": bids, "limit": limit})
}

// PlaceBid handles POST /v1/auctions/:id/bids.  Contention is retried a
// few times inside the service before the client sees a retryable 409.
// Room members learn about the bid from the bid processor, not from here.
func (h *AuctionHandler) PlaceBid(c echo.Context) error {
    var body struct {
        Amount json.RawMessage `json:"amount"`
    }
    if err := c.Bind(&body); err != nil || len(body.Amount) == 0 {
        return badRequest(c, "amount is required")
    }
    res, err := h.svc.PlaceBidWithRetry(c.Request().Context(), bidding.PlaceBidRequest{
        AuctionID: c.Param("id"),
        BidderID:  middleware.CurrentUserID(c),
        Amount:    amountText(body.Amount),
    })
    if err != nil {
        return fail(c, err)
    }
    return c.JSON(http.StatusCreated, res)
}
