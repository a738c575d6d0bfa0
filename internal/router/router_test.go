package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/live-auction/internal/bidding"
	"github.com/iliyamo/live-auction/internal/config"
	"github.com/iliyamo/live-auction/internal/handler"
	"github.com/iliyamo/live-auction/internal/lock"
	"github.com/iliyamo/live-auction/internal/middleware"
	"github.com/iliyamo/live-auction/internal/queue"
	"github.com/iliyamo/live-auction/internal/realtime"
	"github.com/iliyamo/live-auction/internal/repository"
	"github.com/iliyamo/live-auction/internal/utils"
)

const secret = "router-secret"

type idleQueues struct{}

func (idleQueues) State() queue.State                                { return queue.StateConnected }
func (idleQueues) Stats(context.Context) ([]queue.QueueStats, error) { return nil, nil }
func (idleQueues) Purge(context.Context, string) (int, error)        { return 0, nil }

func newServer(t *testing.T) *echo.Echo {
	t.Helper()
	store := repository.NewMemoryStore()
	svc := bidding.NewService(store, lock.NewLocalLocker(), nil, nil, config.BiddingConfig{LockLease: time.Second, StoreTimeout: time.Second})
	e := echo.New()
	RegisterRoutes(e, Deps{
		Auctions:  handler.NewAuctionHandler(svc),
		Admin:     handler.NewAdminHandler(idleQueues{}, realtime.NewRegistry(nil), store),
		Websocket: func(c echo.Context) error { return c.NoContent(http.StatusSwitchingProtocols) },
		JWTSecret: secret,
		RateLimit: func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				c.Response().Header().Set("X-Limited", "yes")
				return next(c)
			}
		},
	})
	return e
}

func call(t *testing.T, e *echo.Echo, method, path, role, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if role != "" {
		tok, err := utils.NewAccessToken(secret, "u-"+role, role, time.Hour)
		require.NoError(t, err)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok.Token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRouteProtection(t *testing.T) {
	e := newServer(t)

	assert.Equal(t, http.StatusOK, call(t, e, http.MethodGet, "/healthz", "", "").Code)
	assert.Equal(t, http.StatusOK, call(t, e, http.MethodGet, "/readyz", "", "").Code)
	assert.Equal(t, http.StatusOK, call(t, e, http.MethodGet, "/v1/auctions", "", "").Code)
	assert.Equal(t, http.StatusSwitchingProtocols, call(t, e, http.MethodGet, "/ws", "", "").Code)

	assert.Equal(t, http.StatusUnauthorized, call(t, e, http.MethodPost, "/v1/auctions", "", `{"title":"x"}`).Code)
	assert.Equal(t, http.StatusUnauthorized, call(t, e, http.MethodGet, "/v1/admin/rooms", "", "").Code)
	assert.Equal(t, http.StatusForbidden, call(t, e, http.MethodGet, "/v1/admin/rooms", middleware.RoleUser, "").Code)
	assert.Equal(t, http.StatusOK, call(t, e, http.MethodGet, "/v1/admin/rooms", middleware.RoleAdmin, "").Code)
	assert.Equal(t, http.StatusOK, call(t, e, http.MethodGet, "/v1/admin/queues", middleware.RoleAdmin, "").Code)
}

func TestBidsAreRateLimited(t *testing.T) {
	e := newServer(t)
	rec := call(t, e, http.MethodPost, "/v1/auctions/"+utils.NewID()+"/bids", middleware.RoleUser, `{"amount":10}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "yes", rec.Header().Get("X-Limited"))

	rec = call(t, e, http.MethodPost, "/v1/auctions", middleware.RoleUser, `{"title":"x"}`)
	assert.Empty(t, rec.Header().Get("X-Limited"))
}
