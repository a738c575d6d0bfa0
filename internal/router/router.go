package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/live-auction/internal/handler"    // import the handlers that implement the API
	"github.com/iliyamo/live-auction/internal/middleware" // import middleware for JWT authentication, role enforcement, caching and rate limiting
)

// Deps carries everything the route table needs.  Cache and RateLimit are
// ready-made middlewares so the router does not need to know whether Redis
// is available; both are pass-through when it is not.
type Deps struct {
	Auctions  *handler.AuctionHandler
	Admin     *handler.AdminHandler
	Websocket echo.HandlerFunc
	Probes    map[string]handler.Probe
	JWTSecret string
	Cache     echo.MiddlewareFunc
	RateLimit echo.MiddlewareFunc
}

// RegisterRoutes registers the complete route table on e.
func RegisterRoutes(e *echo.Echo, d Deps) {
	if d.Cache == nil {
		d.Cache = passThrough
	}
	if d.RateLimit == nil {
		d.RateLimit = passThrough
	}
	// Liveness and readiness probes for load balancers.
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(d.Probes))

	RegisterPublic(e, d)
	RegisterAuctions(e, d)
	RegisterAdmin(e, d)

	// The websocket gateway authenticates on its own because browsers cannot
	// set headers on the upgrade request; the token may come as ?token=.
	e.GET("/ws", d.Websocket)
}

// RegisterPublic registers the read endpoints.  They do not require a
// token, but a valid one is still decoded so rate limiting and logs can
// attribute the request.  Only the listing is response-cached; the status
// view carries the live highest bid.
func RegisterPublic(e *echo.Echo, d Deps) {
	g := e.Group("/v1", middleware.OptionalJWT(d.JWTSecret))
	g.GET("/auctions", d.Auctions.List, d.Cache)
	g.GET("/auctions/:id", d.Auctions.Get)
	g.GET("/auctions/:id/bids", d.Auctions.ListBids)
}

// RegisterAuctions registers the authenticated auction endpoints.  Ownership
// is checked by the bidding service, not here, so any authenticated user
// may call them.
func RegisterAuctions(e *echo.Echo, d Deps) {
	g := e.Group("/v1", middleware.JWTAuth(d.JWTSecret))
	g.POST("/auctions", d.Auctions.Create)
	g.PATCH("/auctions/:id", d.Auctions.Update)
	g.DELETE("/auctions/:id", d.Auctions.Delete)
	g.POST("/auctions/:id/start", d.Auctions.Start)
	g.POST("/auctions/:id/end", d.Auctions.End)
	// Bids are rate limited per user on top of the serializer's own lock.
	g.POST("/auctions/:id/bids", d.Auctions.PlaceBid, d.RateLimit)
}

// RegisterAdmin registers operator endpoints.  All of them require the
// admin role.
func RegisterAdmin(e *echo.Echo, d Deps) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(d.JWTSecret),
		middleware.RequireRole(middleware.RoleAdmin),
	)
	g.GET("/queues", d.Admin.Queues)
	g.DELETE("/queues/:name", d.Admin.PurgeQueue)
	g.GET("/rooms", d.Admin.Rooms)
	g.GET("/audit", d.Admin.Audit)
}

func passThrough(next echo.HandlerFunc) echo.HandlerFunc { return next }
