package router // package router registers the HTTP routes of the registry API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/nft-ticket-registry/internal/handler"
	"github.com/iliyamo/nft-ticket-registry/internal/middleware"
	"github.com/iliyamo/nft-ticket-registry/internal/utils"
)

// RegisterRoutes registers routes that need no authentication: the health
// check only.
func RegisterRoutes(e *echo.Echo, health echo.HandlerFunc) {
	e.GET("/healthz", health)
}

// RegisterVerify exposes the gate scan endpoint.  It is public; limit is the
// rate limiter built from RateLimitConfig.  It is never cached.
func RegisterVerify(e *echo.Echo, v *handler.VerifyHandler, limit echo.MiddlewareFunc) {
	e.POST("/v1/verify", v.Verify, limit)
}

// RegisterTickets registers the registry endpoints.  Reads go through the
// response cache; writes need an issuer token.
func RegisterTickets(e *echo.Echo, t *handler.TicketHandler, jwtSecret string, cache echo.MiddlewareFunc) {
	g := e.Group("/v1/tickets", middleware.JWTAuth(jwtSecret), middleware.RequireRole(utils.RoleIssuer))
	g.POST("", t.Create)
	g.PATCH("/:unit/status", t.UpdateStatus)
	g.GET("", t.List, cache)
	g.GET("/:unit", t.Get, cache)
}
