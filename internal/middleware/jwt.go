package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
    "net/http" // HTTP status codes for responses
    "strings"  // string utilities for prefix checking and trimming

    "github.com/labstack/echo/v4" // Echo framework used for defining middleware and handlers

    "github.com/iliyamo/live-auction/internal/utils" // token verification shared with the websocket gateway
)

// Context keys set by JWTAuth.
const (
    ctxUserID = "user_id"
    ctxRole   = "role"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token and
// injects the token's subject and role claims into the request context.  The
// provided secret must match the one used when issuing tokens.  Handlers read
// the authenticated user through CurrentUserID and the role via
// `c.Get("role")`.
func JWTAuth(secret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            // A valid header starts with "Bearer " followed by the JWT.
            auth := c.Request().Header.Get("Authorization")
            if !strings.HasPrefix(auth, "Bearer ") {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
            }
            raw := strings.TrimPrefix(auth, "Bearer ")

            // ParseAccessToken rejects non-HMAC algorithms, expired tokens
            // and tokens without a subject.
            claims, err := utils.ParseAccessToken(secret, raw)
            if err != nil {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
            }

            c.Set(ctxUserID, claims.UserID)
            c.Set(ctxRole, claims.Role)
            return next(c)
        }
    }
}

// OptionalJWT behaves like JWTAuth when an Authorization header is present
// and lets anonymous requests through otherwise.  Public routes use it so
// rate limiting can still key by user when one is known.
func OptionalJWT(secret string) echo.MiddlewareFunc {
    strict := JWTAuth(secret)
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        guarded := strict(next)
        return func(c echo.Context) error {
            if c.Request().Header.Get("Authorization") == "" {
                return next(c)
            }
            return guarded(c)
        }
    }
}

// CurrentUserID returns the authenticated user id, or "" for anonymous
// requests.
func CurrentUserID(c echo.Context) string {
    if s, ok := c.Get(ctxUserID).(string); ok {
        return s
    }
    return ""
}
