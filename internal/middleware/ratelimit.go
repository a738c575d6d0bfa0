package middleware

import (
    "math"
    "net/http"
    "strconv"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/live-auction/internal/ratelimit"
    "github.com/iliyamo/live-auction/internal/utils"
)

// NewTokenBucket rate limits requests through a Redis token bucket.  The
// bucket key follows cfg.KeyStrategy.  Redis failures let the request
// through.
func NewTokenBucket(limiter *ratelimit.Limiter) echo.MiddlewareFunc {
    if limiter == nil || !limiter.Config().Enabled {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    cfg := limiter.Config()
    log := utils.Component("ratelimit")

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            key := buildRateKey(limiter, cfg.KeyStrategy, c)
            d, err := limiter.Allow(c.Request().Context(), key)
            if err != nil {
                if cfg.Debug {
                    log.WithError(err).WithField("key", key).Warn("redis error, allowing")
                }
                return next(c)
            }

            c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
            c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))

            if !d.Allowed {
                secs := int(math.Ceil(d.RetryAfter.Seconds()))
                if secs < 0 { secs = 0 }
                c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
                if cfg.Debug {
                    log.WithField("key", key).WithField("retry_ms", d.RetryAfter.Milliseconds()).Info("blocked")
                }
                return c.JSON(http.StatusTooManyRequests, map[string]any{
                    "error":       "too_many_requests",
                    "message":     "rate limit exceeded",
                    "retry_after": secs,
                })
            }

            if cfg.Debug {
                c.Response().Header().Set("X-RateLimit-Key", key)
            }
            return next(c)
        }
    }
}

func buildRateKey(limiter *ratelimit.Limiter, strategy string, c echo.Context) string {
    ip := c.RealIP()
    if ip == "" { ip = "unknown" }
    uid := CurrentUserID(c)
    if uid == "" { uid = "anon" }
    route := c.Request().Method + " " + c.Path()

    switch strings.ToLower(strategy) {
    case "ip":
        return limiter.Key("ip", ip)
    case "user":
        return limiter.Key("user", uid)
    case "route":
        return limiter.Key("route", route)
    case "ip_user":
        return limiter.Key("ip", ip, "user", uid)
    case "ip_route":
        return limiter.Key("ip", ip, "route", route)
    case "user_route":
        return limiter.Key("user", uid, "route", route)
    default:
        return limiter.Key("ip", ip, "user", uid, "route", route)
    }
}
