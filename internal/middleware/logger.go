package middleware

import (
    "time"

    "github.com/labstack/echo/v4"
    "github.com/sirupsen/logrus"

    "github.com/iliyamo/live-auction/internal/utils"
)

// RequestLogger logs one structured line per request after it completes.
func RequestLogger() echo.MiddlewareFunc {
    log := utils.Component("http")
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            start := time.Now()
            err := next(c)
            if err != nil {
                // let Echo's error handler set the status before we read it
                c.Error(err)
            }
            res := c.Response()
            entry := log.WithFields(logrus.Fields{
                "method":     c.Request().Method,
                "path":       c.Path(),
                "status":     res.Status,
                "bytes":      res.Size,
                "latency_ms": time.Since(start).Milliseconds(),
                "ip":         c.RealIP(),
            })
            if uid := CurrentUserID(c); uid != "" {
                entry = entry.WithField("user_id", uid)
            }
            switch {
            case res.Status >= 500:
                entry.WithError(err).Error("request failed")
            case res.Status >= 400:
                entry.Warn("request rejected")
            default:
                entry.Info("request")
            }
            return nil
        }
    }
}
