package handler

import (
    "context"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"
)

// Health is a liveness probe used by load balancers.  It never touches a
// dependency and always answers "ok".
func Health(c echo.Context) error {
    return c.String(http.StatusOK, "ok")
}

// Probe reports whether one dependency is usable.
type Probe func(ctx context.Context) error

// Ready returns a readiness handler that runs every probe with a short
// timeout.  The response lists each dependency as "ok" or its error, and the
// status is 503 when any probe fails.
func Ready(probes map[string]Probe) echo.HandlerFunc {
    return func(c echo.Context) error {
        ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
        defer cancel()
        status := http.StatusOK
        out := make(map[string]string, len(probes))
        for name, probe := range probes {
            if err := probe(ctx); err != nil {
                out[name] = err.Error()
                status = http.StatusServiceUnavailable
                continue
            }
            out[name] = "ok"
        }
        return c.JSON(status, out)
    }
}
