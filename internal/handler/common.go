package handler // handler defines the HTTP handlers of the auction API

import (
    "bytes"         // bytes trims raw JSON values
    "encoding/json" // json decodes amounts that arrive as numbers or strings
    "strconv"       // strconv parses paging parameters

    "github.com/labstack/echo/v4" // echo defines request context types

    "github.com/iliyamo/live-auction/internal/utils" // utils provides the component logger
)

const (
    defaultPageSize = 50  // page size when ?limit is absent
    maxPageSize     = 200 // upper bound accepted for ?limit
)

var log = utils.Component("http")

// page reads ?limit and ?offset, clamping them to sane bounds.
func page(c echo.Context) (limit, offset int) {
    limit = defaultPageSize
    if n, err := strconv.Atoi(c.QueryParam("limit")); err == nil && n > 0 {
        limit = n
    }
    if limit > maxPageSize {
        limit = maxPageSize
    }
    if n, err := strconv.Atoi(c.QueryParam("offset")); err == nil && n > 0 {
        offset = n
    }
    return limit, offset
}

// amountText accepts both "150" and 150 so the bidding core can reject
// fractional or oversized input itself.
func amountText(raw json.RawMessage) string {
    raw = bytes.TrimSpace(raw)
    if len(raw) > 0 && raw[0] == '"' {
        var s string
        if err := json.Unmarshal(raw, &s); err == nil {
            return s
        }
    }
    return string(raw)
}
