package handler

import (
    "errors"
    "net/http"

    "github.com/labstack/echo/v4"
    "github.com/sirupsen/logrus"

    "github.com/iliyamo/live-auction/internal/biddingerrors"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
    Error     string `json:"error"`               // machine readable kind
    Message   string `json:"message"`             // human readable reason
    Retryable bool   `json:"retryable,omitempty"` // true when resubmitting may succeed
}

// statusFor maps a bidding error onto an HTTP status code.
func statusFor(err error) int {
    switch biddingerrors.KindOf(err) {
    case biddingerrors.KindValidation:
        return http.StatusBadRequest
    case biddingerrors.KindNotFound:
        return http.StatusNotFound
    case biddingerrors.KindContention:
        return http.StatusConflict
    case biddingerrors.KindBusinessRule:
        switch {
        case errors.Is(err, biddingerrors.ErrNotOwner):
            return http.StatusForbidden
        case errors.Is(err, biddingerrors.ErrInvalidTransition), errors.Is(err, biddingerrors.ErrNotEditable),
            errors.Is(err, biddingerrors.ErrAuctionNotActive):
            return http.StatusConflict
        }
        return http.StatusUnprocessableEntity
    }
    return http.StatusInternalServerError
}

// fail writes err as a JSON error response.  Infrastructure failures are
// logged and reported without their cause.
func fail(c echo.Context, err error) error {
    kind := biddingerrors.KindOf(err)
    status := statusFor(err)
    body := errorBody{Error: kind.String(), Message: err.Error(), Retryable: biddingerrors.IsRetryable(err)}
    if kind == biddingerrors.KindInfrastructure {
        log.WithError(err).WithFields(logrus.Fields{
            "method": c.Request().Method,
            "path":   c.Path(),
        }).Error("request failed")
        body.Message = "internal error"
    }
    if body.Retryable {
        c.Response().Header().Set("Retry-After", "1") // contention clears within a lock lease
    }
    return c.JSON(status, body)
}

// badRequest responds 400 with a validation error.
func badRequest(c echo.Context, msg string) error {
    return c.JSON(http.StatusBadRequest, errorBody{Error: biddingerrors.KindValidation.String(), Message: msg})
}
