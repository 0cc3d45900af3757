package api

import (
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/chatcoach/coachd/pkg/coacherr"
)

// mapError maps classified pipeline errors to HTTP error responses. Provider
// and parse failures stay opaque 500s; only faults the caller can act on get
// a distinct status.
func mapError(err error) *echo.HTTPError {
	switch coacherr.KindOf(err) {
	case coacherr.KindInvalidRequest:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case coacherr.KindImageFetch:
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "failed to fetch or decode image")
	case coacherr.KindQuotaExceeded:
		return echo.NewHTTPError(http.StatusTooManyRequests, "request quota exceeded")
	case coacherr.KindTimeout:
		return echo.NewHTTPError(http.StatusGatewayTimeout, "request timed out")
	}

	slog.Error("Unexpected pipeline error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
