package api

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/chatcoach/coachd/pkg/models"
)

// SessionEventsResponse lists a session partition's cache events in append
// order.
type SessionEventsResponse struct {
	SessionID string               `json:"session_id"`
	Scene     int                  `json:"scene"`
	Events    []*models.CacheEvent `json:"events"`
}

// sessionEventsHandler handles GET /api/v1/sessions/:id/events.
func (s *Server) sessionEventsHandler(c *echo.Context) error {
	sessionID := c.Param("id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	}
	if s.events == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "event listing is not available on this backend")
	}

	scene := 0
	if v := c.QueryParam("scene"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid scene: must be a non-negative integer")
		}
		scene = n
	}

	events, err := s.events.Events(c.Request().Context(), sessionID, scene)
	if err != nil {
		return mapError(err)
	}
	if events == nil {
		events = []*models.CacheEvent{}
	}

	return c.JSON(http.StatusOK, &SessionEventsResponse{
		SessionID: sessionID,
		Scene:     scene,
		Events:    events,
	})
}
