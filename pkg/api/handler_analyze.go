package api

import (
	"context"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/chatcoach/coachd/pkg/models"
)

// AnalyzeResponse is the envelope for POST /api/v1/analyze.
type AnalyzeResponse struct {
	Success          bool                    `json:"success"`
	Message          string                  `json:"message,omitempty"`
	Results          []models.ItemResult     `json:"results"`
	SuggestedReplies []models.ReplyCandidate `json:"suggested_replies,omitempty"`
}

// analyzeHandler handles POST /api/v1/analyze.
func (s *Server) analyzeHandler(c *echo.Context) error {
	var req models.AnalyzeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.SessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id is required")
	}
	if req.UserID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}

	reqCtx := c.Request().Context()
	if s.cfg.Timeouts.Request > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(reqCtx, s.cfg.Timeouts.Request)
		defer cancel()
	}

	result, err := s.dispatcher.Dispatch(reqCtx, &req)
	if err != nil {
		return mapError(err)
	}

	return c.JSON(http.StatusOK, &AnalyzeResponse{
		Success:          true,
		Results:          result.Items,
		SuggestedReplies: result.Replies,
	})
}
