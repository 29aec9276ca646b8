package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// sessionEventsHandler handles GET /mcp/sessions/:sessionKey/events.
// Pull fallback for agents that miss callback deliveries; requires the
// calling agent to be approved for the session.
func (s *Server) sessionEventsHandler(c *echo.Context) error {
	sessionKey := c.Param("sessionKey")
	if sessionKey == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "sessionKey is required")
	}

	agentID := c.QueryParam("agentId")
	if agentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "agentId query parameter is required")
	}

	if !s.whitelist.CanAccess(agentID, sessionKey) {
		return c.JSON(http.StatusForbidden, &RejectedResponse{
			Accepted: false,
			Reason:   "agent not approved for this session",
		})
	}

	return c.JSON(http.StatusOK, &SessionEventsResponse{
		SessionKey: sessionKey,
		Events:     s.store.List(sessionKey),
	})
}
