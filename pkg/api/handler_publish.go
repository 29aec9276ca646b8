package api

import (
	"errors"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/agentmesh/contextrouter/pkg/ingest"
	"github.com/agentmesh/contextrouter/pkg/models"
)

// publishHandler handles POST /mcp/events/publish.
// The response is written as soon as the pipeline has classified the event;
// delayed appends and fan-out deliveries continue in the background.
func (s *Server) publishHandler(c *echo.Context) error {
	var env models.Envelope
	if err := c.Bind(&env); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := s.pipeline.Publish(c.Request().Context(), env)
	if err != nil {
		if errors.Is(err, ingest.ErrNotAuthorized) {
			return c.JSON(http.StatusForbidden, &RejectedResponse{
				Accepted: false,
				Reason:   "agent not approved for this session",
			})
		}
		return mapDomainError(err)
	}

	return c.JSON(http.StatusOK, result)
}
