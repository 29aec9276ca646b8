package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// reportLimit bounds the recent-slice reporting endpoints.
const reportLimit = 100

// metricsHandler handles GET /admin/api/metrics.
func (s *Server) metricsHandler(c *echo.Context) error {
	m, err := s.audit.GetMetrics(c.Request().Context())
	if err != nil {
		return mapDomainError(err)
	}
	return c.JSON(http.StatusOK, m)
}

// sessionRollupHandler handles GET /admin/api/sessions.
func (s *Server) sessionRollupHandler(c *echo.Context) error {
	rollup, err := s.audit.ListSessions(c.Request().Context())
	if err != nil {
		return mapDomainError(err)
	}
	return c.JSON(http.StatusOK, rollup)
}

// loopDecisionsHandler handles GET /admin/api/loops.
func (s *Server) loopDecisionsHandler(c *echo.Context) error {
	decisions, err := s.audit.RecentDecisions(c.Request().Context(), reportLimit)
	if err != nil {
		return mapDomainError(err)
	}
	return c.JSON(http.StatusOK, decisions)
}

// deliveriesHandler handles GET /admin/api/deliveries.
func (s *Server) deliveriesHandler(c *echo.Context) error {
	deliveries, err := s.audit.RecentDeliveries(c.Request().Context(), reportLimit)
	if err != nil {
		return mapDomainError(err)
	}
	return c.JSON(http.StatusOK, deliveries)
}
