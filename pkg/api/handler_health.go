package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/agentmesh/contextrouter/pkg/version"
)

// healthHandler handles GET /health.
// Liveness plus small in-memory stats; degrades when the audit sink is
// unreachable.
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	sessions, events := s.store.Stats()
	approved, pending := s.whitelist.Counts()

	resp := &HealthResponse{
		Status:         "ok",
		Version:        version.GitCommit,
		UptimeSeconds:  int64(time.Since(s.startedAt).Seconds()),
		Sessions:       sessions,
		Events:         events,
		ApprovedAgents: approved,
		PendingAgents:  pending,
	}

	httpStatus := http.StatusOK
	if err := s.audit.Ping(reqCtx); err != nil {
		resp.Status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	return c.JSON(httpStatus, resp)
}
