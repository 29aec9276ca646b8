package api

import (
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/agentmesh/contextrouter/pkg/models"
	"github.com/agentmesh/contextrouter/pkg/whitelist"
)

// registerAgentHandler handles POST /agents/register.
// Creates (or refreshes) a pending registration; approval is a separate
// admin step.
func (s *Server) registerAgentHandler(c *echo.Context) error {
	var req RegisterAgentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if req.AgentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "agentId is required")
	}
	if req.CallbackURL == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "callbackUrl is required")
	}
	if req.CallbackSecret != "" && len(req.CallbackSecret) < 8 {
		return echo.NewHTTPError(http.StatusBadRequest, "callbackSecret must be at least 8 characters")
	}

	reg := s.whitelist.Register(whitelist.RegisterInput{
		AgentID:              req.AgentID,
		DisplayName:          req.DisplayName,
		CallbackURL:          req.CallbackURL,
		CallbackSecret:       req.CallbackSecret,
		RequestedSessionKeys: req.RequestedSessionKeys,
	})

	slog.Info("Agent registered", "agent_id", reg.AgentID, "callback_url", reg.CallbackURL)
	return c.JSON(http.StatusAccepted, &RegisterAgentResponse{
		Status:       "pending",
		Registration: reg,
	})
}

// pendingAgentsHandler handles GET /admin/agents/pending.
func (s *Server) pendingAgentsHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, emptyIfNil(s.whitelist.Pending()))
}

// approvedAgentsHandler handles GET /admin/agents/approved.
func (s *Server) approvedAgentsHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, emptyIfNil(s.whitelist.Approved()))
}

// approveAgentHandler handles POST /admin/agents/approve.
// Replaces the agent's session grants with exactly the provided keys.
func (s *Server) approveAgentHandler(c *echo.Context) error {
	var req ApproveAgentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.AgentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "agentId is required")
	}

	reg, err := s.whitelist.Approve(req.AgentID, req.SessionKeys)
	if err != nil {
		return mapDomainError(err)
	}

	slog.Info("Agent approved", "agent_id", reg.AgentID, "session_keys", reg.SessionKeys)
	return c.JSON(http.StatusOK, reg)
}

// rejectAgentHandler handles POST /admin/agents/reject.
func (s *Server) rejectAgentHandler(c *echo.Context) error {
	var req RejectAgentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.AgentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "agentId is required")
	}

	reg, err := s.whitelist.Reject(req.AgentID)
	if err != nil {
		return mapDomainError(err)
	}

	slog.Info("Agent rejected", "agent_id", reg.AgentID)
	return c.JSON(http.StatusOK, reg)
}

func emptyIfNil(regs []models.Registration) []models.Registration {
	if regs == nil {
		return []models.Registration{}
	}
	return regs
}
