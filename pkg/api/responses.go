package api

import "github.com/agentmesh/contextrouter/pkg/models"

// RegisterAgentResponse is returned by POST /agents/register (202).
type RegisterAgentResponse struct {
	Status       string              `json:"status"`
	Registration models.Registration `json:"registration"`
}

// RejectedResponse is the body of 403 publish/pull rejections.
type RejectedResponse struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason"`
}

// SessionEventsResponse is returned by the pull-fallback endpoint.
type SessionEventsResponse struct {
	SessionKey string            `json:"sessionKey"`
	Events     []models.Envelope `json:"events"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	UptimeSeconds  int64  `json:"uptimeSeconds"`
	Sessions       int    `json:"sessions"`
	Events         int    `json:"events"`
	ApprovedAgents int    `json:"approvedAgents"`
	PendingAgents  int    `json:"pendingAgents"`
}
