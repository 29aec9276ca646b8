package api

// RegisterAgentRequest is the body of POST /agents/register.
type RegisterAgentRequest struct {
	AgentID              string   `json:"agentId"`
	DisplayName          string   `json:"displayName"`
	CallbackURL          string   `json:"callbackUrl"`
	CallbackSecret       string   `json:"callbackSecret"`
	RequestedSessionKeys []string `json:"requestedSessionKeys"`
}

// ApproveAgentRequest is the body of POST /admin/agents/approve.
type ApproveAgentRequest struct {
	AgentID     string   `json:"agentId"`
	SessionKeys []string `json:"sessionKeys"`
}

// RejectAgentRequest is the body of POST /admin/agents/reject.
type RejectAgentRequest struct {
	AgentID string `json:"agentId"`
}

// AdminLoginRequest is the body of POST /admin/login.
type AdminLoginRequest struct {
	Password string `json:"password"`
}
