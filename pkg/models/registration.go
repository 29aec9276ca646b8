package models

// RegistrationStatus is the lifecycle state of an agent registration.
type RegistrationStatus string

const (
	StatusPending  RegistrationStatus = "pending"
	StatusApproved RegistrationStatus = "approved"
	StatusRejected RegistrationStatus = "rejected"
)

// Registration describes an agent known to the router.
// CallbackSecret is never serialized to API responses.
type Registration struct {
	AgentID              string             `json:"agentId"`
	DisplayName          string             `json:"displayName,omitempty"`
	CallbackURL          string             `json:"callbackUrl"`
	CallbackSecret       string             `json:"-"`
	RequestedSessionKeys []string           `json:"requestedSessionKeys"`
	SessionKeys          []string           `json:"sessionKeys,omitempty"`
	RegisteredAt         int64              `json:"registeredAt"`
	Status               RegistrationStatus `json:"status"`
}

// HasSecret reports whether deliveries to this agent must be signed.
func (r *Registration) HasSecret() bool {
	return r.CallbackSecret != ""
}
