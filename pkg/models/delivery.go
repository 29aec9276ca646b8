package models

// DeliveryStatus is the outcome of a single callback attempt.
type DeliveryStatus string

const (
	DeliverySuccess DeliveryStatus = "success"
	DeliveryRetry   DeliveryStatus = "retry"
	DeliveryFailed  DeliveryStatus = "failed"
)

// DeliveryRecord is the audit-only view of one callback attempt.
// Retries of the same (event, recipient) pair share DeliveryID and
// increment Attempt.
type DeliveryRecord struct {
	DeliveryID    string         `json:"deliveryId"`
	EventID       string         `json:"eventId"`
	SessionKey    string         `json:"sessionKey"`
	TargetAgentID string         `json:"targetAgentId"`
	Status        DeliveryStatus `json:"status"`
	Attempt       int            `json:"attempt"`
	Error         string         `json:"error,omitempty"`
}
