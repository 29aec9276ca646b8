// Package models defines the wire-level domain types shared across the router:
// the event envelope, agent registrations, loop decisions, and delivery records.
package models

// ActorType identifies what kind of actor produced an event.
type ActorType string

const (
	ActorHuman  ActorType = "human"
	ActorAgent  ActorType = "agent"
	ActorSystem ActorType = "system"
)

// Valid reports whether the actor type is one of the known values.
func (a ActorType) Valid() bool {
	switch a {
	case ActorHuman, ActorAgent, ActorSystem:
		return true
	}
	return false
}

// Source records the provenance of an event (originating channel/chat/thread).
type Source struct {
	Channel   string `json:"channel,omitempty"`
	ChatID    string `json:"chatId,omitempty"`
	ThreadID  string `json:"threadId,omitempty"`
	MessageID string `json:"messageId,omitempty"`
}

// Envelope is the unit of routing. Once appended to a session it is immutable.
// EventID is assigned by the router when absent; CreatedAt is always assigned
// by the router, never trusted from the client.
type Envelope struct {
	EventID          string    `json:"eventId"`
	TraceID          string    `json:"traceId"`
	SessionKey       string    `json:"sessionKey"`
	Source           Source    `json:"source"`
	OriginActorType  ActorType `json:"originActorType"`
	OriginActorID    string    `json:"originActorId"`
	Text             string    `json:"text"`
	HopCount         int       `json:"hopCount"`
	SeenAgents       []string  `json:"seenAgents"`
	EmittedByAgentID string    `json:"emittedByAgentId,omitempty"`
	EmittedEventID   string    `json:"emittedEventId,omitempty"`

	// CreatedAt is epoch milliseconds, assigned server-side.
	CreatedAt int64 `json:"createdAt"`
}
