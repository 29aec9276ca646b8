// Package whitelist tracks agent registrations, their lifecycle
// (pending → approved/rejected), per-agent session grants, and the bounded
// dedupe set for agent-emitted derivations.
package whitelist

import (
	"errors"
	"sync"
	"time"

	"github.com/agentmesh/contextrouter/pkg/models"
)

// ErrAgentNotFound is returned by Approve/Reject for an unknown agent.
var ErrAgentNotFound = errors.New("agent not found")

// maxSeenEmitted caps the emitted-event dedupe set. Oldest entries are
// evicted FIFO; the cap is far above anything reachable within the loop
// guard's 60 s recall horizon.
const maxSeenEmitted = 10000

// Store is the in-memory whitelist and registration state. All methods are
// safe for concurrent use.
type Store struct {
	mu            sync.RWMutex
	registrations map[string]*models.Registration
	order         []string // agent ids in registration order

	seenEmitted      map[string]struct{}
	seenEmittedOrder []string

	now func() time.Time
}

// NewStore creates an empty whitelist store.
func NewStore() *Store {
	return &Store{
		registrations: make(map[string]*models.Registration),
		seenEmitted:   make(map[string]struct{}),
		now:           time.Now,
	}
}

// RegisterInput is the payload for creating or refreshing a registration.
type RegisterInput struct {
	AgentID              string
	DisplayName          string
	CallbackURL          string
	CallbackSecret       string
	RequestedSessionKeys []string
}

// Register upserts a pending registration. Re-registering an existing agent
// resets it to pending and clears any previous grants.
func (s *Store) Register(input RegisterInput) models.Registration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.registrations[input.AgentID]; !exists {
		s.order = append(s.order, input.AgentID)
	}
	reg := &models.Registration{
		AgentID:              input.AgentID,
		DisplayName:          input.DisplayName,
		CallbackURL:          input.CallbackURL,
		CallbackSecret:       input.CallbackSecret,
		RequestedSessionKeys: append([]string{}, input.RequestedSessionKeys...),
		RegisteredAt:         s.now().UnixMilli(),
		Status:               models.StatusPending,
	}
	s.registrations[input.AgentID] = reg
	return *reg
}

// Approve marks the agent approved and replaces its grants with exactly
// sessionKeys. Previously-approved grants are overwritten.
func (s *Store) Approve(agentID string, sessionKeys []string) (models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.registrations[agentID]
	if !ok {
		return models.Registration{}, ErrAgentNotFound
	}
	reg.Status = models.StatusApproved
	reg.SessionKeys = append([]string{}, sessionKeys...)
	return *reg, nil
}

// Reject marks the agent rejected and removes its grants.
func (s *Store) Reject(agentID string) (models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.registrations[agentID]
	if !ok {
		return models.Registration{}, ErrAgentNotFound
	}
	reg.Status = models.StatusRejected
	reg.SessionKeys = nil
	return *reg, nil
}

// CanAccess reports whether the agent is approved and granted sessionKey.
func (s *Store) CanAccess(agentID, sessionKey string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reg, ok := s.registrations[agentID]
	if !ok || reg.Status != models.StatusApproved {
		return false
	}
	for _, key := range reg.SessionKeys {
		if key == sessionKey {
			return true
		}
	}
	return false
}

// RecipientsFor returns approved registrations granted sessionKey, in
// registration order. Non-approved registrations are excluded even if stale
// grant entries remain.
func (s *Store) RecipientsFor(sessionKey string) []models.Registration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Registration
	for _, agentID := range s.order {
		reg := s.registrations[agentID]
		if reg == nil || reg.Status != models.StatusApproved {
			continue
		}
		for _, key := range reg.SessionKeys {
			if key == sessionKey {
				out = append(out, *reg)
				break
			}
		}
	}
	return out
}

// MarkEmitted records an emittedEventId. Returns false iff it was already
// seen; exactly one caller wins for a given id under concurrency.
func (s *Store) MarkEmitted(emittedEventID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.seenEmitted[emittedEventID]; dup {
		return false
	}
	s.seenEmitted[emittedEventID] = struct{}{}
	s.seenEmittedOrder = append(s.seenEmittedOrder, emittedEventID)
	if len(s.seenEmittedOrder) > maxSeenEmitted {
		evict := s.seenEmittedOrder[0]
		s.seenEmittedOrder = s.seenEmittedOrder[1:]
		delete(s.seenEmitted, evict)
	}
	return true
}

// Pending returns pending registrations in registration order.
func (s *Store) Pending() []models.Registration {
	return s.byStatus(models.StatusPending)
}

// Approved returns approved registrations in registration order.
func (s *Store) Approved() []models.Registration {
	return s.byStatus(models.StatusApproved)
}

func (s *Store) byStatus(status models.RegistrationStatus) []models.Registration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Registration
	for _, agentID := range s.order {
		if reg := s.registrations[agentID]; reg != nil && reg.Status == status {
			out = append(out, *reg)
		}
	}
	return out
}

// Counts returns the number of approved and pending registrations.
func (s *Store) Counts() (approved int, pending int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, reg := range s.registrations {
		switch reg.Status {
		case models.StatusApproved:
			approved++
		case models.StatusPending:
			pending++
		}
	}
	return approved, pending
}
