// Package store holds the in-memory session log: per-session append-only
// event sequences, the global event-id dedupe set, and a trace index used by
// the loop guard.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/agentmesh/contextrouter/pkg/models"
)

// SessionStore owns the per-session event logs. All methods are safe for
// concurrent use; the dedupe set is the sole source of truth for
// at-most-once append.
type SessionStore struct {
	mu           sync.RWMutex
	bySession    map[string][]models.Envelope
	byTrace      map[string][]models.Envelope
	seenEventIDs map[string]struct{}

	now func() time.Time
}

// NewSessionStore creates an empty session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		bySession:    make(map[string][]models.Envelope),
		byTrace:      make(map[string][]models.Envelope),
		seenEventIDs: make(map[string]struct{}),
		now:          time.Now,
	}
}

// SetNowFunc overrides the clock. Test hook.
func (s *SessionStore) SetNowFunc(now func() time.Time) {
	s.now = now
}

// Append records the event under its session key. Returns false iff the
// event id was already seen; the duplicate is not appended anywhere.
func (s *SessionStore) Append(evt models.Envelope) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.seenEventIDs[evt.EventID]; dup {
		return false
	}
	s.seenEventIDs[evt.EventID] = struct{}{}
	s.bySession[evt.SessionKey] = append(s.bySession[evt.SessionKey], evt)
	if evt.TraceID != "" {
		s.byTrace[evt.TraceID] = append(s.byTrace[evt.TraceID], evt)
	}
	return true
}

// List returns a snapshot of the session's events in append order.
func (s *SessionStore) List(sessionKey string) []models.Envelope {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.bySession[sessionKey]
	out := make([]models.Envelope, len(events))
	copy(out, events)
	return out
}

// RecentByTrace returns events across all sessions sharing traceID whose
// CreatedAt falls within the last `within` duration, sorted by CreatedAt.
func (s *SessionStore) RecentByTrace(traceID string, within time.Duration) []models.Envelope {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := s.now().Add(-within).UnixMilli()
	var out []models.Envelope
	for _, evt := range s.byTrace[traceID] {
		if evt.CreatedAt >= cutoff {
			out = append(out, evt)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt < out[j].CreatedAt
	})
	return out
}

// Stats returns the number of sessions and total appended events.
func (s *SessionStore) Stats() (sessions int, events int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, evts := range s.bySession {
		events += len(evts)
	}
	return len(s.bySession), events
}
