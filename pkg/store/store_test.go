package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/contextrouter/pkg/models"
)

func evt(id, sessionKey, traceID string, createdAt int64) models.Envelope {
	return models.Envelope{
		EventID:         id,
		TraceID:         traceID,
		SessionKey:      sessionKey,
		OriginActorType: models.ActorAgent,
		OriginActorID:   "agent-x",
		Text:            "text for " + id,
		CreatedAt:       createdAt,
	}
}

func TestSessionStore_AppendIdempotent(t *testing.T) {
	s := NewSessionStore()

	assert.True(t, s.Append(evt("e1", "s1", "t1", 100)))
	assert.False(t, s.Append(evt("e1", "s1", "t1", 100)))
	// Same id in another session still refuses.
	assert.False(t, s.Append(evt("e1", "s2", "t1", 100)))

	assert.Len(t, s.List("s1"), 1)
	assert.Empty(t, s.List("s2"))
}

func TestSessionStore_ListOrder(t *testing.T) {
	s := NewSessionStore()

	for i := 0; i < 5; i++ {
		require.True(t, s.Append(evt(fmt.Sprintf("e%d", i), "s1", "t1", int64(i))))
	}

	events := s.List("s1")
	require.Len(t, events, 5)
	for i, e := range events {
		assert.Equal(t, fmt.Sprintf("e%d", i), e.EventID)
	}
}

func TestSessionStore_ListReturnsSnapshot(t *testing.T) {
	s := NewSessionStore()
	require.True(t, s.Append(evt("e1", "s1", "t1", 1)))

	snapshot := s.List("s1")
	snapshot[0].Text = "mutated"

	assert.Equal(t, "text for e1", s.List("s1")[0].Text)
}

func TestSessionStore_RecentByTrace(t *testing.T) {
	s := NewSessionStore()
	now := time.UnixMilli(100_000)
	s.SetNowFunc(func() time.Time { return now })

	// Inside the window, deliberately out of order; spans two sessions.
	require.True(t, s.Append(evt("e2", "s1", "t1", 90_000)))
	require.True(t, s.Append(evt("e1", "s2", "t1", 80_000)))
	require.True(t, s.Append(evt("e3", "s1", "t1", 95_000)))
	// Outside the window.
	require.True(t, s.Append(evt("e0", "s1", "t1", 30_000)))
	// Different trace.
	require.True(t, s.Append(evt("x1", "s1", "t2", 95_000)))

	recent := s.RecentByTrace("t1", 60*time.Second)
	require.Len(t, recent, 3)
	assert.Equal(t, "e1", recent[0].EventID)
	assert.Equal(t, "e2", recent[1].EventID)
	assert.Equal(t, "e3", recent[2].EventID)
}

func TestSessionStore_RecentByTrace_EmptyTrace(t *testing.T) {
	s := NewSessionStore()
	assert.Empty(t, s.RecentByTrace("missing", time.Minute))
}

func TestSessionStore_ConcurrentAppendSameID(t *testing.T) {
	s := NewSessionStore()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Append(evt("dup", "s1", "t1", 1)) {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Len(t, s.List("s1"), 1)
}

func TestSessionStore_Stats(t *testing.T) {
	s := NewSessionStore()
	require.True(t, s.Append(evt("e1", "s1", "t1", 1)))
	require.True(t, s.Append(evt("e2", "s1", "t1", 2)))
	require.True(t, s.Append(evt("e3", "s2", "t2", 3)))

	sessions, events := s.Stats()
	assert.Equal(t, 2, sessions)
	assert.Equal(t, 3, events)
}
