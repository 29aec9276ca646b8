// Package loopguard classifies candidate events as part of an error loop
// (uncontrolled repetition) versus an intentional iterative exchange.
// Detection is deterministic: a per-trace rate cap followed by a lexical
// repetition check over recent trace history.
package loopguard

import (
	"fmt"
	"strings"
	"time"

	"github.com/agentmesh/contextrouter/pkg/models"
)

// traceWindow is the sliding window of trace history the guard considers.
const traceWindow = 60 * time.Second

// repetitionTail is how many trailing events of the trace are compared
// against the candidate's text.
const repetitionTail = 4

// similarityThreshold is the Jaccard score above which two texts count as
// near-identical.
const similarityThreshold = 0.95

// TraceHistory is the slice of the session store the guard depends on.
type TraceHistory interface {
	RecentByTrace(traceID string, within time.Duration) []models.Envelope
}

// Config carries the guard's tuning knobs.
type Config struct {
	MaxPerMinute   int
	DefaultDelayMs int
	BurstDelayMs   int
}

// Guard evaluates candidate events against recent trace history.
type Guard struct {
	history TraceHistory
	cfg     Config
}

// New creates a guard over the given trace history.
func New(history TraceHistory, cfg Config) *Guard {
	return &Guard{history: history, cfg: cfg}
}

// Classify returns a delay in milliseconds and the loop decision for the
// candidate. First match wins: rate cap, then repetition, then accept.
func (g *Guard) Classify(candidate models.Envelope) (int, models.Decision) {
	recent := g.history.RecentByTrace(candidate.TraceID, traceWindow)

	if len(recent) >= g.cfg.MaxPerMinute {
		return g.cfg.BurstDelayMs, models.Decision{
			IsErrorLoop: true,
			Reason:      fmt.Sprintf("max %d loop events per minute exceeded; delaying", g.cfg.MaxPerMinute),
			Confidence:  0.95,
		}
	}

	tail := recent
	if len(tail) > repetitionTail {
		tail = tail[len(tail)-repetitionTail:]
	}
	if len(tail) >= 3 {
		similar := 0
		for _, prev := range tail {
			if Jaccard(prev.Text, candidate.Text) >= similarityThreshold {
				similar++
			}
		}
		if similar >= 2 {
			return g.cfg.DefaultDelayMs, models.Decision{
				IsErrorLoop: true,
				Reason:      "near-identical repeated outputs detected; delayed for safety",
				Confidence:  0.8,
			}
		}
	}

	return 0, models.Decision{
		IsErrorLoop: false,
		Reason:      "accepted",
		Confidence:  0.6,
	}
}

// Jaccard computes token-set similarity of two texts: lowercase, collapse
// whitespace runs, split on space, then |A ∩ B| / |A ∪ B|. Returns 0 when
// the union is empty.
func Jaccard(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)

	union := len(setB)
	intersection := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			intersection++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		set[tok] = struct{}{}
	}
	return set
}
