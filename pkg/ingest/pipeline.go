// Package ingest orchestrates the publish pipeline:
// validate → authorize → echo-check → classify → (maybe delay) → append → fan-out.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/agentmesh/contextrouter/pkg/loopguard"
	"github.com/agentmesh/contextrouter/pkg/models"
	"github.com/agentmesh/contextrouter/pkg/store"
	"github.com/agentmesh/contextrouter/pkg/whitelist"
	"github.com/google/uuid"
)

// ErrNotAuthorized is returned when an agent publishes to a session it has
// no grant for. The API layer maps it to 403.
var ErrNotAuthorized = errors.New("agent not approved for this session")

// Auditor is the slice of the audit sink the pipeline writes to.
type Auditor interface {
	RecordEvent(ctx context.Context, evt models.Envelope) error
	RecordDecision(ctx context.Context, evt models.Envelope, d models.Decision, action models.LoopAction) error
}

// FanOuter dispatches an appended event to its recipients.
type FanOuter interface {
	FanOut(evt models.Envelope, recipients []models.Registration)
}

// Scheduler defers the append+fan-out closure when the guard imposes a delay.
type Scheduler func(d time.Duration, fn func())

// Result is the publish response body.
type Result struct {
	Accepted bool             `json:"accepted"`
	Delayed  bool             `json:"delayed"`
	DelayMs  int              `json:"delayMs"`
	Stopped  bool             `json:"stopped,omitempty"`
	Reason   string           `json:"reason,omitempty"`
	Decision *models.Decision `json:"decision,omitempty"`
}

// Pipeline wires the ingest stages together.
type Pipeline struct {
	store      *store.SessionStore
	whitelist  *whitelist.Store
	guard      *loopguard.Guard
	deliveries FanOuter
	audit      Auditor
	schedule   Scheduler
	now        func() time.Time
}

// New creates a publish pipeline.
func New(st *store.SessionStore, wl *whitelist.Store, guard *loopguard.Guard, deliveries FanOuter, sink Auditor) *Pipeline {
	return &Pipeline{
		store:      st,
		whitelist:  wl,
		guard:      guard,
		deliveries: deliveries,
		audit:      sink,
		schedule:   func(d time.Duration, fn func()) { time.AfterFunc(d, fn) },
		now:        time.Now,
	}
}

// SetScheduler overrides delayed-run scheduling. Test hook.
func (p *Pipeline) SetScheduler(s Scheduler) { p.schedule = s }

// SetNowFunc overrides the clock. Test hook.
func (p *Pipeline) SetNowFunc(now func() time.Time) { p.now = now }

// Publish runs the full ingest pipeline for one envelope. The returned
// Result is what the HTTP layer serializes; the append and fan-out may run
// after the response when the guard imposes a delay.
func (p *Pipeline) Publish(ctx context.Context, env models.Envelope) (*Result, error) {
	if err := models.ValidateEnvelope(&env); err != nil {
		return nil, err
	}

	// EventID and CreatedAt are router-assigned; client values for
	// CreatedAt are never trusted.
	if env.EventID == "" {
		env.EventID = uuid.New().String()
	}
	env.CreatedAt = p.now().UnixMilli()

	if env.OriginActorType == models.ActorAgent &&
		!p.whitelist.CanAccess(env.OriginActorID, env.SessionKey) {
		return nil, ErrNotAuthorized
	}

	// Self-echo suppression: the first publish of an emittedEventId wins,
	// concurrent duplicates are blocked here.
	if env.EmittedEventID != "" && !p.whitelist.MarkEmitted(env.EmittedEventID) {
		return &Result{
			Accepted: false,
			Reason:   "self-echo duplicate emittedEventId blocked",
		}, nil
	}

	delayMs, decision := p.guard.Classify(env)
	action := models.ActionFor(decision)

	if err := p.audit.RecordDecision(ctx, env, decision, action); err != nil {
		slog.Warn("Failed to audit loop decision", "event_id", env.EventID, "error", err)
	}

	if action == models.ActionStop {
		slog.Info("Publish stopped by loop guard",
			"event_id", env.EventID, "trace_id", env.TraceID, "reason", decision.Reason)
		d := decision
		return &Result{Accepted: false, Stopped: true, Reason: d.Reason, Decision: &d}, nil
	}

	outbound := env
	if action == models.ActionWarn {
		outbound.Text = env.Text + loopWarningSuffix(decision.Confidence)
	}

	run := func() {
		if !p.store.Append(outbound) {
			slog.Info("Duplicate event id ignored", "event_id", outbound.EventID)
			return
		}
		if err := p.audit.RecordEvent(context.Background(), outbound); err != nil {
			slog.Warn("Failed to audit event", "event_id", outbound.EventID, "error", err)
		}
		p.deliveries.FanOut(outbound, p.whitelist.RecipientsFor(outbound.SessionKey))
	}

	if delayMs > 0 {
		p.schedule(time.Duration(delayMs)*time.Millisecond, run)
	} else {
		run()
	}

	d := decision
	return &Result{
		Accepted: true,
		Delayed:  delayMs > 0,
		DelayMs:  delayMs,
		Decision: &d,
	}, nil
}

// loopWarningSuffix is the wire-contract suffix appended to warn-class
// events: two newlines, the bracketed tag, confidence to two decimals.
func loopWarningSuffix(confidence float64) string {
	return fmt.Sprintf("\n\n[LOOP_GUARD_NOTE] Possible error loop detected (confidence=%.2f). Please evaluate and stop if erroneous.", confidence)
}
