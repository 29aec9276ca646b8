// Package delivery implements the fan-out engine: per-recipient signed HTTP
// callbacks with exponential-backoff retries. Deliveries to different
// recipients proceed independently; retries for one recipient are chained so
// at most one attempt is ever in flight.
package delivery

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/agentmesh/contextrouter/pkg/models"
	"github.com/google/uuid"
)

// Scheduler runs fn after d. The default uses time.AfterFunc; tests inject a
// synchronous scheduler to make retry timing deterministic.
type Scheduler func(d time.Duration, fn func())

// AuditSink records delivery attempt outcomes.
type AuditSink interface {
	RecordDelivery(ctx context.Context, rec models.DeliveryRecord) error
}

// Config carries the engine's retry knobs.
type Config struct {
	MaxRetries     int
	BaseDelay      time.Duration
	AttemptTimeout time.Duration
}

// Engine posts callback payloads to recipient agents.
type Engine struct {
	client   *http.Client
	cfg      Config
	audit    AuditSink
	schedule Scheduler
	now      func() time.Time
}

// NewEngine creates a delivery engine writing attempt outcomes to sink.
func NewEngine(cfg Config, sink AuditSink) *Engine {
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 10 * time.Second
	}
	return &Engine{
		client:   &http.Client{Timeout: cfg.AttemptTimeout},
		cfg:      cfg,
		audit:    sink,
		schedule: func(d time.Duration, fn func()) { time.AfterFunc(d, fn) },
		now:      time.Now,
	}
}

// SetScheduler overrides retry scheduling. Test hook.
func (e *Engine) SetScheduler(s Scheduler) { e.schedule = s }

// SetHTTPClient overrides the callback client. Test hook.
func (e *Engine) SetHTTPClient(c *http.Client) { e.client = c }

// SetNowFunc overrides the clock. Test hook.
func (e *Engine) SetNowFunc(now func() time.Time) { e.now = now }

// callbackPayload is the wire shape posted to agent callback URLs.
type callbackPayload struct {
	Type        string          `json:"type"`
	DeliveryID  string          `json:"deliveryId"`
	DeliveredAt int64           `json:"deliveredAt"`
	Event       models.Envelope `json:"event"`
}

// job is one (event, recipient) delivery. The payload bytes and signature
// are built once and reused verbatim across retries so the HMAC always
// covers the exact body sent.
type job struct {
	deliveryID string
	body       []byte
	signature  string
	recipient  models.Registration
	eventID    string
	sessionKey string
}

// FanOut schedules one delivery job per recipient. An agent's own event is
// never delivered back to it in the same hop.
func (e *Engine) FanOut(evt models.Envelope, recipients []models.Registration) {
	for _, rcpt := range recipients {
		if evt.OriginActorType == models.ActorAgent && evt.OriginActorID == rcpt.AgentID {
			continue
		}
		j, err := e.newJob(evt, rcpt)
		if err != nil {
			slog.Error("Failed to build delivery payload",
				"event_id", evt.EventID, "agent_id", rcpt.AgentID, "error", err)
			continue
		}
		e.schedule(0, func() { e.attempt(j, 1) })
	}
}

func (e *Engine) newJob(evt models.Envelope, rcpt models.Registration) (*job, error) {
	payload := callbackPayload{
		Type:        "router.event",
		DeliveryID:  uuid.New().String(),
		DeliveredAt: e.now().UnixMilli(),
		Event:       evt,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal callback payload: %w", err)
	}

	j := &job{
		deliveryID: payload.DeliveryID,
		body:       body,
		recipient:  rcpt,
		eventID:    evt.EventID,
		sessionKey: evt.SessionKey,
	}
	if rcpt.HasSecret() {
		j.signature = Sign(rcpt.CallbackSecret, body)
	}
	return j, nil
}

// attempt performs one POST. On failure it either schedules the next attempt
// at BaseDelay·2^(attempt−1) or records the terminal failure.
func (e *Engine) attempt(j *job, attempt int) {
	err := e.post(j, attempt)
	if err == nil {
		e.record(models.DeliveryRecord{
			DeliveryID:    j.deliveryID,
			EventID:       j.eventID,
			SessionKey:    j.sessionKey,
			TargetAgentID: j.recipient.AgentID,
			Status:        models.DeliverySuccess,
			Attempt:       attempt,
		})
		return
	}

	if attempt >= e.cfg.MaxRetries {
		slog.Warn("Delivery failed permanently",
			"delivery_id", j.deliveryID, "agent_id", j.recipient.AgentID,
			"attempt", attempt, "error", err)
		e.record(models.DeliveryRecord{
			DeliveryID:    j.deliveryID,
			EventID:       j.eventID,
			SessionKey:    j.sessionKey,
			TargetAgentID: j.recipient.AgentID,
			Status:        models.DeliveryFailed,
			Attempt:       attempt,
			Error:         err.Error(),
		})
		return
	}

	e.record(models.DeliveryRecord{
		DeliveryID:    j.deliveryID,
		EventID:       j.eventID,
		SessionKey:    j.sessionKey,
		TargetAgentID: j.recipient.AgentID,
		Status:        models.DeliveryRetry,
		Attempt:       attempt,
		Error:         err.Error(),
	})

	delay := e.cfg.BaseDelay * (1 << (attempt - 1))
	next := attempt + 1
	e.schedule(delay, func() { e.attempt(j, next) })
}

func (e *Engine) post(j *job, attempt int) error {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.AttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		j.recipient.CallbackURL, bytes.NewReader(j.body))
	if err != nil {
		return fmt.Errorf("failed to build callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Router-Agent-Id", j.recipient.AgentID)
	req.Header.Set("X-Router-Event-Id", j.eventID)
	req.Header.Set("X-Router-Attempt", strconv.Itoa(attempt))
	if j.signature != "" {
		req.Header.Set("X-Router-Signature", j.signature)
		req.Header.Set("X-Router-Signature-Alg", "hmac-sha256")
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("callback request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("callback returned status %d", resp.StatusCode)
	}
	return nil
}

func (e *Engine) record(rec models.DeliveryRecord) {
	if err := e.audit.RecordDelivery(context.Background(), rec); err != nil {
		slog.Error("Failed to record delivery attempt",
			"delivery_id", rec.DeliveryID, "status", rec.Status, "error", err)
	}
}

// Sign computes the lowercase-hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
