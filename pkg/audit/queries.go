package audit

import (
	"context"
	"fmt"

	"github.com/agentmesh/contextrouter/pkg/models"
)

// Metrics are the aggregate counters backing the admin metrics endpoint.
type Metrics struct {
	TotalEvents     int `json:"totalEvents"`
	TotalDeliveries int `json:"totalDeliveries"`
	DeliverySuccess int `json:"deliverySuccess"`
	DeliveryFailed  int `json:"deliveryFailed"`
	LoopStops       int `json:"loopStops"`
	LoopWarns       int `json:"loopWarns"`
}

// SessionRollup summarizes one session's audited events.
type SessionRollup struct {
	SessionKey    string `json:"sessionKey"`
	EventCount    int    `json:"eventCount"`
	LastCreatedAt int64  `json:"lastCreatedAt"`
}

// DecisionRecord is one audited loop decision with its policy action.
type DecisionRecord struct {
	EventID    string  `json:"eventId"`
	TraceID    string  `json:"traceId"`
	SessionKey string  `json:"sessionKey"`
	IsError    bool    `json:"isErrorLoop"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
	Action     string  `json:"action"`
	RecordedAt int64   `json:"recordedAt"`
}

// GetMetrics returns aggregate counts across all three audit streams.
func (s *Sink) GetMetrics(ctx context.Context) (*Metrics, error) {
	m := &Metrics{}

	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_events`)
	if err := row.Scan(&m.TotalEvents); err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM audit_deliveries GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count deliveries: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		m.TotalDeliveries += count
		switch models.DeliveryStatus(status) {
		case models.DeliverySuccess:
			m.DeliverySuccess = count
		case models.DeliveryFailed:
			m.DeliveryFailed = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	drows, err := s.db.QueryContext(ctx,
		`SELECT action, COUNT(*) FROM audit_loop_decisions GROUP BY action`)
	if err != nil {
		return nil, fmt.Errorf("failed to count loop decisions: %w", err)
	}
	defer func() { _ = drows.Close() }()
	for drows.Next() {
		var action string
		var count int
		if err := drows.Scan(&action, &count); err != nil {
			return nil, err
		}
		switch models.LoopAction(action) {
		case models.ActionStop:
			m.LoopStops = count
		case models.ActionWarn:
			m.LoopWarns = count
		}
	}
	if err := drows.Err(); err != nil {
		return nil, err
	}

	return m, nil
}

// ListSessions returns the per-session rollup, most recently active first.
func (s *Sink) ListSessions(ctx context.Context) ([]SessionRollup, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_key, COUNT(*), MAX(created_at)
		 FROM audit_events GROUP BY session_key ORDER BY MAX(created_at) DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query session rollup: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []SessionRollup
	for rows.Next() {
		var r SessionRollup
		if err := rows.Scan(&r.SessionKey, &r.EventCount, &r.LastCreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecentDecisions returns the latest loop decisions, newest first.
func (s *Sink) RecentDecisions(ctx context.Context, limit int) ([]DecisionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, trace_id, session_key, is_error_loop, reason, confidence, action, recorded_at
		 FROM audit_loop_decisions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query loop decisions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []DecisionRecord
	for rows.Next() {
		var r DecisionRecord
		var isErr int
		if err := rows.Scan(&r.EventID, &r.TraceID, &r.SessionKey, &isErr,
			&r.Reason, &r.Confidence, &r.Action, &r.RecordedAt); err != nil {
			return nil, err
		}
		r.IsError = isErr != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecentDeliveries returns the latest delivery attempts, newest first.
func (s *Sink) RecentDeliveries(ctx context.Context, limit int) ([]models.DeliveryRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT delivery_id, event_id, session_key, target_agent_id, status, attempt, error
		 FROM audit_deliveries ORDER BY recorded_at DESC, attempt DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query deliveries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.DeliveryRecord
	for rows.Next() {
		var r models.DeliveryRecord
		var status string
		if err := rows.Scan(&r.DeliveryID, &r.EventID, &r.SessionKey,
			&r.TargetAgentID, &status, &r.Attempt, &r.Error); err != nil {
			return nil, err
		}
		r.Status = models.DeliveryStatus(status)
		out = append(out, r)
	}
	return out, rows.Err()
}
