// Package audit provides the append-only persistent log of accepted events,
// loop decisions, and delivery attempts, backed by SQLite.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/agentmesh/contextrouter/pkg/models"

	_ "modernc.org/sqlite"
)

// Sink is the router's audit store. Writes from concurrent handlers are
// serialized by limiting the pool to a single connection (SQLite is a
// single-writer medium anyway).
type Sink struct {
	db *sql.DB

	now func() time.Time
}

// Open opens (creating if needed) the audit database at path and ensures
// the schema exists.
func Open(path string) (*Sink, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create audit directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Sink{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) migrate() error {
	ctx := context.Background()
	if _, err := s.db.ExecContext(ctx, `PRAGMA journal_mode=WAL`); err != nil {
		return fmt.Errorf("failed to enable WAL: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS audit_events (
		event_id          TEXT PRIMARY KEY,
		session_key       TEXT NOT NULL,
		trace_id          TEXT NOT NULL,
		origin_actor_type TEXT NOT NULL,
		origin_actor_id   TEXT NOT NULL,
		text              TEXT NOT NULL,
		created_at        INTEGER NOT NULL,
		recorded_at       INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS audit_loop_decisions (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id      TEXT NOT NULL,
		trace_id      TEXT NOT NULL,
		session_key   TEXT NOT NULL,
		is_error_loop INTEGER NOT NULL,
		reason        TEXT NOT NULL,
		confidence    REAL NOT NULL,
		action        TEXT NOT NULL,
		recorded_at   INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS audit_deliveries (
		delivery_id     TEXT NOT NULL,
		event_id        TEXT NOT NULL,
		session_key     TEXT NOT NULL,
		target_agent_id TEXT NOT NULL,
		status          TEXT NOT NULL,
		attempt         INTEGER NOT NULL,
		error           TEXT NOT NULL DEFAULT '',
		recorded_at     INTEGER NOT NULL,
		PRIMARY KEY (delivery_id, attempt, status)
	);
	CREATE INDEX IF NOT EXISTS idx_audit_events_session ON audit_events (session_key, created_at);
	CREATE INDEX IF NOT EXISTS idx_audit_deliveries_event ON audit_deliveries (event_id);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create audit schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Sink) Close() error {
	return s.db.Close()
}

// Ping verifies the sink is reachable (used by the health endpoint).
func (s *Sink) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RecordEvent appends an accepted event. Idempotent under retry: a second
// insert for the same event id is ignored.
func (s *Sink) RecordEvent(ctx context.Context, evt models.Envelope) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO audit_events
		 (event_id, session_key, trace_id, origin_actor_type, origin_actor_id, text, created_at, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		evt.EventID, evt.SessionKey, evt.TraceID, string(evt.OriginActorType),
		evt.OriginActorID, evt.Text, evt.CreatedAt, s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// RecordDecision appends a loop decision together with the policy action
// the pipeline took for it.
func (s *Sink) RecordDecision(ctx context.Context, evt models.Envelope, d models.Decision, action models.LoopAction) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_loop_decisions
		 (event_id, trace_id, session_key, is_error_loop, reason, confidence, action, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		evt.EventID, evt.TraceID, evt.SessionKey, boolToInt(d.IsErrorLoop),
		d.Reason, d.Confidence, string(action), s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record loop decision: %w", err)
	}
	return nil
}

// RecordDelivery appends one callback attempt outcome. Idempotent per
// (delivery, attempt, status).
func (s *Sink) RecordDelivery(ctx context.Context, rec models.DeliveryRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO audit_deliveries
		 (delivery_id, event_id, session_key, target_agent_id, status, attempt, error, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.DeliveryID, rec.EventID, rec.SessionKey, rec.TargetAgentID,
		string(rec.Status), rec.Attempt, rec.Error, s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record delivery: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
