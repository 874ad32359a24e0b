// Package sqlite persists sessions in a single SQLite database: turn
// checkpoints, the append-only chronicle, the session listing, and
// telemetry events.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/wyrdlabs/wyrd/internal/engine/checkpoint"
	"github.com/wyrdlabs/wyrd/internal/engine/session"
	"github.com/wyrdlabs/wyrd/internal/engine/state"
	"github.com/wyrdlabs/wyrd/internal/platform/storage/sqlitemigrate"
	"github.com/wyrdlabs/wyrd/internal/telemetry"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is a SQLite-backed implementation of the engine's persistence
// interfaces.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies pending
// migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Serialized access keeps the single-writer model simple.
	db.SetMaxOpenConns(1)
	if err := sqlitemigrate.ApplyMigrations(db, migrationsFS, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get implements checkpoint.Store.
func (s *Store) Get(ctx context.Context, sessionID string) (state.SessionState, error) {
	var snapshot string
	err := s.db.QueryRowContext(ctx,
		`SELECT snapshot FROM checkpoints WHERE session_id = ?`, sessionID,
	).Scan(&snapshot)
	if errors.Is(err, sql.ErrNoRows) {
		return state.SessionState{}, checkpoint.ErrNotFound
	}
	if err != nil {
		return state.SessionState{}, fmt.Errorf("query checkpoint: %w", err)
	}

	var loaded state.SessionState
	if err := json.Unmarshal([]byte(snapshot), &loaded); err != nil {
		return state.SessionState{}, fmt.Errorf("decode checkpoint: %w", err)
	}
	return loaded, nil
}

// Put implements checkpoint.Store.
func (s *Store) Put(ctx context.Context, sessionID string, snapshot state.SessionState) error {
	encoded, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO checkpoints (session_id, snapshot, updated_at)
VALUES (?, ?, ?)
ON CONFLICT (session_id) DO UPDATE SET
    snapshot = excluded.snapshot,
    updated_at = excluded.updated_at`,
		sessionID, string(encoded), formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("store checkpoint: %w", err)
	}
	return nil
}

// AppendEvents implements the chronicle store. Events append atomically,
// so a partial turn never reaches the chronicle.
func (s *Store) AppendEvents(ctx context.Context, sessionID string, events []state.EventNode) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin chronicle append: %w", err)
	}
	defer tx.Rollback()

	for _, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("encode event %s: %w", event.EventID, err)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO chronicle_events (session_id, event_id, turn_number, payload, created_at)
VALUES (?, ?, ?, ?, ?)`,
			sessionID, event.EventID, event.TurnNumber, string(payload), formatTime(event.Timestamp),
		); err != nil {
			return fmt.Errorf("insert event %s: %w", event.EventID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit chronicle append: %w", err)
	}
	return nil
}

// ListEvents implements the chronicle store, returning the full history
// in insertion order.
func (s *Store) ListEvents(ctx context.Context, sessionID string) ([]state.EventNode, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT payload FROM chronicle_events WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query chronicle: %w", err)
	}
	defer rows.Close()

	var events []state.EventNode
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var event state.EventNode
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chronicle: %w", err)
	}
	return events, nil
}

// TailEvents returns the newest limit events, oldest first.
func (s *Store) TailEvents(ctx context.Context, sessionID string, limit int) ([]state.EventNode, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT payload FROM (
    SELECT id, payload FROM chronicle_events
    WHERE session_id = ? ORDER BY id DESC LIMIT ?
) ORDER BY id`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query chronicle tail: %w", err)
	}
	defer rows.Close()

	var events []state.EventNode
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var event state.EventNode
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chronicle tail: %w", err)
	}
	return events, nil
}

// CreateSession implements session.MetadataStore.
func (s *Store) CreateSession(ctx context.Context, meta session.Metadata) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO sessions (session_id, title, created_at, last_played, turn_count, status)
VALUES (?, ?, ?, ?, ?, ?)`,
		meta.SessionID, meta.Title, formatTime(meta.CreatedAt), formatTime(meta.LastPlayed),
		meta.TurnCount, meta.Status,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// TouchSession implements session.MetadataStore.
func (s *Store) TouchSession(ctx context.Context, sessionID string, lastPlayed time.Time, turnCount int) error {
	result, err := s.db.ExecContext(ctx, `
UPDATE sessions SET last_played = ?, turn_count = ? WHERE session_id = ?`,
		formatTime(lastPlayed), turnCount, sessionID,
	)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return requireRow(result, sessionID)
}

// CompleteSession implements session.MetadataStore.
func (s *Store) CompleteSession(ctx context.Context, sessionID string, when time.Time) error {
	result, err := s.db.ExecContext(ctx, `
UPDATE sessions SET status = ?, last_played = ? WHERE session_id = ?`,
		session.StatusCompleted, formatTime(when), sessionID,
	)
	if err != nil {
		return fmt.Errorf("complete session: %w", err)
	}
	return requireRow(result, sessionID)
}

// GetSession implements session.MetadataStore.
func (s *Store) GetSession(ctx context.Context, sessionID string) (session.Metadata, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT session_id, title, created_at, last_played, turn_count, status
FROM sessions WHERE session_id = ?`, sessionID)
	meta, err := scanMetadata(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Metadata{}, fmt.Errorf("%w: %s", session.ErrNotFound, sessionID)
	}
	if err != nil {
		return session.Metadata{}, fmt.Errorf("query session: %w", err)
	}
	return meta, nil
}

// ListSessions implements session.MetadataStore, newest played first.
func (s *Store) ListSessions(ctx context.Context) ([]session.Metadata, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT session_id, title, created_at, last_played, turn_count, status
FROM sessions ORDER BY last_played DESC, session_id`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []session.Metadata
	for rows.Next() {
		meta, err := scanMetadata(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// AppendTelemetryEvent implements telemetry.Store.
func (s *Store) AppendTelemetryEvent(ctx context.Context, event telemetry.Event) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO telemetry_events (session_id, turn_number, kind, severity, detail, occurred_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		event.SessionID, event.TurnNumber, event.Kind, string(event.Severity),
		event.Detail, formatTime(event.OccurredAt),
	)
	if err != nil {
		return fmt.Errorf("insert telemetry event: %w", err)
	}
	return nil
}

func scanMetadata(scan func(...any) error) (session.Metadata, error) {
	var meta session.Metadata
	var createdAt, lastPlayed string
	if err := scan(&meta.SessionID, &meta.Title, &createdAt, &lastPlayed, &meta.TurnCount, &meta.Status); err != nil {
		return session.Metadata{}, err
	}
	var err error
	if meta.CreatedAt, err = parseTime(createdAt); err != nil {
		return session.Metadata{}, err
	}
	if meta.LastPlayed, err = parseTime(lastPlayed); err != nil {
		return session.Metadata{}, err
	}
	return meta, nil
}

func requireRow(result sql.Result, sessionID string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", session.ErrNotFound, sessionID)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) (time.Time, error) {
	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", raw, err)
	}
	return parsed, nil
}
