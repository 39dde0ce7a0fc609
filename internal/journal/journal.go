// Package journal is an append-only local record of raw gateway events,
// kept so a thread's timeline can be rebuilt offline. The reconciled
// model itself is never persisted; it is always re-derived.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/codedeck/codedeck/internal/timeline"
)

// Store is a SQLite-backed event journal.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the journal database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS events (
			thread_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			server_ts TEXT NOT NULL,
			turn_id TEXT,
			kind TEXT NOT NULL,
			name TEXT NOT NULL,
			payload TEXT,
			recorded_at TIMESTAMP NOT NULL,
			PRIMARY KEY (thread_id, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_thread_seq ON events(thread_id, seq)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}
	return nil
}

// Append records one event. Redelivered sequence numbers are ignored, so
// the at-least-once feed stays idempotent on disk too.
func (s *Store) Append(ctx context.Context, ev timeline.RawEvent) error {
	var payload sql.NullString
	if len(ev.Payload) > 0 {
		payload = sql.NullString{String: string(ev.Payload), Valid: true}
	}

	query := `INSERT OR IGNORE INTO events
		(thread_id, seq, server_ts, turn_id, kind, name, payload, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		ev.ThreadID, ev.Seq, ev.ServerTS, ev.TurnID, ev.Kind, ev.Name, payload, time.Now())
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Replay streams a thread's journaled events above since, in sequence
// order, to fn. A non-nil error from fn stops the replay.
func (s *Store) Replay(ctx context.Context, threadID string, since uint64, fn func(timeline.RawEvent) error) error {
	query := `SELECT seq, server_ts, turn_id, kind, name, payload
		FROM events WHERE thread_id = ? AND seq > ? ORDER BY seq ASC`
	rows, err := s.db.QueryContext(ctx, query, threadID, since)
	if err != nil {
		return fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ev timeline.RawEvent
		var turnID, payload sql.NullString
		if err := rows.Scan(&ev.Seq, &ev.ServerTS, &turnID, &ev.Kind, &ev.Name, &payload); err != nil {
			return fmt.Errorf("scan event: %w", err)
		}
		ev.ThreadID = threadID
		ev.TurnID = turnID.String
		if payload.Valid {
			ev.Payload = json.RawMessage(payload.String)
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
	return rows.Err()
}

// LastSeq returns the highest journaled sequence number for a thread, or
// zero when nothing is recorded.
func (s *Store) LastSeq(ctx context.Context, threadID string) (uint64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(seq) FROM events WHERE thread_id = ?`, threadID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("query last seq: %w", err)
	}
	if !seq.Valid {
		return 0, nil
	}
	return uint64(seq.Int64), nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
