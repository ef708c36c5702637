package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const createEventsTable = `
CREATE TABLE IF NOT EXISTS events (
	id            TEXT PRIMARY KEY,
	kind          TEXT NOT NULL,
	run_id        TEXT NOT NULL DEFAULT '',
	at            DATETIME NOT NULL,
	duration_ms   INTEGER NOT NULL DEFAULT 0,
	fallback_used INTEGER NOT NULL DEFAULT 0,
	error         TEXT NOT NULL DEFAULT '',
	attrs         TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_events_at ON events(at DESC);
CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind);
`

// SQLiteSink persists events so run history survives restarts and can be
// inspected with the runs command.
type SQLiteSink struct {
	db  *sql.DB
	log *zap.Logger
}

// OpenSQLite opens (and migrates) the event store at path.
func OpenSQLite(path string, log *zap.Logger) (*SQLiteSink, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create events dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open events db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createEventsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate events db: %w", err)
	}
	return &SQLiteSink{db: db, log: log}, nil
}

// Record stores one event.
func (s *SQLiteSink) Record(ctx context.Context, e Event) error {
	attrs := []byte("{}")
	if len(e.Attrs) > 0 {
		b, err := json.Marshal(e.Attrs)
		if err != nil {
			return fmt.Errorf("marshal attrs: %w", err)
		}
		attrs = b
	}
	fallback := 0
	if e.FallbackUsed {
		fallback = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (id, kind, run_id, at, duration_ms, fallback_used, error, attrs)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Kind), e.RunID, e.At.UTC(), e.Duration.Milliseconds(), fallback, e.Error, string(attrs))
	if err != nil {
		return fmt.Errorf("insert event %s: %w", e.ID, err)
	}
	return nil
}

// Emit implements Sink. Storage errors are logged, not returned.
func (s *SQLiteSink) Emit(ctx context.Context, e Event) {
	if err := s.Record(context.WithoutCancel(ctx), e); err != nil {
		s.log.Error("Failed to persist event", zap.String("kind", string(e.Kind)), zap.Error(err))
	}
}

// Recent returns up to limit events, newest first. An empty kind matches all.
func (s *SQLiteSink) Recent(ctx context.Context, kind Kind, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, kind, run_id, at, duration_ms, fallback_used, error, attrs FROM events`
	args := []any{}
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e          Event
			kindStr    string
			durationMS int64
			fallback   int
			attrs      string
		)
		if err := rows.Scan(&e.ID, &kindStr, &e.RunID, &e.At, &durationMS, &fallback, &e.Error, &attrs); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Kind = Kind(kindStr)
		e.Duration = time.Duration(durationMS) * time.Millisecond
		e.FallbackUsed = fallback == 1
		if attrs != "" && attrs != "{}" {
			_ = json.Unmarshal([]byte(attrs), &e.Attrs)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
