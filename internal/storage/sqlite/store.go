// Package sqlite stores ended session records in a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/palemoky/turnstile/internal/game/session"
)

const timeFormat = time.RFC3339Nano

const schema = `
CREATE TABLE IF NOT EXISTS game_sessions (
    id           TEXT    PRIMARY KEY,
    game_type    TEXT    NOT NULL,
    status       TEXT    NOT NULL,
    end_reason   TEXT    NOT NULL DEFAULT '',
    winner       TEXT    NOT NULL DEFAULT '',
    player_count INTEGER NOT NULL,
    turn_number  INTEGER NOT NULL,
    created_at   TEXT    NOT NULL,
    ended_at     TEXT    NOT NULL DEFAULT '',
    record       TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_game_sessions_history ON game_sessions (game_type, ended_at);
`

// Store is a session.PersistenceSink backed by SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save upserts the record by session id.
func (s *Store) Save(ctx context.Context, rec session.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session record: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO game_sessions
    (id, game_type, status, end_reason, winner, player_count, turn_number, created_at, ended_at, record)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    status       = excluded.status,
    end_reason   = excluded.end_reason,
    winner       = excluded.winner,
    player_count = excluded.player_count,
    turn_number  = excluded.turn_number,
    ended_at     = excluded.ended_at,
    record       = excluded.record`,
		rec.ID,
		rec.Config.GameType,
		string(rec.Status),
		rec.EndReason,
		rec.Winner,
		len(rec.Players),
		rec.TurnNumber,
		formatTime(rec.CreatedAt),
		formatTime(rec.EndedAt),
		string(data),
	)
	if err != nil {
		return fmt.Errorf("save session %s: %w", rec.ID, err)
	}
	return nil
}

// Load returns the stored record, or nil when the id is unknown.
func (s *Store) Load(ctx context.Context, id string) (*session.Snapshot, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM game_sessions WHERE id = ?`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}

	var rec session.Snapshot
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("decode session record: %w", err)
	}
	return &rec, nil
}

// History lists the most recently ended session ids of a game type, newest first.
func (s *Store) History(ctx context.Context, gameType string, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id FROM game_sessions
WHERE game_type = ?
ORDER BY ended_at DESC, id
LIMIT ?`, gameType, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// formatTime 统一为 UTC，保证按字符串排序与时间顺序一致
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeFormat)
}

var _ session.PersistenceSink = (*Store)(nil)
