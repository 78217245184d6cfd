// Package postgres stores ended session records in PostgreSQL using pgx v5.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/palemoky/turnstile/internal/game/session"
	"github.com/palemoky/turnstile/internal/storage/postgres/migrations"
)

// Store is a session.PersistenceSink backed by the game_sessions table.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to the database and verifies it is reachable.
func Open(ctx context.Context, dsn string, maxConns int32) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Health checks that the database responds within timeout.
func (s *Store) Health(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.pool.Ping(ctx)
}

// Close releases all pool resources.
func (s *Store) Close() {
	s.pool.Close()
}

// NewMigrator returns a migrator over the embedded schema files.
// The caller must Close it.
func NewMigrator(dsn string) (*migrate.Migrate, error) {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("opening embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating migrator: %w", err)
	}
	return m, nil
}

// Migrate applies every pending up migration.
func Migrate(dsn string) error {
	m, err := NewMigrator(dsn)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

const upsertSQL = `
INSERT INTO game_sessions
    (id, game_type, status, end_reason, winner, player_count, turn_number,
     created_at, started_at, ended_at, record, saved_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
ON CONFLICT (id) DO UPDATE SET
    status       = EXCLUDED.status,
    end_reason   = EXCLUDED.end_reason,
    winner       = EXCLUDED.winner,
    player_count = EXCLUDED.player_count,
    turn_number  = EXCLUDED.turn_number,
    started_at   = EXCLUDED.started_at,
    ended_at     = EXCLUDED.ended_at,
    record       = EXCLUDED.record,
    saved_at     = NOW()`

// Save upserts the record by session id.
func (s *Store) Save(ctx context.Context, rec session.Snapshot) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding session record: %w", err)
	}

	_, err = s.pool.Exec(ctx, upsertSQL,
		rec.ID,
		rec.Config.GameType,
		string(rec.Status),
		rec.EndReason,
		rec.Winner,
		len(rec.Players),
		rec.TurnNumber,
		rec.CreatedAt,
		nullTime(rec.StartedAt),
		nullTime(rec.EndedAt),
		data,
	)
	if err != nil {
		return fmt.Errorf("saving session %s: %w", rec.ID, err)
	}
	return nil
}

// Load returns the stored record, or nil when the id is unknown.
func (s *Store) Load(ctx context.Context, id string) (*session.Snapshot, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT record FROM game_sessions WHERE id = $1`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading session %s: %w", id, err)
	}

	var rec session.Snapshot
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding session record: %w", err)
	}
	return &rec, nil
}

// History lists the most recently ended session ids of a game type, newest first.
func (s *Store) History(ctx context.Context, gameType string, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM game_sessions
		WHERE game_type = $1
		ORDER BY ended_at DESC NULLS LAST, id
		LIMIT $2`, gameType, limit)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

var _ session.PersistenceSink = (*Store)(nil)
