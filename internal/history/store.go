package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Row is one archived utterance: where its WAV file landed and which match
// and engine run it belongs to.
type Row struct {
	RunID    uuid.UUID
	EventID  string
	MatchID  string
	Path     string
	Duration time.Duration
}

// RowStore persists archive rows. [Store] implements it over PostgreSQL;
// the [Sink] accepts any implementation so the file side of the archive
// works without a database.
type RowStore interface {
	SaveRow(ctx context.Context, row Row) error
}

var _ RowStore = (*Store)(nil)

// Store writes commentary_audio rows through a single [pgxpool.Pool].
// All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store, establishes a connection pool to the PostgreSQL
// database at dsn and runs [Migrate] to ensure the commentary_audio table
// exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("history store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("history store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &Store{pool: pool}, nil
}

// SaveRow implements [RowStore]. The duration is stored in seconds.
func (s *Store) SaveRow(ctx context.Context, row Row) error {
	const q = `
		INSERT INTO commentary_audio
		    (run_id, event_id, match_id, path, duration_seconds)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.pool.Exec(ctx, q,
		row.RunID,
		row.EventID,
		row.MatchID,
		row.Path,
		row.Duration.Seconds(),
	)
	if err != nil {
		return fmt.Errorf("history store: save row: %w", err)
	}
	return nil
}

// Ping reports whether the database is still reachable. The readiness probe
// uses it so a dead archive shows up in /readyz without touching playback.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("history store: ping: %w", err)
	}
	return nil
}

// Close releases all connections held by the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
