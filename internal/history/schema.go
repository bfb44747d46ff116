// Package history archives finished commentary audio: one WAV file per
// spoken event under a per-match directory, plus one commentary_audio row
// per file when a PostgreSQL store is attached.
//
// Everything here is best effort. Playback never blocks on the archive and
// never fails because of it: a full backlog drops the clip, a dead database
// loses the row but keeps the file.
//
// Usage:
//
//	store, err := history.NewStore(ctx, dsn)
//	if err != nil { … }
//
//	sink := history.NewSink(dir, history.WithStore(store))
//	sink.Publish(clip, matchID)
//	…
//	sink.Close()
package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ─────────────────────────────────────────────────────────────────────────────
// DDL — audio archive
// ─────────────────────────────────────────────────────────────────────────────

const ddlCommentaryAudio = `
CREATE TABLE IF NOT EXISTS commentary_audio (
    audio_id         BIGSERIAL         PRIMARY KEY,
    run_id           UUID              NOT NULL,
    event_id         TEXT              NOT NULL,
    match_id         TEXT              NOT NULL,
    path             TEXT              NOT NULL,
    duration_seconds DOUBLE PRECISION  NOT NULL DEFAULT 0,
    created_at       TIMESTAMPTZ       NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_commentary_audio_match
    ON commentary_audio (match_id, created_at);

CREATE INDEX IF NOT EXISTS idx_commentary_audio_event
    ON commentary_audio (event_id);
`

// Migrate creates or ensures the commentary_audio table and its indexes
// exist. It is idempotent (CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT
// EXISTS) and safe to call on every engine start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlCommentaryAudio); err != nil {
		return fmt.Errorf("history migrate: %w", err)
	}
	return nil
}
