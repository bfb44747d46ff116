package history

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ovalsounds/stumpcast/internal/observe"
	"github.com/ovalsounds/stumpcast/pkg/audio"
)

const (
	// backlogSize bounds how many finished clips can wait for the worker.
	// Publish drops instead of blocking once it is full.
	backlogSize = 16

	// flushTimeout caps how long Close waits for the backlog to drain.
	flushTimeout = 2 * time.Second

	// rowTimeout bounds a single archive write, database insert included.
	rowTimeout = 5 * time.Second

	dirPerm = 0o755
)

// Option configures a [Sink].
type Option func(*Sink)

// WithStore attaches a database row store. Without one the Sink writes WAV
// files only.
func WithStore(store RowStore) Option {
	return func(s *Sink) { s.store = store }
}

// WithMetrics overrides the metrics instance, mainly for tests.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Sink) { s.metrics = m }
}

// Sink archives finished commentary clips off the playback path. A single
// worker goroutine drains a bounded backlog, writing each clip to
// dir/<match_id>/<event_id>.wav and, when a store is attached, recording a
// [Row] for it.
type Sink struct {
	dir     string
	store   RowStore
	metrics *observe.Metrics
	runID   uuid.UUID

	mu     sync.Mutex
	closed bool

	jobs chan job
	done chan struct{}
}

type job struct {
	clip    audio.Clip
	matchID string
}

// NewSink creates a Sink rooted at dir and starts its worker. Every row the
// Sink saves carries the same freshly generated run id, so one engine run's
// output can be pulled out of commentary_audio as a unit.
func NewSink(dir string, opts ...Option) *Sink {
	s := &Sink{
		dir:   dir,
		runID: uuid.New(),
		jobs:  make(chan job, backlogSize),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	go s.run()
	return s
}

// RunID returns the identifier stamped on every row this Sink saves.
func (s *Sink) RunID() uuid.UUID { return s.runID }

// Publish hands a finished clip to the archive worker. It never blocks: if
// the backlog is full or the Sink is closed the clip is dropped with a log
// line.
func (s *Sink) Publish(clip audio.Clip, matchID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.jobs <- job{clip: clip, matchID: matchID}:
	default:
		slog.Warn("history: backlog full, dropping clip",
			"event_id", clip.EventID,
			"match_id", matchID)
		s.metrics.RecordHistoryRow(context.Background(), "dropped")
	}
}

// Close stops accepting clips and waits up to flushTimeout for the backlog
// to drain. Writes still pending after that are abandoned.
func (s *Sink) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.jobs)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
	case <-time.After(flushTimeout):
		slog.Warn("history: flush deadline exceeded, abandoning pending writes")
	}
}

func (s *Sink) run() {
	defer close(s.done)
	for j := range s.jobs {
		s.save(j)
	}
}

func (s *Sink) save(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), rowTimeout)
	defer cancel()

	path, err := s.writeWAV(j)
	if err != nil {
		slog.Warn("history: audio file write failed",
			"event_id", j.clip.EventID,
			"match_id", j.matchID,
			"error", err)
		s.metrics.RecordHistoryRow(ctx, "error")
		return
	}

	if s.store != nil {
		row := Row{
			RunID:    s.runID,
			EventID:  j.clip.EventID,
			MatchID:  j.matchID,
			Path:     path,
			Duration: j.clip.Duration,
		}
		if err := s.store.SaveRow(ctx, row); err != nil {
			slog.Warn("history: row insert failed",
				"event_id", j.clip.EventID,
				"path", path,
				"error", err)
			s.metrics.RecordHistoryRow(ctx, "error")
			return
		}
	}

	s.metrics.RecordHistoryRow(ctx, "ok")
	slog.Debug("history: clip archived",
		"event_id", j.clip.EventID,
		"path", path,
		"duration", j.clip.Duration)
}

// writeWAV encodes the clip under dir/<match_id>/<event_id>.wav and returns
// the path it wrote.
func (s *Sink) writeWAV(j job) (string, error) {
	matchDir := filepath.Join(s.dir, safeName(j.matchID))
	if err := os.MkdirAll(matchDir, dirPerm); err != nil {
		return "", err
	}
	path := filepath.Join(matchDir, safeName(j.clip.EventID)+".wav")

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	format := audio.Format{SampleRate: j.clip.SampleRate, Channels: j.clip.Channels}
	if err := audio.EncodeWAV(f, j.clip.Data, format); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}

// safeName flattens a wire-provided identifier into a single path element so
// event and match ids cannot escape the archive directory.
func safeName(id string) string {
	if id == "" {
		return "_"
	}
	var b strings.Builder
	b.Grow(len(id))
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if name := b.String(); name != "." && name != ".." {
		return name
	}
	return "_" + b.String()
}
