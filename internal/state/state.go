// Package state persists the engine's runtime checkpoint: which match is
// live and the last event id spoken on air.
//
// The checkpoint is the only durable resource in the process. It is written
// after every commit with temp-file + fsync + rename semantics so a crash
// never leaves a torn file, and it is read once at startup to resume
// catch-up from the right place.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultPath is where the checkpoint lives unless configured otherwise.
const DefaultPath = "state/runtime_state.json"

// Runtime is the checkpoint contents. Empty strings appear as JSON null on
// disk, matching what older tooling around the state file expects.
type Runtime struct {
	// MatchID is the match currently on air. Empty until the first event or
	// match discovery.
	MatchID string

	// LastSpokenEventID is the id of the last event whose audio the mixer
	// finished (or that was deliberately skipped).
	LastSpokenEventID string

	// LastUpdate is the unix-seconds timestamp of the last write.
	LastUpdate int64
}

// runtimeJSON is the exact wire shape of the state file.
type runtimeJSON struct {
	MatchID           *string `json:"match_id"`
	LastSpokenEventID *string `json:"last_spoken_event_id"`
	LastUpdate        int64   `json:"last_update"`
}

// MarshalJSON implements json.Marshaler.
func (r Runtime) MarshalJSON() ([]byte, error) {
	w := runtimeJSON{LastUpdate: r.LastUpdate}
	if r.MatchID != "" {
		w.MatchID = &r.MatchID
	}
	if r.LastSpokenEventID != "" {
		w.LastSpokenEventID = &r.LastSpokenEventID
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Runtime) UnmarshalJSON(data []byte) error {
	var w runtimeJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	r.MatchID = ""
	if w.MatchID != nil {
		r.MatchID = *w.MatchID
	}
	r.LastSpokenEventID = ""
	if w.LastSpokenEventID != nil {
		r.LastSpokenEventID = *w.LastSpokenEventID
	}
	r.LastUpdate = w.LastUpdate
	return nil
}

// Store owns the checkpoint file. All methods are safe for concurrent use.
//
// The in-memory checkpoint always advances, even when a disk write fails;
// callers log the returned error and carry on. A restart after a failed
// write replays at most the gap since the last successful write, and dedup
// absorbs the duplicates.
type Store struct {
	path string

	mu  sync.Mutex
	cur Runtime
}

// New creates a Store for the given path. The file is not touched until the
// first Load or write.
func New(path string) *Store {
	if path == "" {
		path = DefaultPath
	}
	return &Store{path: path}
}

// Path returns the checkpoint file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the checkpoint from disk into memory. A missing file is not an
// error; it yields a zero checkpoint for a fresh session.
func (s *Store) Load() (Runtime, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.cur = Runtime{}
		return s.cur, nil
	}
	if err != nil {
		return Runtime{}, fmt.Errorf("state: read %s: %w", s.path, err)
	}

	var r Runtime
	if err := json.Unmarshal(data, &r); err != nil {
		return Runtime{}, fmt.Errorf("state: parse %s: %w", s.path, err)
	}
	s.cur = r
	return r, nil
}

// SetMatch switches the checkpoint to a new match, clearing the last spoken
// id, and persists.
func (s *Store) SetMatch(matchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cur = Runtime{
		MatchID:    matchID,
		LastUpdate: time.Now().Unix(),
	}
	return s.persistLocked()
}

// Commit records eventID as the last spoken event and persists.
func (s *Store) Commit(eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cur.LastSpokenEventID = eventID
	s.cur.LastUpdate = time.Now().Unix()
	return s.persistLocked()
}

// Snapshot returns the current in-memory checkpoint.
func (s *Store) Snapshot() Runtime {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// persistLocked writes the current checkpoint atomically. Callers hold mu.
func (s *Store) persistLocked() error {
	data, err := json.Marshal(s.cur)
	if err != nil {
		return fmt.Errorf("state: encode: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("state: create %s: %w", dir, err)
		}
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("state: open %s: %w", tmp, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("state: write %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("state: fsync %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("state: close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("state: rename %s: %w", tmp, err)
	}
	return nil
}
