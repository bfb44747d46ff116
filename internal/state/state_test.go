package state_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ovalsounds/stumpcast/internal/state"
)

func TestLoadMissingFileYieldsZero(t *testing.T) {
	t.Parallel()

	s := state.New(filepath.Join(t.TempDir(), "runtime_state.json"))
	r, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if r != (state.Runtime{}) {
		t.Errorf("expected zero checkpoint, got %+v", r)
	}
}

func TestCommitRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "runtime_state.json")
	s := state.New(path)

	before := time.Now().Unix()
	if err := s.SetMatch("m-7"); err != nil {
		t.Fatalf("SetMatch: %v", err)
	}
	if err := s.Commit("ball_42"); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	fresh := state.New(path)
	r, err := fresh.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if r.MatchID != "m-7" {
		t.Errorf("match_id = %q, want m-7", r.MatchID)
	}
	if r.LastSpokenEventID != "ball_42" {
		t.Errorf("last_spoken_event_id = %q, want ball_42", r.LastSpokenEventID)
	}
	if r.LastUpdate < before {
		t.Errorf("last_update %d predates the write", r.LastUpdate)
	}
}

func TestSetMatchClearsLastSpoken(t *testing.T) {
	t.Parallel()

	s := state.New(filepath.Join(t.TempDir(), "runtime_state.json"))
	if err := s.SetMatch("m-1"); err != nil {
		t.Fatalf("SetMatch: %v", err)
	}
	if err := s.Commit("e-1"); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := s.SetMatch("m-2"); err != nil {
		t.Fatalf("SetMatch: %v", err)
	}

	r := s.Snapshot()
	if r.MatchID != "m-2" {
		t.Errorf("match_id = %q, want m-2", r.MatchID)
	}
	if r.LastSpokenEventID != "" {
		t.Errorf("last spoken id should reset on a new match, got %q", r.LastSpokenEventID)
	}
}

func TestFileShapeUsesNulls(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "runtime_state.json")
	s := state.New(path)
	if err := s.SetMatch("m-7"); err != nil {
		t.Fatalf("SetMatch: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read state file: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("state file is not valid JSON: %v", err)
	}
	for _, key := range []string{"match_id", "last_spoken_event_id", "last_update"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("state file missing key %q", key)
		}
	}
	if string(raw["last_spoken_event_id"]) != "null" {
		t.Errorf("unspoken checkpoint should serialize as null, got %s", raw["last_spoken_event_id"])
	}
	if string(raw["match_id"]) != `"m-7"` {
		t.Errorf("unexpected match_id encoding: %s", raw["match_id"])
	}
}

func TestLoadCorruptFileErrors(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "runtime_state.json")
	if err := os.WriteFile(path, []byte("{torn"), 0o644); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}

	_, err := state.New(path).Load()
	if err == nil {
		t.Fatal("expected error for corrupt state file")
	}
	if !strings.Contains(err.Error(), path) {
		t.Errorf("error should name the file: %v", err)
	}
}

func TestWriteLeavesNoTempFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := state.New(filepath.Join(dir, "runtime_state.json"))
	if err := s.SetMatch("m-7"); err != nil {
		t.Fatalf("SetMatch: %v", err)
	}
	if err := s.Commit("e-1"); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file %q left behind", e.Name())
		}
	}
}

func TestInMemoryAdvancesWhenDiskFails(t *testing.T) {
	t.Parallel()

	// Point the store at a path whose parent is a plain file, so every
	// persist fails.
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocked")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("seed blocker: %v", err)
	}

	s := state.New(filepath.Join(blocker, "runtime_state.json"))
	if err := s.SetMatch("m-7"); err == nil {
		t.Fatal("expected persist error")
	}
	if err := s.Commit("e-1"); err == nil {
		t.Fatal("expected persist error")
	}

	r := s.Snapshot()
	if r.MatchID != "m-7" || r.LastSpokenEventID != "e-1" {
		t.Errorf("in-memory checkpoint should advance despite disk failure, got %+v", r)
	}
}
