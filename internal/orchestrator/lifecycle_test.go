package orchestrator_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ovalsounds/stumpcast/internal/event"
	"github.com/ovalsounds/stumpcast/internal/match"
	"github.com/ovalsounds/stumpcast/internal/orchestrator"
	"github.com/ovalsounds/stumpcast/internal/queue"
	"github.com/ovalsounds/stumpcast/internal/state"
	"github.com/ovalsounds/stumpcast/pkg/audio"
	audiomock "github.com/ovalsounds/stumpcast/pkg/audio/mock"
	ttsmock "github.com/ovalsounds/stumpcast/pkg/provider/tts/mock"
)

// ─── fixtures ────────────────────────────────────────────────────────────────

// scoreServer is a mutable fake of the scoring backend's booking and innings
// endpoints.
type scoreServer struct {
	mu     sync.Mutex
	match  map[string]any
	inning string
	srv    *httptest.Server
	client *match.Client
}

func newScoreServer(t *testing.T) *scoreServer {
	t.Helper()
	s := &scoreServer{
		match: map[string]any{
			"slot_id":        7,
			"teamOneName":    "Thunder",
			"teamTwoName":    "Ravens",
			"teamOneId":      1,
			"teamTwoId":      2,
			"teamOneRuns":    0,
			"teamTwoRuns":    0,
			"teamOneInnings": "Batting First",
		},
		inning: "Innings 1",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/bookings/get_booking_by_time/", func(w http.ResponseWriter, _ *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": "Successfully fetched Match Slot",
			"match":   s.match,
		})
	})
	mux.HandleFunc("/innings/get_innings", func(w http.ResponseWriter, _ *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": "Successfully fetched Innings",
			"innings": map[string]string{"inning": s.inning},
		})
	})

	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)

	client, err := match.NewClient(s.srv.URL)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	s.client = client
	return s
}

func (s *scoreServer) setInning(inning string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inning = inning
}

func (s *scoreServer) setMatchField(key string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.match[key] = v
}

func (s *scoreServer) matchClient() *match.Client {
	return s.client
}

// startEngine runs o until the test ends.
func startEngine(t *testing.T, o *orchestrator.Orchestrator) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			t.Error("Run did not return after cancel")
		}
	})
}

// ─── TestLifecycle_WelcomeOnStartup ───────────────────────────────────────────

// TestLifecycle_WelcomeOnStartup verifies that the first poll adopts the
// booked match and speaks the welcome exactly once, committed on submit.
func TestLifecycle_WelcomeOnStartup(t *testing.T) {
	t.Parallel()

	server := newScoreServer(t)
	q := newQueue(t)
	synth := newSynth()
	mixer := &audiomock.Mixer{AutoResult: &audio.Result{Reason: audio.Drained}}

	o, err := orchestrator.New(orchestrator.Config{
		Queue:        q,
		Synth:        synth,
		Mixer:        mixer,
		Matches:      server.matchClient(),
		PollInterval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: unexpected error: %v", err)
	}
	startEngine(t, o)

	waitFor(t, func() bool { return len(synth.Calls()) >= 1 }, "welcome never synthesized")

	call := synth.Calls()[0]
	if !strings.Contains(call.Request.Text, "Thunder") || !strings.Contains(call.Request.Text, "Ravens") {
		t.Errorf("welcome %q does not name both teams", call.Request.Text)
	}
	if call.Request.Excitement != 9 {
		t.Errorf("welcome excitement = %d, want 9", call.Request.Excitement)
	}
	if got := o.MatchID(); got != "7" {
		t.Errorf("MatchID = %q, want 7 (adopted from booking)", got)
	}

	waitFor(t, func() bool { return len(mixer.Submitted()) >= 1 }, "welcome never submitted")
	if got := mixer.Submitted()[0].Priority; got != event.PriorityAnnouncement {
		t.Errorf("welcome priority = %d, want %d", got, event.PriorityAnnouncement)
	}
	waitFor(t, func() bool {
		return strings.HasPrefix(q.Checkpoint(), "special_event_announcement_")
	}, "welcome id never committed")

	// Later polls must not repeat the cue.
	time.Sleep(50 * time.Millisecond)
	if n := len(synth.Calls()); n != 1 {
		t.Errorf("Synthesize calls after repeat polls: want 1, got %d", n)
	}
}

// ─── TestLifecycle_BreakThenEnd ───────────────────────────────────────────────

// TestLifecycle_BreakThenEnd walks the phase sequence of a full match and
// checks each transition announces exactly once.
func TestLifecycle_BreakThenEnd(t *testing.T) {
	t.Parallel()

	server := newScoreServer(t)
	q := newQueue(t)
	synth := newSynth()
	mixer := &audiomock.Mixer{AutoResult: &audio.Result{Reason: audio.Drained}}

	o, err := orchestrator.New(orchestrator.Config{
		Queue:        q,
		Synth:        synth,
		Mixer:        mixer,
		Matches:      server.matchClient(),
		PollInterval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: unexpected error: %v", err)
	}
	startEngine(t, o)

	waitFor(t, func() bool { return len(synth.Calls()) == 1 }, "welcome never synthesized")

	server.setInning("Innings Break")
	waitFor(t, func() bool { return len(synth.Calls()) == 2 }, "break never synthesized")
	if text := synth.Calls()[1].Request.Text; !strings.Contains(text, "end of the first innings") {
		t.Errorf("break announcement = %q", text)
	}
	if exc := synth.Calls()[1].Request.Excitement; exc != 4 {
		t.Errorf("break excitement = %d, want 4", exc)
	}

	server.setInning("End Innings")
	waitFor(t, func() bool { return len(synth.Calls()) == 3 }, "match end never synthesized")
	if text := synth.Calls()[2].Request.Text; !strings.Contains(text, "draw") {
		t.Errorf("no winner set, want a draw call, got %q", text)
	}
	if exc := synth.Calls()[2].Request.Excitement; exc != 10 {
		t.Errorf("end excitement = %d, want 10", exc)
	}

	time.Sleep(50 * time.Millisecond)
	if n := len(synth.Calls()); n != 3 {
		t.Errorf("Synthesize calls after repeat polls: want 3, got %d", n)
	}
}

// ─── TestLifecycle_EndNamesWinner ─────────────────────────────────────────────

// TestLifecycle_EndNamesWinner verifies that joining an already-finished
// match skips the welcome and credits the winning side by name.
func TestLifecycle_EndNamesWinner(t *testing.T) {
	t.Parallel()

	server := newScoreServer(t)
	server.setInning("End Innings")
	server.setMatchField("winnerId", 1)

	q := newQueue(t)
	synth := newSynth()
	mixer := &audiomock.Mixer{AutoResult: &audio.Result{Reason: audio.Drained}}

	o, err := orchestrator.New(orchestrator.Config{
		Queue:        q,
		Synth:        synth,
		Mixer:        mixer,
		Matches:      server.matchClient(),
		PollInterval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: unexpected error: %v", err)
	}
	startEngine(t, o)

	waitFor(t, func() bool { return len(synth.Calls()) >= 1 }, "match end never synthesized")
	if text := synth.Calls()[0].Request.Text; !strings.Contains(text, "Thunder wins") {
		t.Errorf("end announcement = %q, want the winner named", text)
	}

	time.Sleep(50 * time.Millisecond)
	if n := len(synth.Calls()); n != 1 {
		t.Errorf("Synthesize calls: want 1 (no welcome for a finished match), got %d", n)
	}
}

// ─── TestLifecycle_BookingMovesToNewMatch ─────────────────────────────────────

// TestLifecycle_BookingMovesToNewMatch verifies that the poller adopts a new
// booking the same way an inbound event for a new match would: checkpoint
// redirected, stream switched, lifecycle restarted.
func TestLifecycle_BookingMovesToNewMatch(t *testing.T) {
	t.Parallel()

	server := newScoreServer(t)
	store := state.New(filepath.Join(t.TempDir(), "runtime_state.json"))
	q := queue.New(store)
	synth := newSynth()
	mixer := &audiomock.Mixer{AutoResult: &audio.Result{Reason: audio.Drained}}
	sw := &fakeSwitcher{}

	o, err := orchestrator.New(orchestrator.Config{
		Queue:        q,
		Synth:        synth,
		Mixer:        mixer,
		Matches:      server.matchClient(),
		Stream:       sw,
		MatchID:      "match-old",
		PollInterval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: unexpected error: %v", err)
	}
	startEngine(t, o)

	waitFor(t, func() bool { return o.MatchID() == "7" }, "booking never adopted")

	if got := sw.calls(); len(got) == 0 || got[0] != "7" {
		t.Errorf("stream switches = %v, want [7]", got)
	}
	waitFor(t, func() bool { return store.Snapshot().MatchID == "7" }, "checkpoint never redirected")

	// Lifecycle restarts against the new match.
	waitFor(t, func() bool { return len(synth.Calls()) >= 1 }, "welcome never synthesized")
	if text := synth.Calls()[0].Request.Text; !strings.Contains(text, "Thunder") {
		t.Errorf("welcome %q does not name the adopted match's teams", text)
	}
}

// ─── TestLifecycle_SynthesisFailureLeavesNoCommit ─────────────────────────────

func TestLifecycle_SynthesisFailureLeavesNoCommit(t *testing.T) {
	t.Parallel()

	server := newScoreServer(t)
	q := newQueue(t)
	synth := &ttsmock.Provider{SynthesizeErr: errors.New("synthesis backend down")}
	mixer := &audiomock.Mixer{}

	o, err := orchestrator.New(orchestrator.Config{
		Queue:        q,
		Synth:        synth,
		Mixer:        mixer,
		Matches:      server.matchClient(),
		PollInterval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: unexpected error: %v", err)
	}
	startEngine(t, o)

	waitFor(t, func() bool { return len(synth.Calls()) >= 1 }, "welcome never attempted")
	time.Sleep(20 * time.Millisecond)

	if n := len(mixer.Submitted()); n != 0 {
		t.Errorf("Submit calls: want 0, got %d", n)
	}
	if got := q.Checkpoint(); got != "" {
		t.Errorf("checkpoint = %q, want empty for a failed announcement", got)
	}
}
