package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/ovalsounds/stumpcast/internal/observe"
	"github.com/ovalsounds/stumpcast/internal/queue"
	"github.com/ovalsounds/stumpcast/internal/state"
	"github.com/ovalsounds/stumpcast/internal/stream"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type fakePlayer struct{ playing bool }

func (f fakePlayer) Playing() bool { return f.playing }

func newTestMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func TestStateDir(t *testing.T) {
	ok := StateDir(filepath.Join(t.TempDir(), "runtime_state.json"))
	if ok.Name != "state" {
		t.Errorf("name = %q, want %q", ok.Name, "state")
	}
	if err := ok.Check(context.Background()); err != nil {
		t.Errorf("writable dir: %v", err)
	}

	missing := StateDir("/nonexistent-stumpcast-dir/runtime_state.json")
	if err := missing.Check(context.Background()); err == nil {
		t.Error("missing dir: want error, got nil")
	}
}

func TestHistory(t *testing.T) {
	if err := History(fakePinger{}).Check(context.Background()); err != nil {
		t.Errorf("healthy store: %v", err)
	}

	boom := errors.New("connection refused")
	if err := History(fakePinger{err: boom}).Check(context.Background()); !errors.Is(err, boom) {
		t.Errorf("dead store: want %v, got %v", boom, err)
	}
}

func TestDevice(t *testing.T) {
	if err := Device(fakePlayer{playing: true}).Check(context.Background()); err != nil {
		t.Errorf("playing device: %v", err)
	}
	if err := Device(fakePlayer{}).Check(context.Background()); err == nil {
		t.Error("stopped device: want error, got nil")
	}
}

func TestStream_NotConnected(t *testing.T) {
	st := state.New(filepath.Join(t.TempDir(), "runtime_state.json"))
	if _, err := st.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	c, err := stream.New("http://127.0.0.1:1", "m-1", queue.New(st))
	if err != nil {
		t.Fatalf("stream.New: %v", err)
	}

	err = Stream(c).Check(context.Background())
	if err == nil {
		t.Fatal("unconnected stream: want error, got nil")
	}
	if !strings.Contains(err.Error(), "reconnecting") {
		t.Errorf("error = %q, want it to name the status", err)
	}
}

func TestServer_Routes(t *testing.T) {
	h := New(Checker{Name: "test", Check: func(context.Context) error { return nil }})
	s := NewServer("127.0.0.1:0", h, newTestMetrics(t))

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		t.Run(path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.srv.Handler.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
			}
		})
	}
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	s := NewServer("127.0.0.1:0", New(), newTestMetrics(t))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
