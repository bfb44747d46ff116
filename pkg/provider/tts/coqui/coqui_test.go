package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ovalsounds/stumpcast/pkg/audio"
	"github.com/ovalsounds/stumpcast/pkg/provider/tts"
)

func collect(t *testing.T, st *tts.Stream) []byte {
	t.Helper()
	var out []byte
	deadline := time.After(2 * time.Second)
	for {
		select {
		case chunk, ok := <-st.C:
			if !ok {
				return out
			}
			out = append(out, chunk...)
		case <-deadline:
			t.Fatal("timed out draining stream")
		}
	}
}

// serveWAV writes pcm as a WAV response in the given format.
func serveWAV(t *testing.T, w http.ResponseWriter, pcm []byte, format audio.Format) {
	t.Helper()
	w.Header().Set("Content-Type", "audio/wav")
	if err := audio.EncodeWAV(w, pcm, format); err != nil {
		t.Errorf("encode wav: %v", err)
	}
}

// ---- Constructor tests ----

func TestNew_EmptyURL(t *testing.T) {
	if _, err := New("", 22050); err == nil {
		t.Error("expected error for empty server URL")
	}
}

func TestNew_BadSampleRate(t *testing.T) {
	if _, err := New("http://localhost:5002", 0); err == nil {
		t.Error("expected error for zero sample rate")
	}
}

func TestNew_XTTSRequiresSpeaker(t *testing.T) {
	if _, err := New("http://localhost:8002", 22050, WithAPIMode(APIModeXTTS)); err == nil {
		t.Error("expected error for XTTS mode without a speaker")
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New("http://localhost:5002/", 22050)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.serverURL != "http://localhost:5002" {
		t.Errorf("expected trailing slash trimmed, got %q", p.serverURL)
	}
	if p.language != defaultLanguage {
		t.Errorf("expected language %q, got %q", defaultLanguage, p.language)
	}
	if p.apiMode != APIModeStandard {
		t.Errorf("expected standard mode, got %q", p.apiMode)
	}
}

// ---- Request shape ----

func TestSynthesize_StandardRequestShape(t *testing.T) {
	var gotPath, gotText, gotSpeaker, gotLang string
	pcm := []byte{1, 0, 2, 0, 3, 0, 4, 0}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotText = r.URL.Query().Get("text")
		gotSpeaker = r.URL.Query().Get("speaker_id")
		gotLang = r.URL.Query().Get("language_id")
		serveWAV(t, w, pcm, audio.Format{SampleRate: 22050, Channels: 1})
	}))
	defer srv.Close()

	p, err := New(srv.URL, 22050, WithSpeaker("p225"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	st, err := p.Synthesize(context.Background(), tts.Request{Text: "Howzat!", Excitement: 9})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	got := collect(t, st)
	if !bytes.Equal(got, pcm) {
		t.Errorf("expected %v, got %v", pcm, got)
	}
	if st.Err() != nil {
		t.Errorf("expected clean stream end, got %v", st.Err())
	}
	if gotPath != "/api/tts" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotText != "Howzat!" {
		t.Errorf("expected text 'Howzat!', got %q", gotText)
	}
	if gotSpeaker != "p225" {
		t.Errorf("expected speaker_id 'p225', got %q", gotSpeaker)
	}
	if gotLang != "en" {
		t.Errorf("expected language_id 'en', got %q", gotLang)
	}
}

func TestSynthesize_XTTSRequestShape(t *testing.T) {
	var gotPath string
	var gotBody ttsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		serveWAV(t, w, []byte{0, 0}, audio.Format{SampleRate: 22050, Channels: 1})
	}))
	defer srv.Close()

	p, err := New(srv.URL, 22050,
		WithAPIMode(APIModeXTTS),
		WithSpeaker("announcer"),
		WithLanguage("de"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	st, err := p.Synthesize(context.Background(), tts.Request{Text: "Und das ist vier!"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	collect(t, st)

	if gotPath != "/tts_to_audio/" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotBody.Text != "Und das ist vier!" {
		t.Errorf("unexpected text %q", gotBody.Text)
	}
	if gotBody.SpeakerWav != "announcer" {
		t.Errorf("unexpected speaker %q", gotBody.SpeakerWav)
	}
	if gotBody.Language != "de" {
		t.Errorf("unexpected language %q", gotBody.Language)
	}
}

// ---- Sentence pipeline ----

func TestSynthesize_EmitsSentencesInOrder(t *testing.T) {
	fills := map[string]byte{
		"Great shot!":         0x11,
		"That's four runs.":   0x22,
		"Unbelievable scenes": 0x33,
	}

	var mu sync.Mutex
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		text := r.URL.Query().Get("text")
		mu.Lock()
		seen = append(seen, text)
		mu.Unlock()

		fill, ok := fills[text]
		if !ok {
			t.Errorf("unexpected sentence %q", text)
			http.Error(w, "unknown sentence", http.StatusBadRequest)
			return
		}
		// Slow the first sentence down so later ones can finish before it;
		// output order must still follow sentence order.
		if fill == 0x11 {
			time.Sleep(30 * time.Millisecond)
		}
		serveWAV(t, w, bytes.Repeat([]byte{fill}, 8), audio.Format{SampleRate: 22050, Channels: 1})
	}))
	defer srv.Close()

	p, err := New(srv.URL, 22050)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	st, err := p.Synthesize(context.Background(), tts.Request{
		Text: "Great shot! That's four runs. Unbelievable scenes",
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	got := collect(t, st)
	want := append(append(bytes.Repeat([]byte{0x11}, 8), bytes.Repeat([]byte{0x22}, 8)...), bytes.Repeat([]byte{0x33}, 8)...)
	if !bytes.Equal(got, want) {
		t.Errorf("PCM out of sentence order:\ngot  %v\nwant %v", got, want)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 {
		t.Errorf("expected 3 synthesis requests, got %d: %v", len(seen), seen)
	}
}

// ---- Format conversion ----

func TestSynthesize_DownmixesAndResamples(t *testing.T) {
	// 64 stereo frames at 44.1 kHz should come out as 32 mono samples at 22.05.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serveWAV(t, w, make([]byte, 64*4), audio.Format{SampleRate: 44100, Channels: 2})
	}))
	defer srv.Close()

	p, err := New(srv.URL, 22050)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	st, err := p.Synthesize(context.Background(), tts.Request{Text: "caught behind"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	got := collect(t, st)
	if len(got) != 32*2 {
		t.Errorf("expected 64 bytes of mono PCM, got %d", len(got))
	}
	if st.Err() != nil {
		t.Errorf("expected clean stream end, got %v", st.Err())
	}
}

// ---- Error handling ----

func TestSynthesize_ServerErrorEndsStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model exploded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, err := New(srv.URL, 22050)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	st, err := p.Synthesize(context.Background(), tts.Request{Text: "over and out"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if got := collect(t, st); len(got) != 0 {
		t.Errorf("expected no audio, got %d bytes", len(got))
	}
	if st.Err() == nil {
		t.Fatal("expected stream error after server failure")
	}
	if !strings.Contains(st.Err().Error(), "500") {
		t.Errorf("expected status in error, got: %v", st.Err())
	}
}

func TestSynthesize_EmptyTextClosesCleanly(t *testing.T) {
	p, err := New("http://localhost:5002", 22050)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	st, err := p.Synthesize(context.Background(), tts.Request{Text: "   "})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if got := collect(t, st); len(got) != 0 {
		t.Errorf("expected no audio for blank text, got %d bytes", len(got))
	}
	if st.Err() != nil {
		t.Errorf("expected clean end for blank text, got %v", st.Err())
	}
}

// ---- Sentence splitting ----

func TestSplitSentences(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"Great shot! That's four.", []string{"Great shot!", "That's four."}},
		{"A single sentence with no terminator", []string{"A single sentence with no terminator"}},
		{"Run rate is 3.14 an over. Tight game!", []string{"Run rate is 3.14 an over.", "Tight game!"}},
		{"Out? Out! Gone.", []string{"Out?", "Out!", "Gone."}},
		{"", nil},
		{"   ", nil},
	}
	for _, tc := range cases {
		if got := splitSentences(tc.in); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("splitSentences(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
