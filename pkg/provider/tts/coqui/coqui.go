// Package coqui provides a tts.Provider backed by a self-hosted Coqui TTS
// server. It needs no API key, so it suits venues that must keep commentary
// running without internet access.
//
// Two server APIs are supported:
//
//   - APIModeStandard (default): the standard Coqui TTS server
//     (ghcr.io/coqui-ai/tts-cpu). Synthesis is performed via GET /api/tts
//     with URL query parameters.
//
//   - APIModeXTTS: the Coqui XTTS v2 API server. Synthesis is performed via
//     POST /tts_to_audio/ with a JSON body.
//
// Both servers operate in batch mode (one HTTP call per utterance rather
// than a streaming socket), so Synthesize splits the text into sentences and
// dispatches concurrent requests with a small lookahead, emitting PCM in
// sentence order. Playback can then start after the first sentence instead
// of waiting for the whole line.
package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/ovalsounds/stumpcast/pkg/audio"
	"github.com/ovalsounds/stumpcast/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

const (
	defaultLanguage = "en"
	defaultTimeout  = 30 * time.Second

	ttsEndpoint    = "/tts_to_audio/"
	apiTTSEndpoint = "/api/tts"

	// sentenceLookahead bounds how many synthesis requests may be in flight
	// at once. Commentary lines are one or two sentences, so a small value
	// already hides the per-sentence latency.
	sentenceLookahead = 2

	// chunkSize is the granularity at which synthesised PCM is emitted on
	// the stream channel.
	chunkSize = 4096
)

// APIMode selects which Coqui server API the provider targets.
type APIMode string

const (
	// APIModeStandard targets the standard Coqui TTS server (/api/tts).
	// This is the default mode.
	APIModeStandard APIMode = "standard"

	// APIModeXTTS targets the Coqui XTTS v2 API server (/tts_to_audio/).
	APIModeXTTS APIMode = "xtts"
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage sets the language code sent to the server (e.g. "en", "de").
// Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithSpeaker selects a speaker on multi-speaker models. In XTTS mode this
// names the speaker WAV and is required by the server.
func WithSpeaker(id string) Option {
	return func(p *Provider) {
		p.speaker = id
	}
}

// WithAPIMode sets the server API mode. Use APIModeStandard (default) for
// the standard Coqui TTS image or APIModeXTTS for the XTTS v2 API server.
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) {
		p.apiMode = mode
	}
}

// WithTimeout sets the per-sentence HTTP timeout. Defaults to 30s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the underlying HTTP client. Useful in tests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements tts.Provider against a local Coqui server. Safe for
// concurrent use; parallel Synthesize calls map to parallel server requests.
type Provider struct {
	serverURL  string
	language   string
	speaker    string
	apiMode    APIMode
	sampleRate int
	httpClient *http.Client
}

// New creates a Provider targeting the server at serverURL (e.g.
// "http://localhost:5002"). Synthesised audio is converted to mono PCM at
// sampleRate regardless of the model's native format.
func New(serverURL string, sampleRate int, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("coqui: sample rate %d must be positive", sampleRate)
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		apiMode:    APIModeStandard,
		sampleRate: sampleRate,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	if p.apiMode == APIModeXTTS && p.speaker == "" {
		return nil, errors.New("coqui: XTTS mode requires a speaker, use WithSpeaker")
	}
	return p, nil
}

// ttsRequest is the JSON body sent to POST /tts_to_audio/ (XTTS mode).
type ttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

// Synthesize implements tts.Provider. The excitement setting has no
// server-side counterpart and is ignored; delivery intensity on this backend
// comes from the model alone.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Stream, error) {
	sentences := splitSentences(req.Text)

	out := make(chan []byte, 256)
	st := tts.NewStream(out)

	go func() {
		defer close(out)

		// Cancel in-flight sentence requests as soon as the collector stops,
		// whether from an error or a consumer that walked away.
		sctx, cancel := context.WithCancel(ctx)
		defer cancel()

		type result struct {
			pcm []byte
			err error
		}

		// The dispatcher launches one request per sentence; the pending
		// buffer caps the lookahead while keeping results in sentence order.
		pending := make(chan chan result, sentenceLookahead)
		go func() {
			defer close(pending)
			for _, sentence := range sentences {
				ch := make(chan result, 1)
				select {
				case pending <- ch:
				case <-sctx.Done():
					return
				}
				go func(s string) {
					pcm, err := p.synthesize(sctx, s)
					ch <- result{pcm: pcm, err: err}
				}(sentence)
			}
		}()

		for ch := range pending {
			var res result
			select {
			case res = <-ch:
			case <-sctx.Done():
				st.SetErr(sctx.Err())
				return
			}
			if res.err != nil {
				st.SetErr(res.err)
				return
			}
			pcm := res.pcm
			for len(pcm) > 0 {
				end := min(chunkSize, len(pcm))
				select {
				case out <- pcm[:end:end]:
				case <-sctx.Done():
					st.SetErr(sctx.Err())
					return
				}
				pcm = pcm[end:]
			}
		}
	}()

	return st, nil
}

// synthesize performs one HTTP call for a single sentence and returns mono
// PCM at the provider's sample rate.
func (p *Provider) synthesize(ctx context.Context, sentence string) ([]byte, error) {
	var resp *http.Response
	var err error
	if p.apiMode == APIModeXTTS {
		resp, err = p.postXTTS(ctx, sentence)
	} else {
		resp, err = p.getStandard(ctx, sentence)
	}
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("coqui: server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	pcm, format, err := audio.DecodeWAV(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: decode response: %w", err)
	}
	if format.Channels == 2 {
		pcm = audio.StereoToMono(pcm)
	}
	if format.SampleRate != p.sampleRate {
		pcm = audio.ResampleMono16(pcm, format.SampleRate, p.sampleRate)
	}
	return pcm, nil
}

// getStandard issues GET /api/tts with query parameters (standard mode).
func (p *Provider) getStandard(ctx context.Context, sentence string) (*http.Response, error) {
	params := url.Values{}
	params.Set("text", sentence)
	if p.speaker != "" {
		params.Set("speaker_id", p.speaker)
	}
	if p.language != "" {
		params.Set("language_id", p.language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+apiTTSEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create request: %w", err)
	}
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: GET %s: %w", apiTTSEndpoint, err)
	}
	return resp, nil
}

// postXTTS issues POST /tts_to_audio/ with a JSON body (XTTS v2 mode).
func (p *Provider) postXTTS(ctx context.Context, sentence string) (*http.Response, error) {
	data, err := json.Marshal(ttsRequest{
		Text:       sentence,
		SpeakerWav: p.speaker,
		Language:   p.language,
	})
	if err != nil {
		return nil, fmt.Errorf("coqui: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+ttsEndpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("coqui: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: POST %s: %w", ttsEndpoint, err)
	}
	return resp, nil
}

// splitSentences breaks text at '.', '!' or '?' followed by whitespace or
// end of string, so decimals like "3.14" stay intact. A trailing fragment
// without terminal punctuation is kept as a final sentence.
func splitSentences(text string) []string {
	var out []string
	rest := text
	for {
		idx := findSentenceBoundary(rest)
		if idx < 0 {
			break
		}
		if s := strings.TrimSpace(rest[:idx+1]); s != "" {
			out = append(out, s)
		}
		rest = rest[idx+1:]
	}
	if s := strings.TrimSpace(rest); s != "" {
		out = append(out, s)
	}
	return out
}

// findSentenceBoundary returns the index of the first sentence-ending
// character that is at the end of s or immediately followed by whitespace,
// or -1 when none exists.
func findSentenceBoundary(s string) int {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '.' || c == '!' || c == '?' {
			if i+1 >= len(s) || unicode.IsSpace(rune(s[i+1])) {
				return i
			}
		}
	}
	return -1
}
