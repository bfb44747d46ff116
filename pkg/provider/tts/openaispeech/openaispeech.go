// Package openaispeech provides a TTS provider backed by the OpenAI speech
// API. It is the fallback voice when the primary provider is unavailable: the
// API does not stream PCM incrementally at a fixed rate, so the synthesized
// audio is buffered, resampled to the engine rate, and then chunked out.
package openaispeech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/ovalsounds/stumpcast/pkg/audio"
	"github.com/ovalsounds/stumpcast/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

const (
	// nativeSampleRate is the rate of the API's PCM response format
	// (24 kHz mono s16le).
	nativeSampleRate = 24000

	defaultModel = oai.SpeechModelGPT4oMiniTTS
	defaultVoice = oai.AudioSpeechNewParamsVoice("onyx")

	// chunkSize is the granularity of PCM chunks emitted on the stream.
	chunkSize = 4096
)

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	timeout time.Duration
	model   oai.SpeechModel
	voice   oai.AudioSpeechNewParamsVoice
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithModel sets the speech model (e.g., "gpt-4o-mini-tts").
func WithModel(model string) Option {
	return func(c *config) {
		c.model = oai.SpeechModel(model)
	}
}

// WithVoice sets the voice name (e.g., "onyx", "nova").
func WithVoice(voice string) Option {
	return func(c *config) {
		c.voice = oai.AudioSpeechNewParamsVoice(voice)
	}
}

// Provider implements tts.Provider using the OpenAI speech API.
type Provider struct {
	client     oai.Client
	model      oai.SpeechModel
	voice      oai.AudioSpeechNewParamsVoice
	sampleRate int
}

// New constructs a new OpenAI speech Provider emitting PCM at the given
// sample rate.
func New(apiKey string, sampleRate int, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openaispeech: apiKey must not be empty")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("openaispeech: sampleRate must be positive, got %d", sampleRate)
	}

	cfg := &config{
		model: defaultModel,
		voice: defaultVoice,
	}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Provider{
		client:     oai.NewClient(reqOpts...),
		model:      cfg.model,
		voice:      cfg.voice,
		sampleRate: sampleRate,
	}, nil
}

// deliveryInstructions maps excitement to a spoken-delivery prompt for models
// that support natural-language steering.
func deliveryInstructions(excitement int) string {
	switch {
	case excitement <= 0:
		return "Speak as a measured cricket commentator, relaxed and conversational between deliveries."
	case excitement <= 5:
		return "Speak as an engaged cricket commentator with clear, building energy."
	default:
		return "Speak as a thrilled cricket commentator calling a huge moment, urgent and loud."
	}
}

// Synthesize implements tts.Provider. The full response is synthesized and
// resampled before the first chunk is emitted.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Stream, error) {
	if req.Text == "" {
		return nil, errors.New("openaispeech: text must not be empty")
	}

	settings := tts.SettingsFor(req.Excitement)
	params := oai.AudioSpeechNewParams{
		Model:          p.model,
		Input:          req.Text,
		Voice:          p.voice,
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
		Speed:          param.NewOpt(settings.Speed),
		Instructions:   param.NewOpt(deliveryInstructions(req.Excitement)),
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openaispeech: synthesis request: %w", err)
	}

	ch := make(chan []byte, 256)
	st := tts.NewStream(ch)

	go func() {
		defer close(ch)
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			st.SetErr(fmt.Errorf("openaispeech: read synthesis body: %w", err))
			return
		}

		pcm := audio.ResampleMono16(raw, nativeSampleRate, p.sampleRate)
		for off := 0; off < len(pcm); off += chunkSize {
			end := off + chunkSize
			if end > len(pcm) {
				end = len(pcm)
			}
			select {
			case ch <- pcm[off:end]:
			case <-ctx.Done():
				st.SetErr(ctx.Err())
				return
			}
		}
	}()

	return st, nil
}
