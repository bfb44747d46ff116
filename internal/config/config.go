// Package config provides the configuration schema, loader, and hot-reload
// watcher for the stumpcast commentary engine.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"
)

// LogLevel controls log verbosity for the engine.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SlogLevel maps l onto the slog level space. Unrecognised values read as
// info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogFormat selects the slog handler for engine output.
type LogFormat string

const (
	LogText LogFormat = "text"
	LogJSON LogFormat = "json"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool {
	return f == LogText || f == LogJSON
}

// Duration is a [time.Duration] that unmarshals from YAML strings like
// "20s" or "200ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) String() string { return time.Duration(d).String() }

// Config is the root configuration structure for the engine.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Match   MatchConfig   `yaml:"match"`
	API     APIConfig     `yaml:"api"`
	Stream  StreamConfig  `yaml:"stream"`
	TTS     TTSConfig     `yaml:"tts"`
	Audio   AudioConfig   `yaml:"audio"`
	History HistoryConfig `yaml:"history"`
	State   StateConfig   `yaml:"state"`
	Queue   QueueConfig   `yaml:"queue"`
	Ops     OpsConfig     `yaml:"ops"`
}

// LogConfig holds logging settings. Level is hot-reloadable.
type LogConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// MatchConfig selects which match to commentate. When ID is empty the engine
// discovers the current match from the slot schedule.
type MatchConfig struct {
	// ID pins the engine to an explicit match. Optional.
	ID string `yaml:"id"`

	// SlotHour and SlotMinute name the daily slot used for discovery when ID
	// is unset.
	SlotHour   int `yaml:"slot_hour"`
	SlotMinute int `yaml:"slot_minute"`

	// PollInterval is how often the match phase is re-fetched.
	PollInterval Duration `yaml:"poll_interval"`
}

// APIConfig locates the commentary backend.
type APIConfig struct {
	// BaseURL is the backend root, e.g. "http://localhost:8000". The push
	// WebSocket address is derived from it.
	BaseURL string `yaml:"base_url"`

	// Timeout bounds each REST call against the backend.
	Timeout Duration `yaml:"timeout"`
}

// StreamConfig tunes the push connection.
type StreamConfig struct {
	// AuthToken, when set, is sent as a Bearer token on the WebSocket
	// handshake and on catch-up fetches. Optional.
	AuthToken string `yaml:"auth_token"`

	// ReconnectInitial and ReconnectMax bound the exponential backoff
	// between reconnection attempts.
	ReconnectInitial Duration `yaml:"reconnect_initial"`
	ReconnectMax     Duration `yaml:"reconnect_max"`
}

// TTSConfig configures the synthesis chain.
type TTSConfig struct {
	// APIKey authenticates against the primary voice service.
	APIKey string `yaml:"api_key"`

	// VoiceID is the primary commentator voice.
	VoiceID string `yaml:"voice_id"`

	// Timeout is the first-byte deadline: synthesis that has produced no
	// audio by then is skipped.
	Timeout Duration `yaml:"timeout"`

	// Fallback, when set, adds a backup voice service behind the primary.
	Fallback *FallbackConfig `yaml:"fallback"`
}

// FallbackConfig names the backup voice services, tried in order: the OpenAI
// speech API when a key is present, then a self-hosted Coqui server when a
// URL is present.
type FallbackConfig struct {
	OpenAIAPIKey string `yaml:"openai_api_key"`
	Voice        string `yaml:"voice"`

	// CoquiURL points at a local Coqui TTS server, e.g.
	// "http://localhost:5002". It needs no key, so it keeps commentary
	// alive when the venue loses internet access.
	CoquiURL string `yaml:"coqui_url"`
}

// AudioConfig shapes the mixer and the device format. The two gains are
// hot-reloadable.
type AudioConfig struct {
	// SampleRate in Hz for the whole pipeline.
	SampleRate int `yaml:"sample_rate"`

	// BlockFrames sizes the playback buffer; the device holds two blocks
	// of this many frames.
	BlockFrames int `yaml:"block_frames"`

	// AmbiencePath is the looping crowd bed. When the file is missing the
	// mixer runs without a bed.
	AmbiencePath string `yaml:"ambience_path"`

	// NominalAmbienceGain is the bed level with no commentary playing;
	// DuckedAmbienceGain the level under speech. Both in [0, 1].
	NominalAmbienceGain float64 `yaml:"nominal_ambience_gain"`
	DuckedAmbienceGain  float64 `yaml:"ducked_ambience_gain"`

	// DuckRamp is the fade time between the two gain levels.
	DuckRamp Duration `yaml:"duck_ramp"`
}

// HistoryConfig controls the audio archive.
type HistoryConfig struct {
	// Dir is the root of the WAV archive.
	Dir string `yaml:"dir"`

	// SaveAudio switches the archive on.
	SaveAudio bool `yaml:"save_audio"`

	// DSN is the PostgreSQL connection string for archive rows. Optional;
	// when empty only files are written.
	DSN string `yaml:"dsn"`
}

// StateConfig locates the runtime checkpoint file.
type StateConfig struct {
	Path string `yaml:"path"`
}

// QueueConfig tunes the event queue.
type QueueConfig struct {
	// DedupSize is the capacity of the seen-event ring.
	DedupSize int `yaml:"dedup_size"`
}

// OpsConfig controls the ops HTTP server.
type OpsConfig struct {
	// ListenAddr enables the ops server when non-empty, e.g. ":9130".
	ListenAddr string `yaml:"listen_addr"`
}

// Default returns the engine defaults; [Load] decodes the file over them so
// omitted keys keep these values.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  LogInfo,
			Format: LogText,
		},
		Match: MatchConfig{
			SlotHour:     21,
			SlotMinute:   0,
			PollInterval: Duration(20 * time.Second),
		},
		API: APIConfig{
			BaseURL: "http://localhost:8000",
			Timeout: Duration(10 * time.Second),
		},
		Stream: StreamConfig{
			ReconnectInitial: Duration(time.Second),
			ReconnectMax:     Duration(30 * time.Second),
		},
		TTS: TTSConfig{
			VoiceID: "PSk5GhCjavRcRMo6NtjK",
			Timeout: Duration(8 * time.Second),
		},
		Audio: AudioConfig{
			SampleRate:          22050,
			BlockFrames:         1024,
			AmbiencePath:        "assets/crowd_22050.wav",
			NominalAmbienceGain: 0.30,
			DuckedAmbienceGain:  0.08,
			DuckRamp:            Duration(200 * time.Millisecond),
		},
		History: HistoryConfig{
			Dir:       "audio_history",
			SaveAudio: true,
		},
		State: StateConfig{
			Path: "state/runtime_state.json",
		},
		Queue: QueueConfig{
			DedupSize: 10000,
		},
	}
}
