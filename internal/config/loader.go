package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// envPattern matches ${VAR} references in the raw config text.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${VAR} references with the value of the environment
// variable VAR. Unset variables expand to the empty string; bare $VAR forms
// are left untouched.
func expandEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(m string) string {
		return os.Getenv(m[2 : len(m)-1])
	})
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r over the defaults from
// [Default] and validates the result. ${VAR} environment references are
// expanded before decoding, and unknown keys are rejected.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(strings.NewReader(expandEnv(string(data))))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
// Degraded-but-runnable conditions (no voice key, missing ambience file,
// file-only archive) are logged as warnings instead of failing.
func Validate(cfg *Config) error {
	var errs []error

	// Log
	if !cfg.Log.Level.IsValid() {
		errs = append(errs, fmt.Errorf("log.level %q is invalid; valid values: debug, info, warn, error", cfg.Log.Level))
	}
	if !cfg.Log.Format.IsValid() {
		errs = append(errs, fmt.Errorf("log.format %q is invalid; valid values: text, json", cfg.Log.Format))
	}

	// Match
	if cfg.Match.SlotHour < 0 || cfg.Match.SlotHour > 23 {
		errs = append(errs, fmt.Errorf("match.slot_hour %d is out of range [0, 23]", cfg.Match.SlotHour))
	}
	if cfg.Match.SlotMinute < 0 || cfg.Match.SlotMinute > 59 {
		errs = append(errs, fmt.Errorf("match.slot_minute %d is out of range [0, 59]", cfg.Match.SlotMinute))
	}
	if cfg.Match.PollInterval <= 0 {
		errs = append(errs, errors.New("match.poll_interval must be positive"))
	}

	// API
	if cfg.API.BaseURL == "" {
		errs = append(errs, errors.New("api.base_url is required"))
	} else if u, err := url.Parse(cfg.API.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("api.base_url %q: %w", cfg.API.BaseURL, err))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs = append(errs, fmt.Errorf("api.base_url %q is invalid; scheme must be http or https", cfg.API.BaseURL))
	}
	if cfg.API.Timeout <= 0 {
		errs = append(errs, errors.New("api.timeout must be positive"))
	}

	// Stream
	if cfg.Stream.ReconnectInitial <= 0 {
		errs = append(errs, errors.New("stream.reconnect_initial must be positive"))
	}
	if cfg.Stream.ReconnectMax <= 0 {
		errs = append(errs, errors.New("stream.reconnect_max must be positive"))
	}
	if cfg.Stream.ReconnectInitial > 0 && cfg.Stream.ReconnectMax > 0 &&
		cfg.Stream.ReconnectInitial > cfg.Stream.ReconnectMax {
		errs = append(errs, fmt.Errorf("stream.reconnect_initial %s exceeds stream.reconnect_max %s",
			cfg.Stream.ReconnectInitial, cfg.Stream.ReconnectMax))
	}

	// TTS
	if cfg.TTS.VoiceID == "" {
		errs = append(errs, errors.New("tts.voice_id is required"))
	}
	if cfg.TTS.Timeout <= 0 {
		errs = append(errs, errors.New("tts.timeout must be positive"))
	}
	if cfg.TTS.APIKey == "" {
		slog.Warn("tts.api_key is empty; synthesis against the live service will fail")
	}
	if fb := cfg.TTS.Fallback; fb != nil && fb.CoquiURL != "" {
		if u, err := url.Parse(fb.CoquiURL); err != nil {
			errs = append(errs, fmt.Errorf("tts.fallback.coqui_url %q: %w", fb.CoquiURL, err))
		} else if u.Scheme != "http" && u.Scheme != "https" {
			errs = append(errs, fmt.Errorf("tts.fallback.coqui_url %q is invalid; scheme must be http or https", fb.CoquiURL))
		}
	}

	// Audio
	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}
	if cfg.Audio.BlockFrames <= 0 {
		errs = append(errs, fmt.Errorf("audio.block_frames %d must be positive", cfg.Audio.BlockFrames))
	}
	if cfg.Audio.NominalAmbienceGain < 0 || cfg.Audio.NominalAmbienceGain > 1 {
		errs = append(errs, fmt.Errorf("audio.nominal_ambience_gain %.2f is out of range [0, 1]", cfg.Audio.NominalAmbienceGain))
	}
	if cfg.Audio.DuckedAmbienceGain < 0 || cfg.Audio.DuckedAmbienceGain > 1 {
		errs = append(errs, fmt.Errorf("audio.ducked_ambience_gain %.2f is out of range [0, 1]", cfg.Audio.DuckedAmbienceGain))
	}
	if cfg.Audio.DuckedAmbienceGain > cfg.Audio.NominalAmbienceGain {
		errs = append(errs, fmt.Errorf("audio.ducked_ambience_gain %.2f exceeds audio.nominal_ambience_gain %.2f",
			cfg.Audio.DuckedAmbienceGain, cfg.Audio.NominalAmbienceGain))
	}
	if cfg.Audio.DuckRamp <= 0 {
		errs = append(errs, errors.New("audio.duck_ramp must be positive"))
	}
	if cfg.Audio.AmbiencePath != "" {
		if _, err := os.Stat(cfg.Audio.AmbiencePath); err != nil {
			slog.Warn("ambience file missing; mixer will run without a bed",
				"path", cfg.Audio.AmbiencePath)
		}
	}

	// History
	if cfg.History.SaveAudio && cfg.History.Dir == "" {
		errs = append(errs, errors.New("history.dir is required when history.save_audio is set"))
	}
	if cfg.History.SaveAudio && cfg.History.DSN == "" {
		slog.Warn("history.dsn is empty; clips will be archived to disk only")
	}

	// State
	if cfg.State.Path == "" {
		errs = append(errs, errors.New("state.path is required"))
	}

	// Queue
	if cfg.Queue.DedupSize <= 0 {
		errs = append(errs, fmt.Errorf("queue.dedup_size %d must be positive", cfg.Queue.DedupSize))
	}

	return errors.Join(errs...)
}
