package config_test

import (
	"strings"
	"testing"

	"github.com/ovalsounds/stumpcast/internal/config"
)

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	yaml := `
log:
  level: verbose
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
	if !strings.Contains(err.Error(), "log.level") {
		t.Errorf("error should mention log.level, got: %v", err)
	}
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	t.Parallel()
	yaml := `
log:
  format: xml
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log format, got nil")
	}
	if !strings.Contains(err.Error(), "log.format") {
		t.Errorf("error should mention log.format, got: %v", err)
	}
}

func TestValidate_SlotHourOutOfRange(t *testing.T) {
	t.Parallel()
	yaml := `
match:
  slot_hour: 24
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for slot_hour 24, got nil")
	}
	if !strings.Contains(err.Error(), "match.slot_hour") {
		t.Errorf("error should mention match.slot_hour, got: %v", err)
	}
}

func TestValidate_NonPositivePollInterval(t *testing.T) {
	t.Parallel()
	yaml := `
match:
  poll_interval: 0s
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for zero poll_interval, got nil")
	}
	if !strings.Contains(err.Error(), "match.poll_interval") {
		t.Errorf("error should mention match.poll_interval, got: %v", err)
	}
}

func TestValidate_MissingBaseURL(t *testing.T) {
	t.Parallel()
	yaml := `
api:
  base_url: ""
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for empty base_url, got nil")
	}
	if !strings.Contains(err.Error(), "api.base_url is required") {
		t.Errorf("error should mention api.base_url, got: %v", err)
	}
}

func TestValidate_BaseURLSchemeRejected(t *testing.T) {
	t.Parallel()
	yaml := `
api:
  base_url: ftp://scores.example.com
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for ftp base_url, got nil")
	}
	if !strings.Contains(err.Error(), "http or https") {
		t.Errorf("error should mention the allowed schemes, got: %v", err)
	}
}

func TestValidate_CoquiURLSchemeRejected(t *testing.T) {
	t.Parallel()
	yaml := `
tts:
  fallback:
    coqui_url: localhost:5002
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for schemeless coqui_url, got nil")
	}
	if !strings.Contains(err.Error(), "coqui_url") {
		t.Errorf("error should name the offending key, got: %v", err)
	}
}

func TestValidate_ReconnectBoundsInverted(t *testing.T) {
	t.Parallel()
	yaml := `
stream:
  reconnect_initial: 45s
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for reconnect_initial above reconnect_max, got nil")
	}
	if !strings.Contains(err.Error(), "exceeds stream.reconnect_max") {
		t.Errorf("error should mention the inverted bounds, got: %v", err)
	}
}

func TestValidate_MissingVoiceID(t *testing.T) {
	t.Parallel()
	yaml := `
tts:
  voice_id: ""
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for empty voice_id, got nil")
	}
	if !strings.Contains(err.Error(), "tts.voice_id") {
		t.Errorf("error should mention tts.voice_id, got: %v", err)
	}
}

func TestValidate_GainOutOfRange(t *testing.T) {
	t.Parallel()
	yaml := `
audio:
  nominal_ambience_gain: 1.5
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for gain above 1, got nil")
	}
	if !strings.Contains(err.Error(), "audio.nominal_ambience_gain") {
		t.Errorf("error should mention the gain, got: %v", err)
	}
}

func TestValidate_DuckedGainAboveNominal(t *testing.T) {
	t.Parallel()
	yaml := `
audio:
  nominal_ambience_gain: 0.2
  ducked_ambience_gain: 0.6
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for ducked gain above nominal, got nil")
	}
	if !strings.Contains(err.Error(), "exceeds audio.nominal_ambience_gain") {
		t.Errorf("error should mention the gain ordering, got: %v", err)
	}
}

func TestValidate_NonPositiveSampleRate(t *testing.T) {
	t.Parallel()
	yaml := `
audio:
  sample_rate: 0
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for zero sample_rate, got nil")
	}
	if !strings.Contains(err.Error(), "audio.sample_rate") {
		t.Errorf("error should mention audio.sample_rate, got: %v", err)
	}
}

func TestValidate_HistoryDirRequiredWhenSaving(t *testing.T) {
	t.Parallel()
	yaml := `
history:
  dir: ""
  save_audio: true
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for empty history dir, got nil")
	}
	if !strings.Contains(err.Error(), "history.dir") {
		t.Errorf("error should mention history.dir, got: %v", err)
	}
}

func TestValidate_HistoryDirOptionalWhenNotSaving(t *testing.T) {
	t.Parallel()
	yaml := `
history:
  dir: ""
  save_audio: false
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_MissingStatePath(t *testing.T) {
	t.Parallel()
	yaml := `
state:
  path: ""
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for empty state path, got nil")
	}
	if !strings.Contains(err.Error(), "state.path") {
		t.Errorf("error should mention state.path, got: %v", err)
	}
}

func TestValidate_NonPositiveDedupSize(t *testing.T) {
	t.Parallel()
	yaml := `
queue:
  dedup_size: -1
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for negative dedup_size, got nil")
	}
	if !strings.Contains(err.Error(), "queue.dedup_size") {
		t.Errorf("error should mention queue.dedup_size, got: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := `
log:
  level: verbose
api:
  base_url: ""
queue:
  dedup_size: 0
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "log.level") {
		t.Errorf("error should mention log.level, got: %v", err)
	}
	if !strings.Contains(errStr, "api.base_url") {
		t.Errorf("error should mention api.base_url, got: %v", err)
	}
	if !strings.Contains(errStr, "queue.dedup_size") {
		t.Errorf("error should mention queue.dedup_size, got: %v", err)
	}
}
