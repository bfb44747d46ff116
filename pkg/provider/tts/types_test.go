package tts

import "testing"

func TestSettingsFor_Bands(t *testing.T) {
	calm := SettingsFor(0)
	medium := SettingsFor(3)
	excited := SettingsFor(9)

	if calm.Stability != 0.5 || calm.Speed != 0.9 {
		t.Errorf("unexpected calm settings: %+v", calm)
	}
	if medium.Stability != 0.3 || medium.Speed != 0.95 {
		t.Errorf("unexpected medium settings: %+v", medium)
	}
	if excited.Stability != 0.15 || excited.Speed != 1.0 {
		t.Errorf("unexpected excited settings: %+v", excited)
	}
}

func TestSettingsFor_MonotonicInExcitement(t *testing.T) {
	prev := SettingsFor(-2)
	for exc := -1; exc <= 11; exc++ {
		cur := SettingsFor(exc)
		if cur.Stability > prev.Stability {
			t.Errorf("stability rose from %v to %v at excitement %d", prev.Stability, cur.Stability, exc)
		}
		if cur.Speed < prev.Speed {
			t.Errorf("speed fell from %v to %v at excitement %d", prev.Speed, cur.Speed, exc)
		}
		if cur.Style < prev.Style {
			t.Errorf("style fell from %v to %v at excitement %d", prev.Style, cur.Style, exc)
		}
		prev = cur
	}
}

func TestSettingsFor_BandBoundaries(t *testing.T) {
	if SettingsFor(0) != SettingsFor(-5) {
		t.Error("everything at or below zero should share the calm band")
	}
	if SettingsFor(1) != SettingsFor(5) {
		t.Error("one through five should share the medium band")
	}
	if SettingsFor(6) != SettingsFor(10) {
		t.Error("six and above should share the excited band")
	}
	if SettingsFor(5) == SettingsFor(6) {
		t.Error("five and six should sit in different bands")
	}
}
