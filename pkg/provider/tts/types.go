package tts

// VoiceSettings are the delivery tuning knobs shared by speech APIs. The
// JSON field names follow the ElevenLabs voice_settings object; other
// providers map the fields onto their own parameters.
type VoiceSettings struct {
	// Stability controls delivery consistency. Lower values give a more
	// animated, variable read.
	Stability float64 `json:"stability"`

	// SimilarityBoost controls adherence to the reference voice.
	SimilarityBoost float64 `json:"similarity_boost"`

	// Style exaggerates the voice's speaking style.
	Style float64 `json:"style"`

	// Speed is the speaking rate multiplier (1.0 = native pace).
	Speed float64 `json:"speed"`

	// UseSpeakerBoost enables the provider's presence enhancement.
	UseSpeakerBoost bool `json:"use_speaker_boost"`
}

// SettingsFor maps a 0-10 excitement score onto a delivery band. Dead balls
// get a calm, measured read; anything from a single to a boundary gets the
// standard animated commentary voice; wickets, sixes and match moments get
// the full unstable roar.
func SettingsFor(excitement int) VoiceSettings {
	switch {
	case excitement <= 0:
		return VoiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.9,
			Style:           0.7,
			Speed:           0.9,
			UseSpeakerBoost: true,
		}
	case excitement <= 5:
		return VoiceSettings{
			Stability:       0.3,
			SimilarityBoost: 0.9,
			Style:           0.9,
			Speed:           0.95,
			UseSpeakerBoost: true,
		}
	default:
		return VoiceSettings{
			Stability:       0.15,
			SimilarityBoost: 0.9,
			Style:           0.9,
			Speed:           1.0,
			UseSpeakerBoost: true,
		}
	}
}

// Voice is one entry in a provider's voice catalogue.
type Voice struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Category groups the voice (premade, cloned, generated, ...).
	Category string
}
