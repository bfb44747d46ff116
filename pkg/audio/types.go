package audio

import "time"

// Clip is a finished span of mixed output captured for archival: the speech
// of one commentary event plus the ducked ambience under it.
type Clip struct {
	// EventID identifies the commentary event the clip belongs to.
	EventID string

	// Data is interleaved little-endian 16-bit PCM.
	Data []byte

	// SampleRate in Hz (e.g. 22050).
	SampleRate int

	// Channels: 1 for mono, 2 for interleaved stereo.
	Channels int

	// Duration is the playback length of Data.
	Duration time.Duration
}
