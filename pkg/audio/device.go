package audio

import "io"

// Device is an audio output backend. Start hands the backend a source of
// interleaved little-endian 16-bit stereo PCM; the backend pulls from it on
// its own playback thread until Close. The source's Read must never block —
// it zero-fills instead of stalling the device.
//
// Implementations must be safe for concurrent use.
type Device interface {
	// Start opens the device and begins pulling mixed PCM from src.
	// It returns once playback is running.
	Start(src io.Reader) error

	// Close stops playback and releases the device. Safe to call more than
	// once; subsequent calls are no-ops.
	Close() error
}
