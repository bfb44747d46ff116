// Package tts defines the Provider interface for text-to-speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., ElevenLabs or the
// OpenAI speech API) and presents a uniform streaming interface: Synthesize
// accepts one utterance and returns a [Stream] of raw PCM chunks as they
// become available, so playback can begin before synthesis completes.
//
// Implementations are constructed for a target sample rate and must emit
// little-endian 16-bit mono PCM at that rate, resampling internally if the
// backend synthesizes at a different one.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"sync/atomic"
)

// Request is a single utterance to synthesize.
type Request struct {
	// Text is the full commentary line to speak.
	Text string

	// Excitement is the delivery intensity on a 0-10 scale. It selects the
	// voice settings band via [SettingsFor]: 0 is a calm studio read, 10 is
	// a full-throated roar.
	Excitement int
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize starts streaming synthesis of req and returns the live
	// stream. Chunks arrive on Stream.C until the utterance completes, the
	// backend fails mid-stream, or ctx is cancelled; the channel is closed
	// in all three cases and Stream.Err distinguishes them.
	//
	// Returns a non-nil error only if the stream cannot be started. The
	// caller must drain Stream.C to release the provider's goroutine.
	Synthesize(ctx context.Context, req Request) (*Stream, error)
}

// Stream is one live synthesis stream. PCM chunks arrive on C; after C is
// closed, Err reports how the stream ended. Chunk boundaries are arbitrary
// and may split samples.
type Stream struct {
	// C delivers raw s16le mono PCM chunks. Closed by the provider. The
	// receiver owns delivered slices; the provider never reuses them.
	C <-chan []byte

	err atomic.Pointer[error]
}

// NewStream wraps c for delivery to a consumer. Providers construct one per
// Synthesize call.
func NewStream(c <-chan []byte) *Stream {
	return &Stream{C: c}
}

// SetErr records a mid-stream failure. Providers call this before closing C
// so consumers can distinguish a clean completion from an aborted one.
func (s *Stream) SetErr(err error) {
	s.err.Store(&err)
}

// Err returns the error that ended the stream, or nil if it completed
// cleanly. Meaningful once C is closed.
func (s *Stream) Err() error {
	if p := s.err.Load(); p != nil {
		return *p
	}
	return nil
}
