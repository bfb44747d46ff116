// Package audio defines the types and interfaces for the engine's audio
// pipeline: PCM segments of synthesized speech, the mixer that arbitrates
// them over the ambience bed, and the output device that pulls mixed blocks.
//
// The two primary abstractions are:
//
//   - [Mixer] — accepts speech [Segment] values, mixes the active one over
//     the looping ambience bed with automatic ducking, and reports a
//     [Result] per segment.
//   - [Device] — wraps a platform audio backend that pulls interleaved
//     stereo PCM from an [io.Reader] on its own realtime thread.
//
// This package lives under pkg/ because alternative device backends are
// expected to implement [Device].
package audio

// Mixer arbitrates synthesized speech over the ambience bed. One segment
// plays at a time; submissions with a strictly higher priority (smaller
// value) than the active segment preempt it at the next block boundary,
// while equal or lower priorities queue in FIFO order within their level.
//
// Implementations must be safe for concurrent use.
type Mixer interface {
	// Submit schedules segment for playback with the given priority
	// (smaller = higher; the value overrides segment.Priority). The call
	// never blocks on audio progress; completion is reported on
	// segment.Done.
	Submit(segment *Segment, priority int) error

	// Interrupt stops the currently playing segment, if any, reporting
	// [Preempted] on its Done channel. Queued segments are unaffected.
	Interrupt()
}
