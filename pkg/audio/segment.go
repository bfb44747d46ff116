package audio

import (
	"sync/atomic"
)

// FinishReason identifies how playback of a [Segment] ended. It is carried in
// the [Result] delivered on the segment's Done channel.
type FinishReason int

const (
	// Drained means the segment's audio stream was consumed to the end and
	// every decoded frame was handed to the output device.
	Drained FinishReason = iota

	// Preempted means a higher-priority segment displaced this one before it
	// finished. Result.FramesPlayed tells how much (if any) was heard.
	Preempted

	// StreamFailed means the segment's audio channel closed with an error
	// before any frame reached the device. The event behind it is skipped.
	StreamFailed
)

// String returns the human-readable name of the finish reason.
func (r FinishReason) String() string {
	switch r {
	case Drained:
		return "DRAINED"
	case Preempted:
		return "PREEMPTED"
	case StreamFailed:
		return "STREAM_FAILED"
	default:
		return "UNKNOWN"
	}
}

// Result reports the outcome of a submitted [Segment]. Exactly one Result is
// delivered on [Segment.Done] once the mixer is finished with the segment.
type Result struct {
	Reason FinishReason

	// FramesPlayed is the number of mono source frames of this segment that
	// were mixed into device output. Zero means the listener heard nothing.
	FramesPlayed int

	// Err is the stream error recorded by the producer, if any. It may be
	// non-nil even for Drained results (a stream that failed mid-utterance
	// still plays its partial audio).
	Err error
}

// Segment is one utterance of synthesized speech submitted to a [Mixer].
// Audio is streamed — PCM chunks arrive incrementally on the Audio channel —
// so playback can begin before synthesis completes.
type Segment struct {
	// ID identifies the commentary event this speech belongs to. It is used
	// in logs, metrics and the audio history archive.
	ID string

	// Audio is a read-only channel of raw little-endian 16-bit mono PCM at
	// the mixer's configured sample rate. The producer closes the channel
	// when the utterance ends or a mid-stream error occurs; call
	// [Segment.Err] after close to distinguish the two.
	Audio <-chan []byte

	// Priority is the scheduling class: smaller values win. It is advisory —
	// the authoritative priority is the explicit parameter on
	// [Mixer.Submit], so call-site context can elevate a segment without
	// mutating the struct.
	Priority int

	done      chan Result
	finished  atomic.Bool
	streamErr atomic.Pointer[error]
}

// NewSegment creates a segment for the given event id reading PCM chunks
// from audio.
func NewSegment(id string, audio <-chan []byte, priority int) *Segment {
	return &Segment{
		ID:       id,
		Audio:    audio,
		Priority: priority,
		done:     make(chan Result, 1),
	}
}

// Done returns a channel that delivers exactly one [Result] when the mixer
// has finished with this segment (drained, preempted or failed).
func (s *Segment) Done() <-chan Result {
	return s.done
}

// Finish records the segment's outcome and delivers it on the Done channel.
// Subsequent calls are no-ops. Mixers call this; producers never do.
func (s *Segment) Finish(res Result) {
	if s.finished.CompareAndSwap(false, true) {
		if res.Err == nil {
			res.Err = s.Err()
		}
		s.done <- res
	}
}

// Err returns the error that caused the Audio channel to close prematurely,
// or nil if the stream completed cleanly. Meaningful once Audio is closed.
func (s *Segment) Err() error {
	if p := s.streamErr.Load(); p != nil {
		return *p
	}
	return nil
}

// SetStreamErr records a mid-stream error. The producer should call this
// before closing the Audio channel so the mixer can distinguish a clean
// completion from a failure.
func (s *Segment) SetStreamErr(err error) {
	s.streamErr.Store(&err)
}
