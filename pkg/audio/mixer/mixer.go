package mixer

import (
	"container/heap"
	"errors"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ovalsounds/stumpcast/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.Mixer = (*Engine)(nil)
	_ io.Reader   = (*Engine)(nil)
)

// Default ducking parameters: the ambience bed sits at the nominal gain and
// ramps down to the ducked gain while commentary is audible.
const (
	DefaultNominalGain = 0.30
	DefaultDuckedGain  = 0.08
	DefaultDuckRamp    = 200 * time.Millisecond
)

// ErrClosed is returned by Submit after the engine has been closed.
var ErrClosed = errors.New("mixer: engine closed")

const frameBytes = 4 // s16le stereo

// Option configures an [Engine] during construction.
type Option func(*Engine)

// WithBed installs a looping ambience bed. Without one the engine mixes
// speech over silence.
func WithBed(bed *Bed) Option {
	return func(e *Engine) {
		e.bed = bed
	}
}

// WithDucking overrides the ambience gain levels and the ramp duration.
func WithDucking(nominal, ducked float64, ramp time.Duration) Option {
	return func(e *Engine) {
		e.nominal = nominal
		e.ducked = ducked
		e.ramp = ramp
	}
}

// WithCapture installs a callback receiving the mixed waveform of every
// segment that put at least one frame of speech on air. The callback runs on
// the playback thread and must return promptly.
func WithCapture(fn func(audio.Clip)) Option {
	return func(e *Engine) {
		e.onClip = fn
	}
}

// Engine is a concrete [audio.Mixer] that plays one speech segment at a time
// over a looping ambience bed and serves the blend as interleaved stereo
// s16le PCM through [Engine.Read].
//
// The output device pulls blocks from Read on its own playback thread. Read
// never blocks on locks or upstream I/O: a contended scheduling lock means
// one block of stale scheduling state, a stalled TTS stream means bare
// ambience for the gap. Pending segments wait in a priority queue backed by
// [container/heap]; a segment submitted with a smaller priority value than
// the one currently audible displaces it at the next block boundary.
//
// All exported methods are safe for concurrent use.
type Engine struct {
	format  audio.Format
	nominal float64
	ducked  float64
	ramp    time.Duration

	bed    *Bed
	duck   *ducker
	onClip func(audio.Clip)

	// Playback-thread state. Close takes rmu to reclaim it once the final
	// Read has returned.
	rmu    sync.Mutex
	active *slot

	mu        sync.Mutex // scheduling state; Read only ever TryLocks it
	pending   segmentHeap
	seq       uint64 // monotonic counter for FIFO ordering
	interrupt bool

	closed atomic.Bool
}

// New creates an [Engine] producing stereo output at the format's sample
// rate. The engine is passive until a device starts pulling from Read.
func New(format audio.Format, opts ...Option) *Engine {
	format.Channels = 2
	e := &Engine{
		format:  format,
		nominal: DefaultNominalGain,
		ducked:  DefaultDuckedGain,
		ramp:    DefaultDuckRamp,
	}
	for _, o := range opts {
		o(e)
	}
	rampFrames := int(e.ramp.Seconds() * float64(format.SampleRate))
	e.duck = newDucker(e.nominal, e.ducked, rampFrames)
	heap.Init(&e.pending)
	return e
}

// Submit queues segment for playback at the given priority. Smaller values
// play first; a smaller value than the currently audible segment's displaces
// it at the next block boundary. Completion is reported on the segment's
// Done channel.
func (e *Engine) Submit(segment *audio.Segment, priority int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed.Load() {
		return ErrClosed
	}
	heap.Push(&e.pending, entry{
		segment:  segment,
		priority: priority,
		seq:      e.seq,
	})
	e.seq++
	return nil
}

// Interrupt stops the currently audible segment at the next block boundary.
// Queued segments are preserved. If nothing is playing, Interrupt is a no-op.
func (e *Engine) Interrupt() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.interrupt = true
}

// SetGains retunes the ambience levels at runtime. The current gain ramps
// toward whichever level is the active target.
func (e *Engine) SetGains(nominal, ducked float64) {
	e.duck.SetLevels(nominal, ducked)
}

// Gain reports the current ambience gain. Intended for tests and gauges.
func (e *Engine) Gain() float64 {
	return e.duck.Gain()
}

// Format returns the engine's output format.
func (e *Engine) Format() audio.Format {
	return e.format
}

// Read fills p with the next block of mixed output. It is the device's pull
// callback and must stay realtime-safe: speech underrun degrades to bare
// ambience, a contended scheduling lock defers queue changes by one block.
// After Close, Read returns io.EOF.
func (e *Engine) Read(p []byte) (int, error) {
	if e.closed.Load() {
		return 0, io.EOF
	}
	if !e.rmu.TryLock() {
		return 0, io.EOF
	}
	defer e.rmu.Unlock()
	if e.closed.Load() {
		return 0, io.EOF
	}

	n := len(p) / frameBytes * frameBytes
	if n == 0 {
		return 0, nil
	}
	frames := n / frameBytes

	// Scheduling at the block boundary: handle interrupts, preempt, promote
	// the next pending segment, restore ambience when idle.
	if e.mu.TryLock() {
		if e.interrupt {
			e.interrupt = false
			e.finishActive(audio.Preempted)
		}
		if e.active != nil && e.pending.Len() > 0 && e.pending[0].priority < e.active.priority {
			e.finishActive(audio.Preempted)
		}
		if e.active == nil && e.pending.Len() > 0 {
			next := heap.Pop(&e.pending).(entry)
			e.active = &slot{seg: next.segment, priority: next.priority}
		}
		if e.active == nil && e.pending.Len() == 0 {
			e.duck.Restore()
		}
		e.mu.Unlock()
	}

	s := e.active
	for f := 0; f < frames; f++ {
		g := e.duck.step()
		var l, r int32
		if e.bed != nil {
			bl, br := e.bed.next()
			l = int32(float64(bl) * g)
			r = int32(float64(br) * g)
		}
		if s != nil {
			if v, ok := s.take(); ok {
				if !s.started {
					// Duck only once speech actually reaches the air.
					s.started = true
					e.duck.Duck()
				}
				s.frames++
				l += int32(v)
				r += int32(v)
			}
		}
		lo, ro := clamp16(l), clamp16(r)
		p[frameBytes*f] = byte(lo)
		p[frameBytes*f+1] = byte(uint16(lo) >> 8)
		p[frameBytes*f+2] = byte(ro)
		p[frameBytes*f+3] = byte(uint16(ro) >> 8)
	}

	if s != nil && s.started && e.onClip != nil {
		s.capture = append(s.capture, p[:n]...)
	}
	if s != nil && s.done() {
		e.finishActive(audio.Drained)
	}
	return n, nil
}

// finishActive completes the active slot and clears it. A stream error
// outside of preemption surfaces as [audio.StreamFailed]. Must be
// called with rmu held.
func (e *Engine) finishActive(reason audio.FinishReason) {
	s := e.active
	if s == nil {
		return
	}
	e.active = nil

	if reason != audio.Preempted && s.seg.Err() != nil {
		reason = audio.StreamFailed
	}
	if e.onClip != nil && s.frames > 0 {
		e.onClip(audio.Clip{
			EventID:    s.seg.ID,
			Data:       s.capture,
			SampleRate: e.format.SampleRate,
			Channels:   2,
			Duration:   time.Duration(len(s.capture)/frameBytes) * time.Second / time.Duration(e.format.SampleRate),
		})
	}
	if reason == audio.Preempted {
		// The producer may still be streaming into the channel.
		go audio.Drain(s.seg.Audio)
	}
	s.seg.Finish(audio.Result{Reason: reason, FramesPlayed: s.frames})
}

// Close stops the engine. The active segment finishes as preempted, queued
// segments finish as preempted with zero frames played, and subsequent Reads
// return io.EOF. Close is idempotent — subsequent calls are no-ops and
// return nil.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}

	// Wait for an in-flight Read to return, then reclaim its state.
	e.rmu.Lock()
	e.finishActive(audio.Preempted)
	e.rmu.Unlock()

	e.mu.Lock()
	pend := e.pending
	e.pending = nil
	e.mu.Unlock()
	for _, it := range pend {
		go audio.Drain(it.segment.Audio)
		it.segment.Finish(audio.Result{Reason: audio.Preempted})
	}
	return nil
}

// slot is the audible segment's playback cursor: PCM buffered across blocks
// plus bookkeeping for ducking, capture, and the finish result.
type slot struct {
	seg      *audio.Segment
	priority int

	buf     []byte
	bufPos  int
	srcDone bool

	started bool // first speech frame reached the air
	frames  int  // mono speech frames mixed so far
	capture []byte
}

// take returns the next mono sample if one is available without blocking.
// It reports false on underrun and once the stream is exhausted.
func (s *slot) take() (int16, bool) {
	for {
		if s.bufPos+1 < len(s.buf) {
			v := int16(s.buf[s.bufPos]) | int16(s.buf[s.bufPos+1])<<8
			s.bufPos += 2
			return v, true
		}
		if s.srcDone {
			return 0, false
		}
		select {
		case chunk, ok := <-s.seg.Audio:
			if !ok {
				s.srcDone = true
				continue
			}
			if s.bufPos < len(s.buf) {
				// Carry the dangling byte of a sample split across chunks.
				s.buf = append(s.buf[s.bufPos:len(s.buf):len(s.buf)], chunk...)
			} else {
				s.buf = chunk
			}
			s.bufPos = 0
		default:
			return 0, false
		}
	}
}

// done reports whether the stream has closed and all buffered PCM played out.
// When the buffer empties in the same block as the close, the close is
// observed here rather than one block late.
func (s *slot) done() bool {
	if s.bufPos+1 < len(s.buf) {
		return false
	}
	for !s.srcDone {
		select {
		case chunk, ok := <-s.seg.Audio:
			if !ok {
				s.srcDone = true
			} else if len(chunk) > 0 {
				if s.bufPos < len(s.buf) {
					s.buf = append(s.buf[s.bufPos:len(s.buf):len(s.buf)], chunk...)
				} else {
					s.buf = chunk
				}
				s.bufPos = 0
				return false
			}
		default:
			return false
		}
	}
	return true
}

func clamp16(v int32) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
