// Package mock provides in-memory mock implementations of the [audio.Mixer]
// and [audio.Device] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so
// that tests can assert on call counts and arguments, and they expose
// exported fields that the test can set to control return values.
//
// Typical usage:
//
//	mixer := &mock.Mixer{AutoResult: &audio.Result{Reason: audio.Drained}}
//	err := orchestrate(ctx, mixer, ...)
//	calls := mixer.Submitted()
package mock

import (
	"fmt"
	"io"
	"sync"

	"github.com/ovalsounds/stumpcast/pkg/audio"
)

// ─── Mixer ────────────────────────────────────────────────────────────────────

// SubmitCall records the arguments of a single [Mixer.Submit] invocation.
type SubmitCall struct {
	// Segment is the segment passed to Submit.
	Segment *audio.Segment
	// Priority is the priority argument passed to Submit.
	Priority int
}

// Mixer is a mock implementation of [audio.Mixer].
// Set the exported fields before use; inspect the recorded calls after.
type Mixer struct {
	mu sync.Mutex

	// SubmitError is returned by Submit. The segment is not recorded when
	// Submit fails.
	SubmitError error

	// AutoResult, when non-nil, makes Submit drain each segment's audio
	// channel on a background goroutine and then finish the segment with a
	// copy of this result. FramesPlayed is replaced by the number of mono
	// frames drained. Leave nil to finish segments manually from the test.
	AutoResult *audio.Result

	// SubmitCalls records all successful Submit invocations.
	SubmitCalls []SubmitCall

	// CallCountInterrupt records how many times Interrupt was called.
	CallCountInterrupt int
}

// Submit implements [audio.Mixer]. Records the call and, if AutoResult is
// set, finishes the segment once its audio channel closes.
func (m *Mixer) Submit(segment *audio.Segment, priority int) error {
	m.mu.Lock()
	if m.SubmitError != nil {
		err := m.SubmitError
		m.mu.Unlock()
		return err
	}
	m.SubmitCalls = append(m.SubmitCalls, SubmitCall{Segment: segment, Priority: priority})
	res := m.AutoResult
	m.mu.Unlock()

	if res != nil {
		go func() {
			frames := 0
			for chunk := range segment.Audio {
				frames += len(chunk) / 2
			}
			r := *res
			r.FramesPlayed = frames
			segment.Finish(r)
		}()
	}
	return nil
}

// Interrupt implements [audio.Mixer]. Records the call.
func (m *Mixer) Interrupt() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCountInterrupt++
}

// Submitted returns a copy of the recorded Submit calls.
func (m *Mixer) Submitted() []SubmitCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SubmitCall, len(m.SubmitCalls))
	copy(out, m.SubmitCalls)
	return out
}

// ─── Device ───────────────────────────────────────────────────────────────────

// Device is a mock implementation of [audio.Device]. Instead of a platform
// playback thread, the test pulls blocks from the started source explicitly
// via [Device.Pull].
type Device struct {
	mu sync.Mutex

	// StartError is returned by Start.
	StartError error

	// CloseError is returned by Close.
	CloseError error

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	src io.Reader
}

// Start implements [audio.Device]. Records src for later Pull calls.
func (d *Device) Start(src io.Reader) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountStart++
	if d.StartError != nil {
		return d.StartError
	}
	d.src = src
	return nil
}

// Close implements [audio.Device].
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountClose++
	return d.CloseError
}

// Pull reads one block of n bytes from the started source, standing in for
// the platform playback thread. It returns an error if Start has not been
// called.
func (d *Device) Pull(n int) ([]byte, error) {
	d.mu.Lock()
	src := d.src
	d.mu.Unlock()
	if src == nil {
		return nil, fmt.Errorf("mock: device not started")
	}
	buf := make([]byte, n)
	read, err := src.Read(buf)
	return buf[:read], err
}

// Source returns the reader handed to Start, or nil.
func (d *Device) Source() io.Reader {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.src
}
