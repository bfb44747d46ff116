package mixer

import (
	"math"
	"sync/atomic"
)

// ducker ramps the ambience gain between a nominal and a ducked level.
// Duck and Restore set the target; the playback thread advances the current
// gain one step per frame via step, so the ramp duration is expressed in
// frames and the trajectory is linear and monotonic between edges.
//
// The level fields are atomics so they can be retuned at runtime without
// synchronizing with the playback thread.
type ducker struct {
	nominal    atomic.Uint64 // float64 bits
	ducked     atomic.Uint64 // float64 bits
	rampFrames int

	down atomic.Bool // target selector: true -> ducked level

	cur float64 // current gain, owned by the playback thread
}

func newDucker(nominal, ducked float64, rampFrames int) *ducker {
	if rampFrames < 1 {
		rampFrames = 1
	}
	d := &ducker{rampFrames: rampFrames}
	d.nominal.Store(math.Float64bits(nominal))
	d.ducked.Store(math.Float64bits(ducked))
	d.cur = nominal
	return d
}

// SetLevels replaces the nominal and ducked gain levels. The current gain
// ramps toward the new target from wherever it is.
func (d *ducker) SetLevels(nominal, ducked float64) {
	d.nominal.Store(math.Float64bits(nominal))
	d.ducked.Store(math.Float64bits(ducked))
}

// Duck targets the ducked level. Idempotent.
func (d *ducker) Duck() { d.down.Store(true) }

// Restore targets the nominal level. Idempotent.
func (d *ducker) Restore() { d.down.Store(false) }

// Gain returns the current gain. Only the playback thread mutates it, so
// other callers observe a recent value.
func (d *ducker) Gain() float64 { return d.cur }

// step advances the gain one frame toward the target and returns the value
// to apply for this frame.
func (d *ducker) step() float64 {
	nominal := math.Float64frombits(d.nominal.Load())
	ducked := math.Float64frombits(d.ducked.Load())
	target := nominal
	if d.down.Load() {
		target = ducked
	}
	if d.cur == target {
		return d.cur
	}
	delta := (nominal - ducked) / float64(d.rampFrames)
	if delta < 0 {
		delta = -delta
	}
	if diff := target - d.cur; diff > 0 {
		d.cur += delta
		if d.cur > target {
			d.cur = target
		}
	} else {
		d.cur -= delta
		if d.cur < target {
			d.cur = target
		}
	}
	return d.cur
}
