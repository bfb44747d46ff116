// Package speaker drives the host sound device through oto. It is the only
// package that touches the platform audio layer; everything above it speaks
// [audio.Device].
package speaker

import (
	"context"
	"fmt"
	"io"
	"time"

	oto "github.com/ebitengine/oto/v3"

	"github.com/ovalsounds/stumpcast/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Device = (*Device)(nil)

// DefaultBufferSize is the device-side buffer the platform layer keeps ahead
// of the hardware. Larger values ride out scheduling hiccups at the cost of
// output latency.
const DefaultBufferSize = 100 * time.Millisecond

// Option configures a [Device] during Open.
type Option func(*Device)

// WithBufferSize overrides the device-side buffer duration.
func WithBufferSize(d time.Duration) Option {
	return func(dev *Device) {
		dev.bufferSize = d
	}
}

// Device renders s16le PCM pulled from an [io.Reader] to the host's default
// output. The platform context is process-global, so Open must be called at
// most once per process.
type Device struct {
	format     audio.Format
	bufferSize time.Duration

	otoCtx *oto.Context
	player *oto.Player
}

// Open initializes the platform audio context for the given output format
// and waits until the device is ready to accept samples. ctx bounds the
// readiness wait.
func Open(ctx context.Context, format audio.Format, opts ...Option) (*Device, error) {
	d := &Device{
		format:     format,
		bufferSize: DefaultBufferSize,
	}
	for _, o := range opts {
		o(d)
	}

	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   format.SampleRate,
		ChannelCount: format.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   d.bufferSize,
	})
	if err != nil {
		return nil, fmt.Errorf("speaker: init context: %w", err)
	}
	select {
	case <-ready:
	case <-ctx.Done():
		return nil, fmt.Errorf("speaker: waiting for device: %w", ctx.Err())
	}

	d.otoCtx = otoCtx
	return d, nil
}

// Start begins pulling PCM from src on the platform's playback thread. src
// must never block; it should zero-fill when it has nothing to play.
func (d *Device) Start(src io.Reader) error {
	if d.player != nil {
		return fmt.Errorf("speaker: already started")
	}
	d.player = d.otoCtx.NewPlayer(src)
	d.player.Play()
	return nil
}

// Playing reports whether the platform player is actively pulling samples.
// It is false before Start and after Close.
func (d *Device) Playing() bool {
	return d.player != nil && d.player.IsPlaying()
}

// Close stops playback and releases the player. The process-global platform
// context stays alive; it cannot be torn down.
func (d *Device) Close() error {
	if d.player == nil {
		return nil
	}
	p := d.player
	d.player = nil
	if err := p.Close(); err != nil {
		return fmt.Errorf("speaker: close player: %w", err)
	}
	return nil
}
