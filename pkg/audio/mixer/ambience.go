package mixer

import (
	"fmt"
	"os"

	"github.com/ovalsounds/stumpcast/pkg/audio"
)

// Bed is a decoded ambience loop held fully in memory as interleaved stereo
// samples. The playback thread walks it with next, wrapping back to the
// start so the bed loops seamlessly for the lifetime of the engine.
type Bed struct {
	samples []int16 // interleaved L/R
	pos     int     // frame index, owned by the playback thread
}

// LoadAmbience reads a WAV file and prepares it as a looping bed for an
// engine running at the given output format. Files at another sample rate
// are resampled at load time, stereo first downmixed to mono, so any
// reasonable recording can serve as the bed.
func LoadAmbience(path string, format audio.Format) (*Bed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mixer: open ambience: %w", err)
	}
	defer f.Close()

	pcm, got, err := audio.DecodeWAV(f)
	if err != nil {
		return nil, fmt.Errorf("mixer: decode ambience %q: %w", path, err)
	}
	if got.Channels != 1 && got.Channels != 2 {
		return nil, fmt.Errorf("mixer: ambience %q has %d channels, want 1 or 2", path, got.Channels)
	}
	if got.SampleRate != format.SampleRate {
		if got.Channels == 2 {
			pcm = audio.StereoToMono(pcm)
			got.Channels = 1
		}
		pcm = audio.ResampleMono16(pcm, got.SampleRate, format.SampleRate)
	}
	if got.Channels == 1 {
		pcm = audio.MonoToStereo(pcm)
	}
	if len(pcm) < 4 {
		return nil, fmt.Errorf("mixer: ambience %q contains no audio", path)
	}

	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(pcm[2*i]) | int16(pcm[2*i+1])<<8
	}
	return &Bed{samples: samples}, nil
}

// Frames returns the loop length in stereo frames.
func (b *Bed) Frames() int { return len(b.samples) / 2 }

// next returns the next stereo frame and advances the loop position.
func (b *Bed) next() (l, r int16) {
	l = b.samples[2*b.pos]
	r = b.samples[2*b.pos+1]
	b.pos++
	if 2*b.pos >= len(b.samples) {
		b.pos = 0
	}
	return l, r
}
