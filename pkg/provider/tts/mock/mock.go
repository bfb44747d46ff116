// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to feed controlled PCM chunks to consumers and to verify the
// text and excitement passed to the TTS backend.
//
// Example:
//
//	p := &mock.Provider{
//	    SynthesizeChunks: [][]byte{pcm1, pcm2},
//	}
//	st, _ := p.Synthesize(ctx, tts.Request{Text: "four runs!", Excitement: 7})
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/ovalsounds/stumpcast/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Request is the synthesis request passed to Synthesize.
	Request tts.Request
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// SynthesizeChunks is the sequence of PCM byte slices emitted on the
	// stream returned by Synthesize.
	SynthesizeChunks [][]byte

	// SynthesizeErr, if non-nil, is returned as the error from Synthesize
	// instead of starting a stream.
	SynthesizeErr error

	// StreamErr, if non-nil, is set on the stream after all chunks have been
	// emitted, simulating a mid-stream failure.
	StreamErr error

	// ChunkDelay, if positive, is slept before each chunk is emitted. Useful
	// for exercising first-byte deadlines.
	ChunkDelay time.Duration

	// --- Call records ---

	// SynthesizeCalls records every call to Synthesize in order.
	SynthesizeCalls []SynthesizeCall
}

// Synthesize records the call and, if SynthesizeErr is nil, returns a stream
// that emits SynthesizeChunks then closes.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Stream, error) {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Ctx: ctx, Request: req})
	if p.SynthesizeErr != nil {
		err := p.SynthesizeErr
		p.mu.Unlock()
		return nil, err
	}
	chunks := make([][]byte, len(p.SynthesizeChunks))
	copy(chunks, p.SynthesizeChunks)
	streamErr := p.StreamErr
	delay := p.ChunkDelay
	p.mu.Unlock()

	ch := make(chan []byte, len(chunks)+1)
	st := tts.NewStream(ch)
	go func() {
		defer close(ch)
		for _, chunk := range chunks {
			if delay > 0 {
				select {
				case <-ctx.Done():
					st.SetErr(ctx.Err())
					return
				case <-time.After(delay):
				}
			}
			select {
			case <-ctx.Done():
				st.SetErr(ctx.Err())
				return
			case ch <- chunk:
			}
		}
		if streamErr != nil {
			st.SetErr(streamErr)
		}
	}()
	return st, nil
}

// Calls returns a copy of all recorded Synthesize calls.
func (p *Provider) Calls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SynthesizeCall, len(p.SynthesizeCalls))
	copy(out, p.SynthesizeCalls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
