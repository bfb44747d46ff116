package resilience

import (
	"context"

	"github.com/ovalsounds/stumpcast/pkg/provider/tts"
)

// SynthFallback implements [tts.Provider] with automatic failover across
// multiple synthesis backends. Each backend has its own circuit breaker.
type SynthFallback struct {
	group *FallbackGroup[tts.Provider]
}

// Compile-time interface assertion.
var _ tts.Provider = (*SynthFallback)(nil)

// NewSynthFallback creates a [SynthFallback] with primary as the preferred
// backend.
func NewSynthFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *SynthFallback {
	return &SynthFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional synthesis backend. Fallbacks are tried
// in registration order after the primary.
func (f *SynthFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// Synthesize starts streaming synthesis on the first healthy backend. Only
// stream setup is covered by failover; a stream that starts and then dies
// mid-utterance is the caller's to handle (the event is skipped, not
// re-synthesized on another voice).
func (f *SynthFallback) Synthesize(ctx context.Context, req tts.Request) (*tts.Stream, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) (*tts.Stream, error) {
		return p.Synthesize(ctx, req)
	})
}
