// Package orchestrator drives the commentary pipeline: a single consumer
// loop takes events off the queue in priority order, resolves the words and
// the excitement to speak them with, synthesizes a PCM stream, and hands it
// to the mixer with an explicit priority.
//
// Commit discipline is the heart of the package. An event id is committed to
// the durable checkpoint once the listener has heard it (the mixer drained
// the stream, or preempted it after at least one frame played) or once the
// engine deliberately gave up on it (no text, synthesis failure, first-byte
// deadline). An event displaced before a single frame reached the device is
// dropped uncommitted and logged. Lifecycle announcements are the one
// exception: their synthetic ids are committed as soon as the mixer accepts
// them.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ovalsounds/stumpcast/internal/commentary"
	"github.com/ovalsounds/stumpcast/internal/event"
	"github.com/ovalsounds/stumpcast/internal/match"
	"github.com/ovalsounds/stumpcast/internal/observe"
	"github.com/ovalsounds/stumpcast/internal/queue"
	"github.com/ovalsounds/stumpcast/pkg/audio"
	"github.com/ovalsounds/stumpcast/pkg/provider/tts"
)

const (
	// defaultSynthTimeout is the first-byte deadline for synthesis: a stream
	// that has produced no audio by then is abandoned and its event skipped.
	defaultSynthTimeout = 8 * time.Second

	// defaultPollInterval is how often the match lifecycle is re-fetched.
	defaultPollInterval = 20 * time.Second

	// defaultMaxInflight serializes events: the next event is pulled from
	// the queue only after the current one has finished the mixer.
	defaultMaxInflight = 1

	// segmentChunkBuf is the buffer depth between the synthesis stream and
	// the mixer's read side.
	segmentChunkBuf = 8
)

// ErrSynthTimeout marks a synthesis that produced no audio within the
// first-byte deadline.
var ErrSynthTimeout = errors.New("orchestrator: synthesis first-byte deadline exceeded")

// Switcher redirects the inbound event source to a new match. Implemented by
// the stream client.
type Switcher interface {
	Switch(matchID string)
}

// Config configures an [Orchestrator].
type Config struct {
	// Queue is the event source. Required.
	Queue *queue.Queue

	// Synth is the synthesis chain. Required.
	Synth tts.Provider

	// Mixer receives the synthesized segments. Required.
	Mixer audio.Mixer

	// Matches polls the scoring backend for lifecycle announcements. Nil
	// disables lifecycle polling.
	Matches *match.Client

	// Stream, when set, is redirected whenever the engine adopts a new
	// match.
	Stream Switcher

	// MatchID is the match the engine starts on.
	MatchID string

	// MatchInfo carries the booking details for MatchID when the caller
	// already resolved them, so the welcome can name the teams.
	MatchInfo *match.Info

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// SynthName labels synthesis metrics. Defaults to "primary".
	SynthName string

	// SynthTimeout overrides the first-byte deadline. Defaults to 8 s.
	SynthTimeout time.Duration

	// PollInterval overrides the lifecycle poll period. Defaults to 20 s.
	PollInterval time.Duration

	// MaxInflight bounds concurrent synthesis fetches. The default of 1
	// serializes events end to end.
	MaxInflight int
}

// Orchestrator owns the consume loop and the lifecycle poller.
type Orchestrator struct {
	q       *queue.Queue
	synth   tts.Provider
	mixer   audio.Mixer
	matches *match.Client
	stream  Switcher
	metrics *observe.Metrics

	synthName    string
	synthTimeout time.Duration
	pollInterval time.Duration

	// sem holds one permit per allowed in-flight event.
	sem chan struct{}
	wg  sync.WaitGroup

	mu      sync.Mutex
	matchID string
	state   match.State
}

// New creates an Orchestrator from cfg, applying defaults for the zero
// fields.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Queue == nil {
		return nil, fmt.Errorf("orchestrator: queue must not be nil")
	}
	if cfg.Synth == nil {
		return nil, fmt.Errorf("orchestrator: synth must not be nil")
	}
	if cfg.Mixer == nil {
		return nil, fmt.Errorf("orchestrator: mixer must not be nil")
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	synthName := cfg.SynthName
	if synthName == "" {
		synthName = "primary"
	}
	synthTimeout := cfg.SynthTimeout
	if synthTimeout <= 0 {
		synthTimeout = defaultSynthTimeout
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	inflight := cfg.MaxInflight
	if inflight <= 0 {
		inflight = defaultMaxInflight
	}

	matchID := cfg.MatchID
	if matchID == "" && cfg.MatchInfo != nil {
		matchID = cfg.MatchInfo.ID
	}

	return &Orchestrator{
		q:            cfg.Queue,
		synth:        cfg.Synth,
		mixer:        cfg.Mixer,
		matches:      cfg.Matches,
		stream:       cfg.Stream,
		metrics:      metrics,
		synthName:    synthName,
		synthTimeout: synthTimeout,
		pollInterval: pollInterval,
		sem:          make(chan struct{}, inflight),
		matchID:      matchID,
		state:        match.State{Info: cfg.MatchInfo},
	}, nil
}

// ─── Consume loop ─────────────────────────────────────────────────────────────

// Run consumes events until ctx is cancelled or the queue is closed and
// drained. It returns nil on a clean queue close.
func (o *Orchestrator) Run(ctx context.Context) error {
	slog.Info("orchestrator: consuming", "match_id", o.MatchID())

	if o.matches != nil {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			o.lifecycleLoop(ctx)
		}()
	}
	defer o.wg.Wait()

	for {
		// Take a synthesis permit before pulling the next event so a
		// higher-priority arrival can still win the heap while we wait.
		select {
		case o.sem <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}

		ev, err := o.q.Next(ctx)
		if err != nil {
			o.release()
			if errors.Is(err, queue.ErrClosed) {
				slog.Info("orchestrator: queue closed, stopping")
				return nil
			}
			return err
		}

		o.metrics.RecordConsumed(ctx)
		o.observeMatch(ev.MatchID)
		o.dispatch(ctx, ev)
	}
}

// MatchID returns the match the engine is currently commentating.
func (o *Orchestrator) MatchID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.matchID
}

// Wait blocks until all background goroutines spawned by the loop have
// finished. Primarily useful in tests.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// release returns a synthesis permit.
func (o *Orchestrator) release() {
	<-o.sem
}

// dispatch speaks one inbound event and settles its commit. The caller's
// permit is released here on the synchronous skip paths, or by the result
// watcher once the mixer is done with the segment.
func (o *Orchestrator) dispatch(ctx context.Context, ev event.Event) {
	text := ev.Text
	excitement := commentary.ExcitementFor(string(ev.Intensity))
	if text == "" {
		line, exc, ok := commentary.ForBall(ev.RunsScored, ev.ExtraType, ev.BatsmanName)
		if !ok {
			o.release()
			slog.Info("orchestrator: event carries nothing to speak, skipping",
				"event_id", ev.ID)
			o.metrics.RecordSkipped(ctx, "no_text")
			o.q.Commit(ev.ID)
			return
		}
		text, excitement = line, exc
	}

	start := time.Now()
	seg, err := o.speak(ctx, ev.ID, text, excitement, ev.Priority)
	if err != nil {
		o.release()
		if ctx.Err() != nil {
			// Shutdown mid-synthesis: leave the event uncommitted so the
			// next run replays it.
			return
		}
		reason := "tts_error"
		if errors.Is(err, ErrSynthTimeout) {
			reason = "tts_timeout"
		}
		slog.Warn("orchestrator: synthesis failed, skipping event",
			"event_id", ev.ID, "reason", reason, "err", err)
		o.metrics.RecordSkipped(ctx, reason)
		o.q.Commit(ev.ID)
		return
	}

	if err := o.mixer.Submit(seg, ev.Priority); err != nil {
		o.release()
		// Unblock the forwarding goroutine behind the rejected segment.
		go audio.Drain(seg.Audio)
		slog.Warn("orchestrator: mixer rejected segment, skipping event",
			"event_id", ev.ID, "err", err)
		o.metrics.RecordSkipped(ctx, "mixer")
		o.q.Commit(ev.ID)
		return
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer o.release()
		o.finish(ctx, ev, <-seg.Done(), start)
	}()
}

// finish settles an event against the commit policy once the mixer reports
// its result.
func (o *Orchestrator) finish(ctx context.Context, ev event.Event, res audio.Result, start time.Time) {
	switch {
	case res.Reason == audio.Drained || res.FramesPlayed > 0:
		// Heard, at least partially. Partial playback counts as spoken.
		if res.Err != nil {
			slog.Warn("orchestrator: stream died mid-utterance, partial audio played",
				"event_id", ev.ID, "frames", res.FramesPlayed, "err", res.Err)
		}
		o.q.Commit(ev.ID)
		o.metrics.RecordPlayed(ctx, ev.Priority)
		o.metrics.RecordEventLatency(ctx, time.Since(start), ev.Priority)
		slog.Debug("orchestrator: event spoken",
			"event_id", ev.ID, "reason", res.Reason.String(), "frames", res.FramesPlayed)

	case res.Reason == audio.Preempted:
		// Displaced before any audio played: dropped, not committed, so the
		// id stays eligible for catch-up after a restart.
		slog.Warn("orchestrator: event displaced before any audio played, dropping",
			"event_id", ev.ID)
		o.metrics.RecordDropped(ctx)

	default: // audio.StreamFailed
		slog.Warn("orchestrator: stream failed before any audio played, skipping event",
			"event_id", ev.ID, "err", res.Err)
		o.metrics.RecordSkipped(ctx, "tts_stream")
		o.q.Commit(ev.ID)
	}
}

// observeMatch adopts the match carried by an inbound event when it differs
// from the current one: lifecycle state resets, the dedup set is cleared for
// the new id space, and the stream client is redirected.
func (o *Orchestrator) observeMatch(matchID string) {
	o.mu.Lock()
	if matchID == o.matchID {
		o.mu.Unlock()
		return
	}
	old := o.matchID
	o.matchID = matchID
	o.state = match.State{}
	o.mu.Unlock()

	slog.Info("orchestrator: match changed, resetting lifecycle",
		"from", old, "to", matchID)
	o.q.SetMatch(matchID)
	if old != "" && o.stream != nil {
		o.stream.Switch(matchID)
	}
}

// ─── Synthesis ────────────────────────────────────────────────────────────────

// speak synthesizes text and wraps the resulting stream in a mixer segment.
// It blocks until the first PCM chunk arrives or the first-byte deadline
// expires; the rest of the stream is forwarded in the background, so
// playback runs while synthesis continues.
func (o *Orchestrator) speak(ctx context.Context, id, text string, excitement, priority int) (*audio.Segment, error) {
	sctx, cancel := context.WithCancel(ctx)
	o.metrics.InflightTTSAdd(ctx, 1)

	start := time.Now()
	stream, err := o.synth.Synthesize(sctx, tts.Request{Text: text, Excitement: excitement})
	if err != nil {
		cancel()
		o.metrics.InflightTTSAdd(ctx, -1)
		return nil, fmt.Errorf("orchestrator: synthesize %q: %w", id, err)
	}

	deadline := time.NewTimer(o.synthTimeout)
	defer deadline.Stop()

	var first []byte
	select {
	case chunk, ok := <-stream.C:
		if !ok {
			cancel()
			o.metrics.InflightTTSAdd(ctx, -1)
			if serr := stream.Err(); serr != nil {
				return nil, fmt.Errorf("orchestrator: synthesize %q: %w", id, serr)
			}
			return nil, fmt.Errorf("orchestrator: synthesize %q: stream produced no audio", id)
		}
		first = chunk
	case <-deadline.C:
		cancel()
		go audio.Drain(stream.C)
		o.metrics.InflightTTSAdd(ctx, -1)
		return nil, fmt.Errorf("orchestrator: synthesize %q: %w", id, ErrSynthTimeout)
	case <-ctx.Done():
		cancel()
		go audio.Drain(stream.C)
		o.metrics.InflightTTSAdd(ctx, -1)
		return nil, ctx.Err()
	}

	o.metrics.RecordTTSFirstByte(ctx, time.Since(start), o.synthName)

	out := make(chan []byte, segmentChunkBuf)
	seg := audio.NewSegment(id, out, priority)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()
		defer close(out)
		defer o.metrics.InflightTTSAdd(ctx, -1)

		out <- first
		for {
			select {
			case chunk, ok := <-stream.C:
				if !ok {
					if serr := stream.Err(); serr != nil {
						seg.SetStreamErr(serr)
					}
					return
				}
				select {
				case out <- chunk:
				case <-ctx.Done():
					seg.SetStreamErr(ctx.Err())
					return
				}
			case <-ctx.Done():
				seg.SetStreamErr(ctx.Err())
				return
			}
		}
	}()

	return seg, nil
}
