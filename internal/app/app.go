// Package app wires all stumpcast subsystems into a running commentary
// engine.
//
// The App struct owns the full lifecycle: New creates and connects every
// subsystem from the configuration, Run drives the engine until the context
// is cancelled, and Shutdown tears the pipeline down in the order the audio
// path requires (stop admitting, let synthesis unwind, flush the mixer,
// close the device, flush the archive).
//
// For testing, inject doubles via functional options (WithSynth, WithMixer,
// WithDevice). When an option is not provided, New creates the real
// implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ovalsounds/stumpcast/internal/config"
	"github.com/ovalsounds/stumpcast/internal/health"
	"github.com/ovalsounds/stumpcast/internal/history"
	"github.com/ovalsounds/stumpcast/internal/match"
	"github.com/ovalsounds/stumpcast/internal/observe"
	"github.com/ovalsounds/stumpcast/internal/orchestrator"
	"github.com/ovalsounds/stumpcast/internal/queue"
	"github.com/ovalsounds/stumpcast/internal/resilience"
	"github.com/ovalsounds/stumpcast/internal/state"
	"github.com/ovalsounds/stumpcast/internal/stream"
	"github.com/ovalsounds/stumpcast/pkg/audio"
	audiomixer "github.com/ovalsounds/stumpcast/pkg/audio/mixer"
	"github.com/ovalsounds/stumpcast/pkg/audio/speaker"
	"github.com/ovalsounds/stumpcast/pkg/provider/tts"
	"github.com/ovalsounds/stumpcast/pkg/provider/tts/coqui"
	"github.com/ovalsounds/stumpcast/pkg/provider/tts/elevenlabs"
	"github.com/ovalsounds/stumpcast/pkg/provider/tts/openaispeech"
)

// ErrDevice marks a failure to open the platform audio output. main exits
// with a distinct code for it so supervisors can tell a dead sound card from
// a bad config.
var ErrDevice = errors.New("app: audio device unavailable")

// App owns all subsystem lifetimes.
type App struct {
	cfg        *config.Config
	configPath string
	logLevel   *slog.LevelVar
	format     audio.Format

	store     *state.Store
	q         *queue.Queue
	matches   *match.Client
	synth     tts.Provider
	synthName string
	rows      *history.Store
	sink      *history.Sink
	mixer     audio.Mixer
	engine    *audiomixer.Engine
	device    audio.Device
	stream    *stream.Client
	orch      *orchestrator.Orchestrator
	ops       *health.Server
	watcher   *config.Watcher
	metrics   *observe.Metrics

	matchID   string
	matchInfo *match.Info

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSynth injects a synthesis provider instead of building the
// elevenlabs chain from config.
func WithSynth(p tts.Provider) Option {
	return func(a *App) { a.synth = p }
}

// WithMixer injects an audio mixer instead of creating the engine mixer.
func WithMixer(m audio.Mixer) Option {
	return func(a *App) { a.mixer = m }
}

// WithDevice injects an audio device instead of opening the host speaker.
func WithDevice(d audio.Device) Option {
	return func(a *App) { a.device = d }
}

// WithMetrics overrides the metrics instance, mainly for tests.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel hands the App the handler's level var so log-level config
// changes apply without a restart.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// WithConfigFile enables hot reload by watching the given config file.
func WithConfigFile(path string) Option {
	return func(a *App) { a.configPath = path }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. cfg must already
// have passed [config.Config.Validate]. New blocks during match discovery
// when neither the config nor the persisted state names a match; ctx bounds
// that wait.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:    cfg,
		format: audio.Format{SampleRate: cfg.Audio.SampleRate, Channels: 2},
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Durable state + queue ─────────────────────────────────────────
	rt := a.initState()
	a.q = queue.New(a.store, queue.WithDedupLimit(cfg.Queue.DedupSize))

	// ── 2. Match resolution ──────────────────────────────────────────────
	if err := a.initMatch(ctx, rt); err != nil {
		return nil, err
	}

	// ── 3. Synthesis chain ───────────────────────────────────────────────
	if err := a.initSynth(); err != nil {
		return nil, fmt.Errorf("app: init synthesis: %w", err)
	}

	// ── 4. Audio history archive ─────────────────────────────────────────
	a.initHistory(ctx)

	// ── 5. Mixer + device ────────────────────────────────────────────────
	a.initMixer()
	if err := a.initDevice(ctx); err != nil {
		return nil, err
	}

	// ── 6. Event stream ──────────────────────────────────────────────────
	if err := a.initStream(); err != nil {
		return nil, fmt.Errorf("app: init stream: %w", err)
	}

	// ── 7. Orchestrator ──────────────────────────────────────────────────
	orch, err := orchestrator.New(orchestrator.Config{
		Queue:        a.q,
		Synth:        a.synth,
		Mixer:        a.mixer,
		Matches:      a.matches,
		Stream:       a.stream,
		MatchID:      a.matchID,
		MatchInfo:    a.matchInfo,
		Metrics:      a.metrics,
		SynthName:    a.synthName,
		SynthTimeout: time.Duration(cfg.TTS.Timeout),
		PollInterval: time.Duration(cfg.Match.PollInterval),
	})
	if err != nil {
		return nil, fmt.Errorf("app: init orchestrator: %w", err)
	}
	a.orch = orch

	// ── 8. Ops surface + hot reload ──────────────────────────────────────
	a.initOps()
	a.initWatcher()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initState opens the runtime state store. An unreadable state file is not
// fatal: the engine logs it and starts from a clean checkpoint.
func (a *App) initState() state.Runtime {
	a.store = state.New(a.cfg.State.Path)
	rt, err := a.store.Load()
	if err != nil {
		slog.Warn("app: runtime state unreadable, starting fresh",
			"path", a.cfg.State.Path, "err", err)
		return state.Runtime{}
	}
	if rt.MatchID != "" {
		slog.Info("app: resumed runtime state",
			"match_id", rt.MatchID, "last_spoken", rt.LastSpokenEventID)
	}
	return rt
}

// initMatch builds the scoring-backend client and settles which match the
// engine commentates: explicit config wins, then the persisted checkpoint,
// then discovery against the booking endpoint.
func (a *App) initMatch(ctx context.Context, rt state.Runtime) error {
	matches, err := match.NewClient(a.cfg.API.BaseURL,
		match.WithSlotTime(a.cfg.Match.SlotHour, a.cfg.Match.SlotMinute),
		match.WithHTTPClient(&http.Client{Timeout: time.Duration(a.cfg.API.Timeout)}),
	)
	if err != nil {
		return fmt.Errorf("app: init match client: %w", err)
	}
	a.matches = matches

	a.matchID = a.cfg.Match.ID
	if a.matchID == "" {
		a.matchID = rt.MatchID
	}

	if a.matchID == "" {
		info, err := a.discoverMatch(ctx)
		if err != nil {
			return err
		}
		a.matchID = info.ID
		a.matchInfo = info
	} else if info, err := a.matches.CurrentMatch(ctx); err != nil {
		slog.Warn("app: booking lookup failed, continuing without team names", "err", err)
	} else if info.ID == a.matchID {
		a.matchInfo = info
	} else {
		slog.Warn("app: configured match differs from the current booking",
			"configured", a.matchID, "booked", info.ID)
	}

	// A checkpoint from another match must not suppress this one's events.
	if rt.MatchID != a.matchID {
		a.q.SetMatch(a.matchID)
	}
	return nil
}

// discoverMatch polls the booking endpoint until a match is found or ctx is
// cancelled.
func (a *App) discoverMatch(ctx context.Context) (*match.Info, error) {
	interval := time.Duration(a.cfg.Match.PollInterval)
	for {
		info, err := a.matches.CurrentMatch(ctx)
		if err == nil {
			slog.Info("app: discovered current match",
				"match_id", info.ID, "team_one", info.TeamOneName, "team_two", info.TeamTwoName)
			return info, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("app: discover match: %w", ctx.Err())
		}
		slog.Info("app: no current match yet, retrying", "retry_in", interval.String(), "err", err)
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return nil, fmt.Errorf("app: discover match: %w", ctx.Err())
		}
	}
}

// initSynth builds the voice chain: elevenlabs primary behind a circuit
// breaker, with the optional openai and coqui fallback voices after it.
func (a *App) initSynth() error {
	if a.synth != nil {
		return nil
	}

	primary, err := elevenlabs.New(a.cfg.TTS.APIKey, a.cfg.TTS.VoiceID,
		elevenlabs.WithOutputFormat(fmt.Sprintf("pcm_%d", a.cfg.Audio.SampleRate)),
	)
	if err != nil {
		return err
	}

	chain := resilience.NewSynthFallback(primary, "elevenlabs", resilience.FallbackConfig{})
	a.synth = chain
	a.synthName = "elevenlabs"

	fb := a.cfg.TTS.Fallback
	if fb == nil {
		return nil
	}
	if fb.OpenAIAPIKey != "" {
		var opts []openaispeech.Option
		if fb.Voice != "" {
			opts = append(opts, openaispeech.WithVoice(fb.Voice))
		}
		backup, err := openaispeech.New(fb.OpenAIAPIKey, a.cfg.Audio.SampleRate, opts...)
		if err != nil {
			return fmt.Errorf("fallback voice: %w", err)
		}
		chain.AddFallback("openai", backup)
		slog.Info("app: synthesis fallback armed", "provider", "openai")
	}
	if fb.CoquiURL != "" {
		local, err := coqui.New(fb.CoquiURL, a.cfg.Audio.SampleRate)
		if err != nil {
			return fmt.Errorf("fallback voice: %w", err)
		}
		chain.AddFallback("coqui", local)
		slog.Info("app: synthesis fallback armed", "provider", "coqui")
	}
	return nil
}

// initHistory stands up the best-effort clip archive. A missing or
// unreachable database degrades to disk-only archiving; it never blocks
// startup.
func (a *App) initHistory(ctx context.Context) {
	if !a.cfg.History.SaveAudio {
		return
	}

	var opts []history.Option
	opts = append(opts, history.WithMetrics(a.metrics))
	if dsn := a.cfg.History.DSN; dsn != "" {
		rows, err := history.NewStore(ctx, dsn)
		if err != nil {
			slog.Warn("app: history database unavailable, archiving to disk only", "err", err)
		} else {
			a.rows = rows
			opts = append(opts, history.WithStore(rows))
		}
	}

	a.sink = history.NewSink(a.cfg.History.Dir, opts...)
	slog.Info("app: audio history enabled", "dir", a.cfg.History.Dir, "run_id", a.sink.RunID())
}

// initMixer creates the engine mixer if one wasn't injected.
func (a *App) initMixer() {
	if a.mixer != nil {
		return
	}

	opts := []audiomixer.Option{
		audiomixer.WithDucking(
			a.cfg.Audio.NominalAmbienceGain,
			a.cfg.Audio.DuckedAmbienceGain,
			time.Duration(a.cfg.Audio.DuckRamp),
		),
	}
	bed, err := audiomixer.LoadAmbience(a.cfg.Audio.AmbiencePath, a.format)
	if err != nil {
		slog.Warn("app: ambience unavailable, running without a bed",
			"path", a.cfg.Audio.AmbiencePath, "err", err)
	} else {
		opts = append(opts, audiomixer.WithBed(bed))
	}
	if a.sink != nil {
		opts = append(opts, audiomixer.WithCapture(a.archiveClip))
	}

	e := audiomixer.New(a.format, opts...)
	a.engine = e
	a.mixer = e
}

// archiveClip hands a finished utterance to the history sink, stamped with
// the match the engine is on when the clip completes.
func (a *App) archiveClip(clip audio.Clip) {
	matchID := a.matchID
	if a.orch != nil {
		matchID = a.orch.MatchID()
	}
	a.sink.Publish(clip, matchID)
}

// initDevice opens the host speaker if a device wasn't injected.
func (a *App) initDevice(ctx context.Context) error {
	if a.device != nil {
		return nil
	}

	block := time.Duration(a.cfg.Audio.BlockFrames) * time.Second / time.Duration(a.cfg.Audio.SampleRate)
	dev, err := speaker.Open(ctx, a.format, speaker.WithBufferSize(2*block))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDevice, err)
	}
	a.device = dev
	return nil
}

// initStream builds the event-stream client against the resolved match.
func (a *App) initStream() error {
	opts := []stream.Option{
		stream.WithBackoff(
			time.Duration(a.cfg.Stream.ReconnectInitial),
			time.Duration(a.cfg.Stream.ReconnectMax),
		),
		stream.WithMetrics(a.metrics),
	}
	if a.cfg.Stream.AuthToken != "" {
		opts = append(opts, stream.WithAuthToken(a.cfg.Stream.AuthToken))
	}

	s, err := stream.New(a.cfg.API.BaseURL, a.matchID, a.q, opts...)
	if err != nil {
		return err
	}
	a.stream = s
	return nil
}

// initOps stands up the health and metrics listener when configured.
func (a *App) initOps() {
	if a.cfg.Ops.ListenAddr == "" {
		return
	}

	checkers := []health.Checker{
		health.Stream(a.stream),
		health.StateDir(a.cfg.State.Path),
	}
	if a.rows != nil {
		checkers = append(checkers, health.History(a.rows))
	}
	if p, ok := a.device.(health.Player); ok {
		checkers = append(checkers, health.Device(p))
	}

	a.ops = health.NewServer(a.cfg.Ops.ListenAddr, health.New(checkers...), a.metrics)
}

// initWatcher starts config hot reload when a config file path was given.
func (a *App) initWatcher() {
	if a.configPath == "" {
		return
	}
	w, err := config.NewWatcher(a.configPath, a.applyConfig)
	if err != nil {
		slog.Warn("app: config watcher unavailable, hot reload disabled", "err", err)
		return
	}
	a.watcher = w
}

// applyConfig applies the hot-reloadable subset of a config change to the
// running engine.
func (a *App) applyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.Empty() {
		return
	}
	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(d.NewLogLevel.SlogLevel())
		slog.Info("app: log level changed", "level", d.NewLogLevel)
	}
	if d.GainsChanged && a.engine != nil {
		a.engine.SetGains(d.NewNominalGain, d.NewDuckedGain)
		slog.Info("app: ambience gains changed",
			"nominal", d.NewNominalGain, "ducked", d.NewDuckedGain)
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts playback and the engine's long-running loops, blocking until
// ctx is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	// The device pulls mixed PCM straight from the mixer. An injected mixer
	// that is not readable (a test double) leaves the device idle.
	if src, ok := a.mixer.(io.Reader); ok {
		if err := a.device.Start(observe.InstrumentReader(src, a.metrics)); err != nil {
			return fmt.Errorf("%w: %v", ErrDevice, err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.stream.Run(ctx) })
	g.Go(func() error { return a.orch.Run(ctx) })
	if a.ops != nil {
		g.Go(func() error { return a.ops.Run(ctx) })
	}

	slog.Info("app: engine running",
		"match_id", a.orch.MatchID(), "ops", a.cfg.Ops.ListenAddr)
	return g.Wait()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears the pipeline down front to back: stop admitting events,
// close the queue, flush and close the audio path, then flush the archive.
// It respects the context deadline; remaining steps are skipped once it
// expires.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("app: shutting down")

		steps := []struct {
			name string
			fn   func() error
		}{
			{"stream", func() error {
				if a.stream != nil {
					a.stream.Close()
				}
				return nil
			}},
			{"queue", func() error {
				if a.q != nil {
					a.q.Close()
				}
				return nil
			}},
			{"watcher", func() error {
				if a.watcher != nil {
					a.watcher.Stop()
				}
				return nil
			}},
			{"mixer", func() error {
				if a.engine != nil {
					return a.engine.Close()
				}
				return nil
			}},
			{"device", func() error {
				if a.device != nil {
					return a.device.Close()
				}
				return nil
			}},
			{"history", func() error {
				if a.sink != nil {
					a.sink.Close()
				}
				if a.rows != nil {
					a.rows.Close()
				}
				return nil
			}},
		}

		for _, step := range steps {
			select {
			case <-ctx.Done():
				slog.Warn("app: shutdown deadline exceeded", "pending", step.name)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := step.fn(); err != nil {
				slog.Warn("app: shutdown step failed", "step", step.name, "err", err)
			}
		}

		if a.store != nil {
			rt := a.store.Snapshot()
			snap := a.metrics.Snapshot()
			slog.Info("app: session summary",
				"match_id", rt.MatchID,
				"last_spoken", rt.LastSpokenEventID,
				"admitted", snap.Admitted,
				"played", snap.Played,
				"skipped", snap.Skipped,
				"dropped", snap.Dropped,
				"duplicates", snap.Duplicate,
				"reconnects", snap.Reconnects,
				"archived", snap.HistoryRows,
			)
		}
	})
	return shutdownErr
}
