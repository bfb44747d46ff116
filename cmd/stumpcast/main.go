// Command stumpcast is the live commentary engine for indoor cricket venues.
// It follows a match's event stream, voices each ball over a crowd ambience
// bed, and archives what it spoke.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ovalsounds/stumpcast/internal/app"
	"github.com/ovalsounds/stumpcast/internal/config"
)

// Exit codes. Supervisors restart on 2 with a longer backoff because a missing
// audio device rarely fixes itself within seconds.
const (
	exitOK     = 0
	exitError  = 1
	exitDevice = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "stumpcast: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "stumpcast: %v\n", err)
		}
		return exitError
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// The level lives in a LevelVar so a config reload can adjust verbosity
	// without restarting.
	level := new(slog.LevelVar)
	level.Set(cfg.Log.Level.SlogLevel())
	slog.SetDefault(newLogger(level, cfg.Log.Format))

	slog.Info("stumpcast starting",
		"config", *configPath,
		"api", cfg.API.BaseURL,
		"log_level", cfg.Log.Level,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg,
		app.WithLogLevel(level),
		app.WithConfigFile(*configPath),
	)
	if err != nil {
		slog.Error("failed to initialise engine", "err", err)
		if errors.Is(err, app.ErrDevice) {
			return exitDevice
		}
		return exitError
	}

	slog.Info("engine ready — press Ctrl+C to shut down")

	code := exitOK
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		if errors.Is(err, app.ErrDevice) {
			code = exitDevice
		} else {
			code = exitError
		}
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return exitError
	}
	slog.Info("goodbye")
	return code
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        Stumpcast — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	match := cfg.Match.ID
	if match == "" {
		match = "(auto-discover)"
	}
	printRow("Match", match)
	printRow("Scoring API", cfg.API.BaseURL)
	printRow("Voice", cfg.TTS.VoiceID)
	printRow("Sample rate", fmt.Sprintf("%d Hz", cfg.Audio.SampleRate))
	if cfg.Audio.AmbiencePath != "" {
		printRow("Ambience", cfg.Audio.AmbiencePath)
	} else {
		printRow("Ambience", "(disabled)")
	}
	if cfg.History.SaveAudio {
		printRow("Audio history", cfg.History.Dir)
	} else {
		printRow("Audio history", "(disabled)")
	}
	if cfg.Ops.ListenAddr != "" {
		printRow("Ops endpoint", cfg.Ops.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(name, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-13s   : %-19s ║\n", name, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level slog.Leveler, format config.LogFormat) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == config.LogJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
