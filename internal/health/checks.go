package health

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ovalsounds/stumpcast/internal/stream"
)

// Pinger is the probe surface of the archive store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Player is the probe surface of the audio device.
type Player interface {
	Playing() bool
}

// Stream reports ready only while the push connection is up. A reconnecting
// engine still plays whatever is queued, so liveness is unaffected.
func Stream(c *stream.Client) Checker {
	return Checker{
		Name: "stream",
		Check: func(context.Context) error {
			if s := c.Status(); s != stream.StatusConnected {
				return fmt.Errorf("stream is %s", s)
			}
			return nil
		},
	}
}

// StateDir verifies the checkpoint location is still writable by creating
// and removing a probe file next to the state file.
func StateDir(statePath string) Checker {
	return Checker{
		Name: "state",
		Check: func(context.Context) error {
			probe := filepath.Join(filepath.Dir(statePath), ".readyz-probe")
			f, err := os.Create(probe)
			if err != nil {
				return fmt.Errorf("state dir not writable: %w", err)
			}
			if err := f.Close(); err != nil {
				return err
			}
			return os.Remove(probe)
		},
	}
}

// History reports whether the archive database is reachable. Register it
// only when a store is configured; a file-only archive has nothing to probe.
func History(p Pinger) Checker {
	return Checker{Name: "history", Check: p.Ping}
}

// Device reports whether the platform audio player is still pulling samples.
func Device(p Player) Checker {
	return Checker{
		Name: "device",
		Check: func(context.Context) error {
			if !p.Playing() {
				return errors.New("audio player is not running")
			}
			return nil
		},
	}
}
