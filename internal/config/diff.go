package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	GainsChanged   bool // true if either ambience gain changed
	NewNominalGain float64
	NewDuckedGain  float64
}

// Empty reports whether the diff carries no hot-applicable change.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.GainsChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart; everything else
// (device format, endpoints, paths) takes effect on the next start.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Log.Level != new.Log.Level {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Log.Level
	}

	// Ambience gains move together so the mixer gets one consistent pair.
	if old.Audio.NominalAmbienceGain != new.Audio.NominalAmbienceGain ||
		old.Audio.DuckedAmbienceGain != new.Audio.DuckedAmbienceGain {
		d.GainsChanged = true
		d.NewNominalGain = new.Audio.NominalAmbienceGain
		d.NewDuckedGain = new.Audio.DuckedAmbienceGain
	}

	return d
}
