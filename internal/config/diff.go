package config

// Diff describes what changed between two configs. Only fields that can
// be hot-reloaded mid-run are tracked: log verbosity and the frame
// rate. Everything else (seed, theme, backend) is fixed at session
// start and needs a restart.
type DiffResult struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	FPSChanged bool
	NewFPS     float64
}

// Any reports whether the diff carries at least one change.
func (d DiffResult) Any() bool {
	return d.LogLevelChanged || d.FPSChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) DiffResult {
	d := DiffResult{}
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Game.FPS != new.Game.FPS {
		d.FPSChanged = true
		d.NewFPS = new.Game.FPS
	}
	return d
}
