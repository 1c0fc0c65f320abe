// Package config provides the configuration schema, loader, and LLM
// provider registry for the Wayfarer engine.
package config

import (
	"log/slog"
	"path/filepath"
)

// LogLevel controls log verbosity for the engine.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog maps l to the corresponding [slog.Level]. Unrecognised values
// map to info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure for Wayfarer.
// It is typically loaded from a YAML file using [Load] or
// [LoadFromReader], then overridden from the environment with
// [ApplyEnv].
type Config struct {
	Server ServerConfig `yaml:"server"`
	LLM    LLMConfig    `yaml:"llm"`
	Game   GameConfig   `yaml:"game"`
	Replay ReplayConfig `yaml:"replay"`
}

// ServerConfig holds settings for the read-only observer endpoint.
type ServerConfig struct {
	// ListenAddr is the TCP address the websocket bridge listens on
	// (e.g., ":8080"). Empty disables the bridge.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr is the address the Prometheus scrape endpoint listens
	// on. Empty disables metrics.
	MetricsAddr string `yaml:"metrics_addr"`
}

// LLMConfig selects and configures the language-model backend.
type LLMConfig struct {
	// Provider selects the registered backend implementation
	// (e.g., "openai", "anyllm", "mock"). Empty runs fully offline on
	// fallback templates.
	Provider string `yaml:"provider"`

	// APIKey authenticates against the provider's API if any.
	APIKey string `yaml:"api_key" env:"LLM_API_KEY"`

	// BaseURL overrides the provider's default API endpoint. Points at
	// a local server for self-hosted models.
	BaseURL string `yaml:"base_url" env:"LLM_ENDPOINT"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model" env:"LLM_MODEL"`

	// FallbackProviders lists backends tried, in order, when the
	// primary fails or its circuit breaker is open. Each entry shares
	// the primary's credentials and model settings.
	FallbackProviders []string `yaml:"fallback_providers"`

	// Require refuses to start when the backend is unreachable instead
	// of degrading to offline fallbacks.
	Require bool `yaml:"require"`
}

// GameConfig tunes one autonomous run.
type GameConfig struct {
	// Seed is the master seed. Zero asks the engine to pick one.
	Seed int64 `yaml:"seed"`

	// Theme steers world generation (e.g., "fantasy", "nautical").
	Theme string `yaml:"theme"`

	// PlayerName names the protagonist.
	PlayerName string `yaml:"player_name"`

	// FPS is autonomous frames per real-time second.
	FPS float64 `yaml:"fps"`

	// MaxFrames stops the run after this many frames. Zero means
	// unbounded.
	MaxFrames int64 `yaml:"max_frames"`

	// CheckpointEvery overrides the replay checkpoint interval in
	// frames.
	CheckpointEvery int64 `yaml:"checkpoint_every"`

	// AutoDetectQuestsInGroups lets group conversations spawn new
	// quests through the LLM detection pipeline.
	AutoDetectQuestsInGroups bool `yaml:"auto_detect_quests_in_groups"`
}

// ReplayConfig locates the replay archive.
type ReplayConfig struct {
	// Dir is the directory replay files are written into.
	Dir string `yaml:"dir" env:"REPLAY_DIR"`
}

// Path returns the replay file path for a session id.
func (r ReplayConfig) Path(sessionID string) string {
	dir := r.Dir
	if dir == "" {
		dir = "replays"
	}
	return filepath.Join(dir, sessionID+".replay.gz")
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{LogLevel: LogInfo},
		Game:   GameConfig{Theme: "fantasy", FPS: 2.0, AutoDetectQuestsInGroups: true},
		Replay: ReplayConfig{Dir: "replays"},
	}
}
