package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/emberforge/wayfarer/internal/loop"
)

// ValidProviderNames lists known LLM backend names. Used by [Validate]
// to warn about unrecognised provider names.
var ValidProviderNames = []string{
	"openai", "mock",
	"anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// Load reads the YAML configuration file at path, applies environment
// overrides, and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies environment
// overrides, and validates the result. Useful in tests where configs
// are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg fields from the environment variables named in
// the schema's env tags.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("config: parse env: %w", err)
	}
	return nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if name := cfg.LLM.Provider; name != "" && !slices.Contains(ValidProviderNames, name) {
		slog.Warn("unknown LLM provider name — may be a typo or third-party provider",
			"name", name,
			"known", ValidProviderNames,
		)
	}
	for _, name := range cfg.LLM.FallbackProviders {
		if !slices.Contains(ValidProviderNames, name) {
			slog.Warn("unknown LLM fallback provider name — may be a typo or third-party provider",
				"name", name,
				"known", ValidProviderNames,
			)
		}
	}
	if len(cfg.LLM.FallbackProviders) > 0 && cfg.LLM.Provider == "" {
		errs = append(errs, errors.New("llm.fallback_providers is set but llm.provider is not configured"))
	}
	if cfg.LLM.Require && cfg.LLM.Provider == "" {
		errs = append(errs, errors.New("llm.require is set but llm.provider is not configured"))
	}
	if cfg.LLM.Provider == "" {
		slog.Warn("no LLM provider configured; the engine runs offline on fallback templates")
	}

	if fps := cfg.Game.FPS; fps != 0 && (fps < loop.MinFPS || fps > loop.MaxFPS) {
		errs = append(errs, fmt.Errorf("game.fps %.2f is out of range [%.1f, %.1f]", fps, loop.MinFPS, loop.MaxFPS))
	}
	if cfg.Game.MaxFrames < 0 {
		errs = append(errs, fmt.Errorf("game.max_frames %d is negative", cfg.Game.MaxFrames))
	}
	if cfg.Game.CheckpointEvery < 0 {
		errs = append(errs, fmt.Errorf("game.checkpoint_every %d is negative", cfg.Game.CheckpointEvery))
	}

	return errors.Join(errs...)
}
