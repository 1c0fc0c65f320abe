package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every backend in a [FallbackGroup] fails or
// has an open circuit breaker. The LLM client maps it to the UNAVAILABLE
// reason code, so the session degrades to canned content instead of erroring.
var ErrAllFailed = errors.New("all backends failed")

// FallbackConfig configures the per-entry circuit breaker created for each
// backend in a [FallbackGroup]. Zero-value breaker fields take the breaker
// defaults.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

// fallbackEntry pairs one backend with its dedicated circuit breaker.
type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup chains a primary and zero or more fallback backends of the
// same type. When the primary fails, or its breaker is open, the next
// healthy entry is tried in registration order. Breaker state is wall-clock
// driven and never feeds the deterministic RNG streams; replays reproduce
// failover runs from the recorded call cache, not from breaker timing.
//
// FallbackGroup is safe for concurrent use.
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
	cfg     FallbackConfig
}

// NewFallbackGroup creates a group with primary as the first entry.
// Additional backends are registered via [FallbackGroup.AddFallback].
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	cbCfg := cfg.CircuitBreaker
	cbCfg.Name = primaryName
	return &FallbackGroup[T]{
		entries: []fallbackEntry[T]{
			{
				name:    primaryName,
				value:   primary,
				breaker: NewCircuitBreaker(cbCfg),
			},
		},
		cfg: cfg,
	}
}

// AddFallback appends a backend tried after the primary, in the order added.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	fg.entries = append(fg.entries, fallbackEntry[T]{
		name:    name,
		value:   fallback,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Names returns the backend names in try order, primary first.
func (fg *FallbackGroup[T]) Names() []string {
	names := make([]string, len(fg.entries))
	for i, e := range fg.entries {
		names[i] = e.name
	}
	return names
}

// Execute tries fn against each entry in order until one succeeds. Entries
// with an open breaker are skipped. Returns [ErrAllFailed] wrapped around
// the last error when every entry fails.
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	var lastErr error
	for i := range fg.entries {
		entry := &fg.entries[i]
		err := entry.breaker.Execute(func() error {
			return fn(entry.value)
		})
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping backend, circuit open", "backend", entry.name)
		} else {
			slog.Warn("backend failed, trying next",
				"backend", entry.name, "error", err)
		}
	}
	return fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}

// ExecuteWithResult tries fn against each entry until one succeeds and
// returns its result. A package-level function because Go methods cannot
// carry their own type parameters.
func ExecuteWithResult[T any, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		lastErr error
		zero    R
	)
	for i := range fg.entries {
		entry := &fg.entries[i]
		var result R
		err := entry.breaker.Execute(func() error {
			var innerErr error
			result, innerErr = fn(entry.value)
			return innerErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping backend, circuit open", "backend", entry.name)
		} else {
			slog.Warn("backend failed, trying next",
				"backend", entry.name, "error", err)
		}
	}
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
