// Package resilience keeps a session playable while its LLM backend is
// flaky or gone.
//
// [CircuitBreaker] is a three-state breaker (closed → open → half-open)
// that stops a dead backend from being retried on every frame.
// [FallbackGroup] chains backends with per-entry breakers so a failing
// primary is bypassed in favour of healthy fallbacks; [LLMFallback] is its
// llm.Provider instantiation wired in by the app. [FallbackLog]
// records every use of canned fallback content so sessions can report how
// much of their text was model-generated.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker
// is open and the reset timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls immediately with [ErrCircuitOpen] until the
	// reset timeout elapses.
	StateOpen

	// StateHalfOpen lets a bounded number of trial calls through after the
	// reset timeout; their outcome decides between closing and re-opening.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds the breaker's tuning knobs.
type CircuitBreakerConfig struct {
	// Name labels the breaker in log lines, usually the backend name.
	Name string

	// MaxFailures is the consecutive-failure count that opens the
	// breaker from the closed state. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before allowing
	// trial calls. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax bounds the trial calls permitted in the half-open
	// state before the breaker decides. Default: 3.
	HalfOpenMax int
}

// CircuitBreaker implements the three-state circuit breaker pattern.
// It is safe for concurrent use from multiple goroutines.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int

	mu            sync.Mutex
	state         State
	failures      int
	lastFailure   time.Time
	halfOpenCalls int
	halfOpenFails int
}

// NewCircuitBreaker creates a breaker from cfg. Zero-value fields take
// the documented defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	return &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
		state:        StateClosed,
	}
}

// Execute runs fn if the breaker allows it. In the open state it returns
// [ErrCircuitOpen] without calling fn; in the half-open state only a
// bounded number of trial calls get through.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastFailure) >= cb.resetTimeout {
			cb.state = StateHalfOpen
			cb.halfOpenCalls = 0
			cb.halfOpenFails = 0
			slog.Info("circuit breaker transitioning to half-open",
				"name", cb.name)
		} else {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}

	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.halfOpenMax {
			// Trial budget spent; stay open.
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
	}

	inHalfOpen := cb.state == StateHalfOpen
	if inHalfOpen {
		cb.halfOpenCalls++
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.recordFailure(inHalfOpen)
	} else {
		cb.recordSuccess(inHalfOpen)
	}
	return err
}

// recordFailure updates failure accounting. Callers hold cb.mu.
func (cb *CircuitBreaker) recordFailure(inHalfOpen bool) {
	cb.lastFailure = time.Now()

	if inHalfOpen {
		cb.halfOpenFails++
		// Any half-open failure re-opens immediately.
		cb.state = StateOpen
		cb.failures = cb.maxFailures
		slog.Warn("circuit breaker re-opened from half-open",
			"name", cb.name)
		return
	}

	cb.failures++
	if cb.failures >= cb.maxFailures {
		cb.state = StateOpen
		slog.Warn("circuit breaker opened",
			"name", cb.name,
			"consecutive_failures", cb.failures)
	}
}

// recordSuccess updates success accounting. Callers hold cb.mu.
func (cb *CircuitBreaker) recordSuccess(inHalfOpen bool) {
	if inHalfOpen {
		successes := cb.halfOpenCalls - cb.halfOpenFails
		if successes >= cb.halfOpenMax {
			cb.state = StateClosed
			cb.failures = 0
			cb.halfOpenCalls = 0
			cb.halfOpenFails = 0
			slog.Info("circuit breaker closed after successful trial calls",
				"name", cb.name)
		}
		return
	}

	cb.failures = 0
}

// State returns the breaker's current [State]. An open breaker whose
// reset timeout has elapsed reports [StateHalfOpen]; the stored state
// changes on the next [CircuitBreaker.Execute].
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && time.Since(cb.lastFailure) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker back to [StateClosed] and clears all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failures = 0
	cb.halfOpenCalls = 0
	cb.halfOpenFails = 0
	slog.Info("circuit breaker manually reset", "name", cb.name)
}
