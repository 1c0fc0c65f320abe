// Package loop drives a session's autonomous frames on a real-time
// ticker. The loop owns no game state; it only decides when the next
// frame fires and when the run is over.
package loop

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Frame-rate bounds. Below the minimum the game crawls; above the
// maximum the LLM budget burns for no narrative gain.
const (
	DefaultFPS = 2.0
	MinFPS     = 0.5
	MaxFPS     = 60.0
)

// Stepper is the slice of the session the loop needs.
type Stepper interface {
	// Step runs one frame and reports whether the session can continue.
	Step(ctx context.Context) bool
	Frame() int64
}

// Config tunes a [Runner].
type Config struct {
	// FPS is frames per real-time second. Zero picks [DefaultFPS].
	FPS float64

	// MaxFrames stops the run after this many frames. Zero means
	// unbounded.
	MaxFrames int64
}

// Runner ticks a session until it ends, the frame budget is spent, or
// the context is cancelled.
type Runner struct {
	stepper  Stepper
	interval time.Duration
	maxFrame int64

	done     chan struct{}
	rateCh   chan time.Duration
	stopOnce sync.Once
}

// New validates cfg and builds a runner.
func New(s Stepper, cfg Config) (*Runner, error) {
	fps := cfg.FPS
	if fps == 0 {
		fps = DefaultFPS
	}
	if fps < MinFPS || fps > MaxFPS {
		return nil, fmt.Errorf("loop: fps %.2f outside [%.1f, %.1f]", fps, MinFPS, MaxFPS)
	}
	return &Runner{
		stepper:  s,
		interval: time.Duration(float64(time.Second) / fps),
		maxFrame: cfg.MaxFrames,
		done:     make(chan struct{}),
		rateCh:   make(chan time.Duration, 1),
	}, nil
}

// SetRate changes the frame rate of a running loop. Safe to call from
// other goroutines; the change applies from the next tick.
func (r *Runner) SetRate(fps float64) error {
	if fps < MinFPS || fps > MaxFPS {
		return fmt.Errorf("loop: fps %.2f outside [%.1f, %.1f]", fps, MinFPS, MaxFPS)
	}
	d := time.Duration(float64(time.Second) / fps)
	select {
	case r.rateCh <- d:
	default:
		// Pending change not yet consumed; drop the stale one.
		select {
		case <-r.rateCh:
		default:
		}
		r.rateCh <- d
	}
	return nil
}

// Stop ends the run after the current frame. Safe to call multiple
// times and from other goroutines.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() { close(r.done) })
}

// Run blocks, firing frames at the configured rate. It returns the
// number of frames processed and a non-nil error only when ctx was
// cancelled mid-run.
func (r *Runner) Run(ctx context.Context) (int64, error) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	start := r.stepper.Frame()
	slog.Info("frame loop running", "interval", r.interval, "maxFrames", r.maxFrame)

	for {
		select {
		case <-ctx.Done():
			return r.stepper.Frame() - start, ctx.Err()
		case <-r.done:
			return r.stepper.Frame() - start, nil
		case d := <-r.rateCh:
			ticker.Reset(d)
			slog.Info("frame rate changed", "interval", d)
		case <-ticker.C:
			if !r.stepper.Step(ctx) {
				slog.Info("session ended", "frame", r.stepper.Frame())
				return r.stepper.Frame() - start, nil
			}
			if r.maxFrame > 0 && r.stepper.Frame()-start >= r.maxFrame {
				slog.Info("frame budget reached", "frame", r.stepper.Frame())
				return r.stepper.Frame() - start, nil
			}
		}
	}
}
