// Package app wires all Wayfarer subsystems into a running engine
// process.
//
// The App owns the full lifecycle: New builds the LLM backend, the
// session, the frame loop, and the observer surfaces; Run drives the
// autonomous loop until the session ends or the context is cancelled;
// Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithBackend,
// WithGenerator, etc.). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/emberforge/wayfarer/internal/config"
	"github.com/emberforge/wayfarer/internal/content"
	"github.com/emberforge/wayfarer/internal/eventbus"
	"github.com/emberforge/wayfarer/internal/health"
	"github.com/emberforge/wayfarer/internal/llm"
	"github.com/emberforge/wayfarer/internal/loop"
	"github.com/emberforge/wayfarer/internal/observe"
	"github.com/emberforge/wayfarer/internal/publisher"
	"github.com/emberforge/wayfarer/internal/replay"
	"github.com/emberforge/wayfarer/internal/resilience"
	"github.com/emberforge/wayfarer/internal/session"
	"github.com/emberforge/wayfarer/internal/wsbridge"
	provider "github.com/emberforge/wayfarer/pkg/provider/llm"
	"github.com/emberforge/wayfarer/pkg/provider/llm/anyllm"
	llmmock "github.com/emberforge/wayfarer/pkg/provider/llm/mock"
	"github.com/emberforge/wayfarer/pkg/provider/llm/openai"
)

// llmRequestTimeout caps a single backend completion, including the
// startup probe issued when llm.require is set.
const llmRequestTimeout = 60 * time.Second

// probeTimeout bounds the llm.require startup probe.
const probeTimeout = 10 * time.Second

// anyllmProviders are the backend names served through the any-llm
// multi-provider bridge. None of them forward seeds; replays of runs
// on these backends lean on the recorded call cache.
var anyllmProviders = []string{
	"anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// DefaultRegistry returns the provider registry used when none is
// injected: "openai" (seeded, preferred for reproducible runs), "mock"
// (tests and demos), and the any-llm backends.
func DefaultRegistry() *config.Registry {
	r := config.NewRegistry()
	r.Register("openai", func(cfg config.LLMConfig) (provider.Provider, error) {
		opts := []openai.Option{openai.WithTimeout(llmRequestTimeout)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(cfg.APIKey, cfg.Model, opts...)
	})
	r.Register("mock", func(cfg config.LLMConfig) (provider.Provider, error) {
		return llmmock.New(), nil
	})
	for _, name := range anyllmProviders {
		r.Register(name, func(cfg config.LLMConfig) (provider.Provider, error) {
			var opts []anyllmlib.Option
			if cfg.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(cfg.APIKey))
			}
			if cfg.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(cfg.BaseURL))
			}
			return anyllm.New(name, cfg.Model, opts...)
		})
	}
	return r
}

// App owns all subsystem lifetimes for one engine process.
type App struct {
	cfg     *config.Config
	metrics *observe.Metrics

	registry    *config.Registry
	backend     provider.Provider
	generator   content.Generator
	replayCache *llm.ReplayCache
	resume      *replay.File
	watchPath   string

	sess    *session.Session
	runner  *loop.Runner
	bridge  *wsbridge.Server
	watcher *config.Watcher

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test
// doubles or to select a non-default run mode.
type Option func(*App)

// WithBackend injects an LLM provider instead of creating one from the
// config registry.
func WithBackend(p provider.Provider) Option {
	return func(a *App) { a.backend = p }
}

// WithGenerator injects a world generator instead of the default
// LLM-or-builtin choice.
func WithGenerator(g content.Generator) Option {
	return func(a *App) { a.generator = g }
}

// WithMetrics injects a metrics bundle instead of building one from the
// global meter provider.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithRegistry replaces [DefaultRegistry].
func WithRegistry(r *config.Registry) Option {
	return func(a *App) { a.registry = r }
}

// WithReplayCache answers every LLM call from a recorded replay instead
// of the backend. Used by deterministic replay playback.
func WithReplayCache(c *llm.ReplayCache) Option {
	return func(a *App) { a.replayCache = c }
}

// WithResume continues the session recorded in f from its last
// checkpoint instead of generating a fresh world.
func WithResume(f *replay.File) Option {
	return func(a *App) { a.resume = f }
}

// WithConfigWatch hot-reloads log level and frame rate when the file at
// path changes.
func WithConfigWatch(path string) Option {
	return func(a *App) { a.watchPath = path }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New builds an App by wiring all subsystems together: metrics, the LLM
// backend (with the llm.require startup probe), the game session, the
// metrics event observer, the frame loop, and the websocket bridge.
//
// New performs all initialisation synchronously; the returned App is
// ready for [App.Run].
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Metrics ───────────────────────────────────────────────────────
	if a.metrics == nil {
		m, err := observe.NewMetrics(otel.GetMeterProvider())
		if err != nil {
			return nil, fmt.Errorf("app: init metrics: %w", err)
		}
		a.metrics = m
	}

	// ── 2. LLM backend ───────────────────────────────────────────────────
	if err := a.initBackend(ctx); err != nil {
		return nil, fmt.Errorf("app: init llm backend: %w", err)
	}

	// ── 3. Session ───────────────────────────────────────────────────────
	if err := a.initSession(ctx); err != nil {
		return nil, fmt.Errorf("app: init session: %w", err)
	}

	// ── 4. Metrics observer ──────────────────────────────────────────────
	a.sess.RegisterObserver("metrics", publisher.Observer[session.StateSnapshot]{
		OnGameEvent: a.recordEventMetrics,
	})

	// ── 5. Frame loop ────────────────────────────────────────────────────
	runner, err := loop.New(&instrumentedStepper{sess: a.sess, metrics: a.metrics}, loop.Config{
		FPS:       cfg.Game.FPS,
		MaxFrames: cfg.Game.MaxFrames,
	})
	if err != nil {
		return nil, fmt.Errorf("app: init frame loop: %w", err)
	}
	a.runner = runner

	// ── 6. Observer bridge ───────────────────────────────────────────────
	if cfg.Server.ListenAddr != "" {
		a.bridge = wsbridge.New(a.sess, a.metrics)
	}

	// ── 7. Config watcher ────────────────────────────────────────────────
	if a.watchPath != "" {
		w, err := config.NewWatcher(a.watchPath, a.onConfigChange)
		if err != nil {
			return nil, fmt.Errorf("app: watch config: %w", err)
		}
		a.watcher = w
		a.closers = append(a.closers, func() error { w.Stop(); return nil })
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initBackend creates the configured LLM provider, wraps it in the
// circuit-breaker failover chain, and, when llm.require is set, probes
// it with a one-token completion before the world is generated.
func (a *App) initBackend(ctx context.Context) error {
	if a.backend == nil && a.cfg.LLM.Provider != "" {
		reg := a.registry
		if reg == nil {
			reg = DefaultRegistry()
		}
		p, err := reg.Create(a.cfg.LLM)
		if err != nil {
			return err
		}
		a.backend = p
		slog.Info("llm backend ready", "provider", p.Name(), "model", a.cfg.LLM.Model)
	}

	if a.backend != nil {
		if err := a.wrapBackend(); err != nil {
			return err
		}
	}

	if !a.cfg.LLM.Require {
		return nil
	}
	if a.backend == nil {
		return fmt.Errorf("%w: llm.require is set but no backend is configured", ErrBackendUnavailable)
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	_, err := a.backend.Complete(probeCtx, provider.CompletionRequest{
		Messages:  []provider.Message{{Role: "user", Content: "ping"}},
		MaxTokens: 1,
	})
	if err != nil {
		a.metrics.RecordLLMRequest(ctx, "app", "probe", "error")
		return fmt.Errorf("%w: backend %q failed startup probe: %w", ErrBackendUnavailable, a.backend.Name(), err)
	}
	a.metrics.RecordLLMRequest(ctx, "app", "probe", "ok")
	slog.Info("llm backend probe passed", "provider", a.backend.Name())
	return nil
}

// wrapBackend layers circuit-breaker failover between the session and
// the raw provider. With no fallbacks configured the chain is just the
// primary behind its breaker: once the breaker opens, calls fail fast
// and the session runs on canned content until the reset timeout.
func (a *App) wrapBackend() error {
	if _, ok := a.backend.(*resilience.LLMFallback); ok {
		return nil
	}
	primaryName := a.cfg.LLM.Provider
	if primaryName == "" {
		primaryName = a.backend.Name()
	}
	wrapped := resilience.NewLLMFallback(a.backend, primaryName, resilience.FallbackConfig{})

	reg := a.registry
	if reg == nil {
		reg = DefaultRegistry()
	}
	for _, name := range a.cfg.LLM.FallbackProviders {
		fcfg := a.cfg.LLM
		fcfg.Provider = name
		fb, err := reg.Create(fcfg)
		if err != nil {
			return fmt.Errorf("create fallback provider %q: %w", name, err)
		}
		wrapped.AddFallback(name, fb)
	}
	a.backend = wrapped
	slog.Info("llm failover chain ready", "backends", wrapped.Names())
	return nil
}

// initSession builds a fresh session or continues one from a replay
// checkpoint.
func (a *App) initSession(ctx context.Context) error {
	seed := a.cfg.Game.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
		slog.Info("no seed configured, picked one", "seed", seed)
	}
	scfg := session.Config{
		Seed:            seed,
		Theme:           a.cfg.Game.Theme,
		PlayerName:      a.cfg.Game.PlayerName,
		Model:           a.cfg.LLM.Model,
		Backend:         a.backend,
		Generator:       a.generator,
		ReplayCache:     a.replayCache,
		CheckpointEvery: a.cfg.Game.CheckpointEvery,

		DisableGroupQuestDetection: !a.cfg.Game.AutoDetectQuestsInGroups,
	}

	var (
		sess *session.Session
		err  error
	)
	if a.resume != nil {
		sess, err = session.Continue(a.resume, scfg)
	} else {
		sess, err = session.New(ctx, scfg)
	}
	if err != nil {
		return err
	}
	a.sess = sess
	return nil
}

// recordEventMetrics translates broadcast game events into counters.
func (a *App) recordEventMetrics(ev eventbus.Event) {
	ctx := context.Background()
	a.metrics.RecordGameEvent(ctx, ev.Type)

	switch ev.Type {
	case eventbus.EventActionExecuted:
		actionType, _ := ev.Payload["actionType"].(string)
		success, _ := ev.Payload["success"].(bool)
		a.metrics.RecordAction(ctx, actionType, success)
	case eventbus.EventFallbackUsed:
		subsystem, _ := ev.Payload["subsystem"].(string)
		operation, _ := ev.Payload["operation"].(string)
		a.metrics.RecordFallback(ctx, subsystem, operation)
	}
}

// onConfigChange applies the hot-reloadable slice of a rewritten config
// file: log level and frame rate. Everything else needs a restart.
func (a *App) onConfigChange(old, next *config.Config) {
	d := config.Diff(old, next)
	if !d.Any() {
		return
	}
	if d.LogLevelChanged {
		slog.SetLogLoggerLevel(d.NewLogLevel.Slog())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.FPSChanged {
		if err := a.runner.SetRate(d.NewFPS); err != nil {
			slog.Warn("rejected frame rate from config reload", "fps", d.NewFPS, "error", err)
		}
	}
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Session returns the running game session.
func (a *App) Session() *session.Session { return a.sess }

// Bridge returns the websocket observer bridge, or nil when no listen
// address is configured.
func (a *App) Bridge() *wsbridge.Server { return a.bridge }

// ─── Run ─────────────────────────────────────────────────────────────────────

// ErrBackendUnavailable marks a failed llm.require startup check. The
// CLI maps it to its own exit code.
var ErrBackendUnavailable = errors.New("app: llm backend unavailable")

// errRunComplete signals the errgroup that the game ended on its own,
// as opposed to an external cancellation.
var errRunComplete = errors.New("app: run complete")

// Run starts the session and blocks until the game ends, the frame
// budget is spent, or ctx is cancelled. The replay file is written in
// every case, including cancellation.
func (a *App) Run(ctx context.Context) error {
	a.metrics.ActiveSessions.Add(ctx, 1)
	defer a.metrics.ActiveSessions.Add(ctx, -1)

	a.sess.Start()

	g, gctx := errgroup.WithContext(ctx)

	// Frame loop. Stop reason and replay save happen on this goroutine:
	// it is the only one that may touch session state.
	g.Go(func() error {
		frames, err := a.runner.Run(gctx)
		a.sess.Stop(a.stopReason())
		if saveErr := a.saveReplay(); saveErr != nil {
			slog.Error("replay save failed", "error", saveErr)
		}
		slog.Info("run finished", "frames", frames)
		if err != nil {
			return err
		}
		return errRunComplete
	})

	// Observer bridge.
	if a.bridge != nil {
		g.Go(func() error {
			return a.bridge.Serve(gctx, a.cfg.Server.ListenAddr)
		})
	}

	// Prometheus scrape endpoint + health probes.
	if a.cfg.Server.MetricsAddr != "" {
		g.Go(func() error {
			return a.serveMetrics(gctx, a.cfg.Server.MetricsAddr)
		})
	}

	err := g.Wait()
	if errors.Is(err, errRunComplete) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// stopReason derives the reason string announced in game_ended.
func (a *App) stopReason() string {
	hero := a.sess.World().Protagonist()
	switch {
	case hero == nil || hero.Dead:
		return "death"
	case len(a.sess.World().ActiveQuests()) == 0 && len(a.sess.World().CompletedQuests()) > 0:
		return "completed"
	default:
		return "stopped"
	}
}

// saveReplay writes the session's replay log under the configured
// replay directory.
func (a *App) saveReplay() error {
	path := a.cfg.Replay.Path(a.sess.ID())
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := a.sess.SaveReplay(path); err != nil {
		return err
	}
	slog.Info("replay saved", "path", path)
	return nil
}

// serveMetrics runs the Prometheus scrape endpoint and the health
// probes until ctx is cancelled.
func (a *App) serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(a.healthCheckers()...).Register(mux)

	srv := &http.Server{Addr: addr, Handler: mux}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	slog.Info("metrics endpoint listening", "addr", addr)
	select {
	case <-ctx.Done():
		_ = srv.Shutdown(context.Background())
		return nil
	case err := <-errc:
		return err
	}
}

// healthCheckers builds the readiness checks. Session state is owned by
// the frame-loop goroutine, so checks only probe process-level
// dependencies.
func (a *App) healthCheckers() []health.Checker {
	return []health.Checker{
		{
			Name: "replay_dir",
			Check: func(context.Context) error {
				return os.MkdirAll(filepath.Dir(a.cfg.Replay.Path("probe")), 0o755)
			},
		},
		{
			Name: "llm",
			Check: func(context.Context) error {
				if !a.cfg.LLM.Require {
					return nil
				}
				if a.backend == nil {
					return errors.New("required backend missing")
				}
				if fb, ok := a.backend.(*resilience.LLMFallback); ok && fb.Degraded() {
					return errors.New("all backends have open circuit breakers")
				}
				return nil
			},
		},
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the frame loop and tears subsystems down in order. It
// respects the context deadline: if ctx expires before all closers
// finish, remaining closers are skipped and the context error is
// returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		a.runner.Stop()

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "error", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Frame instrumentation ───────────────────────────────────────────────────

// instrumentedStepper wraps the session's Step with a frame duration
// histogram.
type instrumentedStepper struct {
	sess    *session.Session
	metrics *observe.Metrics
}

var _ loop.Stepper = (*instrumentedStepper)(nil)

func (s *instrumentedStepper) Step(ctx context.Context) bool {
	start := time.Now()
	alive := s.sess.Step(ctx)
	s.metrics.FrameDuration.Record(ctx, time.Since(start).Seconds())
	return alive
}

func (s *instrumentedStepper) Frame() int64 { return s.sess.Frame() }
