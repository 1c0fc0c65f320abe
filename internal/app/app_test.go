package app

import (
	"context"
	"errors"
	"os"
	"slices"
	"testing"
	"time"

	"github.com/emberforge/wayfarer/internal/config"
	"github.com/emberforge/wayfarer/internal/replay"
	"github.com/emberforge/wayfarer/internal/resilience"
	provider "github.com/emberforge/wayfarer/pkg/provider/llm"
	llmmock "github.com/emberforge/wayfarer/pkg/provider/llm/mock"
)

// offlineConfig returns a config for a backend-less run writing replays
// into a test-scoped directory.
func offlineConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Game.Seed = 42
	cfg.Game.PlayerName = "Aldric"
	cfg.Game.FPS = 60
	cfg.Game.MaxFrames = 3
	cfg.Replay.Dir = t.TempDir()
	return cfg
}

func TestNew_OfflineWiring(t *testing.T) {
	a, err := New(context.Background(), offlineConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	if a.Session() == nil {
		t.Fatal("no session built")
	}
	if a.Bridge() != nil {
		t.Fatal("bridge built without a listen address")
	}
	if a.Session().Seed() != 42 {
		t.Fatalf("seed = %d, want 42", a.Session().Seed())
	}
}

func TestNew_PicksSeedWhenUnset(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.Game.Seed = 0
	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if a.Session().Seed() == 0 {
		t.Fatal("seed was not picked")
	}
}

func TestNew_RequireWithoutBackendFails(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.LLM.Require = true
	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatal("require without a backend accepted")
	}
}

func TestNew_RequireProbesInjectedBackend(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.LLM.Require = true
	cfg.LLM.Provider = "mock"
	a, err := New(context.Background(), cfg, WithBackend(llmmock.New()))
	if err != nil {
		t.Fatal(err)
	}
	if a.backend == nil {
		t.Fatal("backend missing after probe")
	}
}

func TestNew_WrapsBackendInFailoverChain(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.LLM.Provider = "mock"
	a, err := New(context.Background(), cfg, WithBackend(llmmock.New()))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := a.backend.(*resilience.LLMFallback); !ok {
		t.Fatalf("backend = %T, want the circuit-breaker failover wrapper", a.backend)
	}
	if got := a.backend.Name(); got != "mock" {
		t.Fatalf("Name() = %q, want mock", got)
	}
}

func TestBackend_DeadBackendTripsBreaker(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.LLM.Provider = "mock"
	backend := llmmock.New()
	a, err := New(context.Background(), cfg, WithBackend(backend))
	if err != nil {
		t.Fatal(err)
	}

	backend.Err = errors.New("connection refused")
	for i := 0; i < 5; i++ {
		if _, err := a.backend.Complete(context.Background(), provider.CompletionRequest{}); err == nil {
			t.Fatal("dead backend returned success")
		}
	}
	calls := backend.CallCount()

	// Breaker is open: the next call fails fast without reaching the
	// provider.
	_, err = a.backend.Complete(context.Background(), provider.CompletionRequest{})
	if !errors.Is(err, resilience.ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed from the open breaker", err)
	}
	if backend.CallCount() != calls {
		t.Fatal("open breaker still forwarded the call")
	}
}

func TestBackend_FailsOverToConfiguredFallback(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.LLM.Provider = "mock"
	cfg.LLM.FallbackProviders = []string{"mock"}
	dead := llmmock.New()
	dead.Err = errors.New("down")
	a, err := New(context.Background(), cfg, WithBackend(dead))
	if err != nil {
		t.Fatal(err)
	}

	resp, err := a.backend.Complete(context.Background(), provider.CompletionRequest{
		Messages: []provider.Message{{Role: "user", Content: "hello"}},
	})
	if err != nil {
		t.Fatalf("fallback chain failed: %v", err)
	}
	if resp == nil || resp.Content == "" {
		t.Fatal("fallback provider returned an empty response")
	}
}

func TestNew_UnknownFallbackProviderFails(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.LLM.Provider = "mock"
	cfg.LLM.FallbackProviders = []string{"nonesuch"}
	if _, err := New(context.Background(), cfg, WithBackend(llmmock.New())); err == nil {
		t.Fatal("unknown fallback provider accepted")
	}
}

func TestRun_StopsAtFrameBudgetAndSavesReplay(t *testing.T) {
	cfg := offlineConfig(t)
	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := a.Session().Frame(); got != 3 {
		t.Fatalf("frame = %d, want 3", got)
	}

	path := cfg.Replay.Path(a.Session().ID())
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("replay not written: %v", err)
	}
	f, err := replay.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if f.Header.GameSeed != 42 {
		t.Fatalf("replay seed = %d, want 42", f.Header.GameSeed)
	}
}

func TestRun_SavesReplayOnCancellation(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.Game.MaxFrames = 0 // unbounded
	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	if err := a.Run(ctx); err != nil {
		t.Fatalf("run after cancel: %v", err)
	}

	if _, err := os.Stat(cfg.Replay.Path(a.Session().ID())); err != nil {
		t.Fatalf("replay not written: %v", err)
	}
}

func TestRun_ResumesFromReplay(t *testing.T) {
	cfg := offlineConfig(t)
	first, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := first.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	f, err := replay.Load(cfg.Replay.Path(first.Session().ID()))
	if err != nil {
		t.Fatal(err)
	}
	second, err := New(context.Background(), cfg, WithResume(f))
	if err != nil {
		t.Fatal(err)
	}
	if got := second.Session().Frame(); got != 3 {
		t.Fatalf("resumed frame = %d, want 3", got)
	}
	if second.Session().World().Protagonist() == nil {
		t.Fatal("protagonist missing after resume")
	}
}

func TestDefaultRegistry_CoversConfiguredProviderNames(t *testing.T) {
	names := DefaultRegistry().Names()
	for _, want := range config.ValidProviderNames {
		if !slices.Contains(names, want) {
			t.Fatalf("registry is missing provider %q", want)
		}
	}
}

func TestStopReason(t *testing.T) {
	a, err := New(context.Background(), offlineConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	if got := a.stopReason(); got != "stopped" {
		t.Fatalf("reason = %q, want stopped", got)
	}
	a.Session().World().Protagonist().Dead = true
	if got := a.stopReason(); got != "death" {
		t.Fatalf("reason = %q, want death", got)
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	a, err := New(context.Background(), offlineConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
}
