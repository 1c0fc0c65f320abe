package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/emberforge/wayfarer/internal/resilience"
	provider "github.com/emberforge/wayfarer/pkg/provider/llm"
	llmmock "github.com/emberforge/wayfarer/pkg/provider/llm/mock"
)

func userMsg(text string) []provider.Message {
	return []provider.Message{{Role: "user", Content: text}}
}

func TestGenerate_Success(t *testing.T) {
	backend := llmmock.New()
	backend.Queue("a fine morning in Milbrook")

	var recorded []CallRecord
	c := NewClient(backend, "test-model", 42, resilience.NewFallbackLog(nil),
		WithRecorder(func(r CallRecord) { recorded = append(recorded, r) }))

	res := c.Generate(context.Background(), Request{
		Subsystem: "DialogueSubsystem",
		Operation: "greeting",
		Frame:     3,
		Messages:  userMsg("greet the player"),
		Fallback:  func() string { return "Hello." },
	})
	if res.UsedFallback {
		t.Fatalf("UsedFallback = true, want false (reason %q)", res.FallbackReason)
	}
	if res.Text != "a fine morning in Milbrook" {
		t.Fatalf("Text = %q", res.Text)
	}
	if len(recorded) != 1 {
		t.Fatalf("recorded %d calls, want 1", len(recorded))
	}
	if recorded[0].Seed != 42 {
		t.Fatalf("first call seed = %d, want masterSeed 42", recorded[0].Seed)
	}
	if recorded[0].Fallback {
		t.Fatal("successful call recorded as fallback")
	}
}

func TestGenerate_SeedsAdvancePerCall(t *testing.T) {
	backend := llmmock.New()
	var seeds []int64
	c := NewClient(backend, "m", 1000, nil,
		WithRecorder(func(r CallRecord) { seeds = append(seeds, r.Seed) }))

	for i := 0; i < 3; i++ {
		c.Generate(context.Background(), Request{
			Subsystem: "Decider",
			Messages:  userMsg("decide"),
			Fallback:  func() string { return "rest" },
		})
	}
	want := []int64{1000, 2000, 3000}
	for i, s := range seeds {
		if s != want[i] {
			t.Fatalf("seeds = %v, want %v", seeds, want)
		}
	}
	if len(backend.Calls) != 3 {
		t.Fatalf("backend saw %d calls, want 3", len(backend.Calls))
	}
	if backend.Calls[1].Seed != 2000 {
		t.Fatalf("backend call seed = %d, want 2000", backend.Calls[1].Seed)
	}
}

func TestGenerate_NilBackendFallsBack(t *testing.T) {
	fl := resilience.NewFallbackLog(nil)
	c := NewClient(nil, "m", 7, fl)

	res := c.Generate(context.Background(), Request{
		Subsystem: "DialogueSubsystem",
		Operation: "greeting",
		Messages:  userMsg("hi"),
		Fallback:  func() string { return "Well met, traveller." },
	})
	if !res.UsedFallback {
		t.Fatal("UsedFallback = false, want true")
	}
	if res.FallbackReason != resilience.ReasonUnavailable {
		t.Fatalf("FallbackReason = %q, want LLM_UNAVAILABLE", res.FallbackReason)
	}
	if res.Text != "Well met, traveller." {
		t.Fatalf("Text = %q", res.Text)
	}
	if fl.CountByReason(resilience.ReasonUnavailable) != 1 {
		t.Fatal("fallback not logged")
	}
}

func TestGenerate_BackendErrorFallsBack(t *testing.T) {
	backend := llmmock.New()
	backend.Err = errors.New("boom")
	fl := resilience.NewFallbackLog(nil)
	c := NewClient(backend, "m", 7, fl)

	res := c.Generate(context.Background(), Request{
		Subsystem: "CombatSubsystem",
		Operation: "narration",
		Messages:  userMsg("narrate"),
		Fallback:  func() string { return "Steel rings against steel." },
	})
	if !res.UsedFallback {
		t.Fatal("UsedFallback = false, want true")
	}
	if res.FallbackReason != resilience.ReasonError {
		t.Fatalf("FallbackReason = %q, want LLM_ERROR", res.FallbackReason)
	}
}

func TestGenerate_TimeoutClassified(t *testing.T) {
	backend := llmmock.New()
	backend.Fn = func(req provider.CompletionRequest) (string, error) {
		return "", context.DeadlineExceeded
	}
	c := NewClient(backend, "m", 7, resilience.NewFallbackLog(nil))

	res := c.Generate(context.Background(), Request{
		Subsystem: "Decider",
		Deadline:  10 * time.Millisecond,
		Messages:  userMsg("decide"),
		Fallback:  func() string { return "rest" },
	})
	if res.FallbackReason != resilience.ReasonTimeout {
		t.Fatalf("FallbackReason = %q, want LLM_TIMEOUT", res.FallbackReason)
	}
}

func TestGenerate_ValidationFailureIsParseError(t *testing.T) {
	backend := llmmock.New()
	backend.Queue("not json at all")
	fl := resilience.NewFallbackLog(nil)
	c := NewClient(backend, "m", 7, fl)

	res := c.Generate(context.Background(), Request{
		Subsystem: "Decider",
		Operation: "decide",
		Messages:  userMsg("pick an action"),
		Validate: func(text string) error {
			return fmt.Errorf("no action field in %q", text)
		},
		Fallback: func() string { return `{"actionType":"rest"}` },
	})
	if !res.UsedFallback {
		t.Fatal("UsedFallback = false, want true")
	}
	if res.FallbackReason != resilience.ReasonParse {
		t.Fatalf("FallbackReason = %q, want PARSE_ERROR", res.FallbackReason)
	}
}

func TestGenerate_ReplayCacheAnswersWithoutBackend(t *testing.T) {
	// First run records calls.
	backend := llmmock.New()
	backend.Queue("the miller waves you over")
	var recorded []CallRecord
	live := NewClient(backend, "m", 500, nil,
		WithRecorder(func(r CallRecord) { recorded = append(recorded, r) }))
	first := live.Generate(context.Background(), Request{
		Subsystem: "DialogueSubsystem",
		Frame:     12,
		Messages:  userMsg("greet"),
		Fallback:  func() string { return "Hello." },
	})

	// Playback run answers from the cache; its backend must never be hit.
	untouched := llmmock.New()
	replay := NewClient(untouched, "m", 500, nil, WithReplayCache(NewReplayCache(recorded)))
	second := replay.Generate(context.Background(), Request{
		Subsystem: "DialogueSubsystem",
		Frame:     12,
		Messages:  userMsg("greet"),
		Fallback:  func() string { return "Hello." },
	})

	if second.Text != first.Text {
		t.Fatalf("playback text = %q, want %q", second.Text, first.Text)
	}
	if untouched.CallCount() != 0 {
		t.Fatal("playback contacted the backend")
	}
}

func TestGenerate_ReplayCacheMissFallsBack(t *testing.T) {
	fl := resilience.NewFallbackLog(nil)
	c := NewClient(llmmock.New(), "m", 500, fl, WithReplayCache(NewReplayCache(nil)))

	res := c.Generate(context.Background(), Request{
		Subsystem: "DialogueSubsystem",
		Frame:     1,
		Messages:  userMsg("greet"),
		Fallback:  func() string { return "Hello." },
	})
	if !res.UsedFallback {
		t.Fatal("cache miss did not fall back")
	}
}
