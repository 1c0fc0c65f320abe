package resilience

import (
	"context"

	"github.com/emberforge/wayfarer/pkg/provider/llm"
)

// LLMFallback implements [llm.Provider] with automatic failover across multiple
// LLM backends. Each backend has its own circuit breaker; when the primary fails
// or its breaker is open, the next healthy fallback is tried.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

// Compile-time interface assertion.
var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional LLM provider as a fallback.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Names returns the chain's backend names in try order, primary first.
func (f *LLMFallback) Names() []string { return f.group.Names() }

// Degraded reports whether every backend in the chain has an open
// breaker, meaning completions currently fail fast without reaching any
// provider.
func (f *LLMFallback) Degraded() bool {
	for i := range f.group.entries {
		if f.group.entries[i].breaker.State() != StateOpen {
			return false
		}
	}
	return true
}

// Complete sends the request to the first healthy provider and returns its
// response. If the primary fails, subsequent fallbacks are tried.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// Name returns the primary backend's name. The identity does not change when
// failover happens mid-session; use the fallback log for per-call attribution.
func (f *LLMFallback) Name() string {
	if len(f.group.entries) > 0 {
		return f.group.entries[0].value.Name()
	}
	return "none"
}
