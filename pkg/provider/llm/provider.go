// Package llm defines the Provider interface for text-generation backends.
//
// A provider wraps a remote or local model API (e.g., OpenAI, Anthropic via
// any-llm, or a local Ollama instance) and exposes a uniform completion
// interface so the engine can request dialogue lines, narration, and
// decisions without coupling to any specific SDK.
//
// The engine requires reproducibility: requests carry an explicit Seed, and
// backends that support seeded sampling must forward it. Backends that
// cannot honour seeds still work — the replay layer then relies on its call
// cache instead.
//
// Implementations must be safe for concurrent use and must propagate
// context cancellation promptly.
package llm

import "context"

// Message is a single entry in a completion conversation.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the text content of the message.
	Content string

	// Name optionally identifies the speaker in multi-participant prompts.
	Name string
}

// CompletionRequest carries everything a backend needs for one completion.
type CompletionRequest struct {
	// SystemPrompt is a high-priority instruction injected before Messages.
	SystemPrompt string

	// Messages is the ordered prompt conversation; the last message drives
	// the response.
	Messages []Message

	// Temperature controls randomness in [0.0, 2.0]. Zero requests the
	// provider default.
	Temperature float64

	// MaxTokens caps completion length. Zero means provider default.
	MaxTokens int

	// Seed requests deterministic sampling. Zero means unseeded. Backends
	// without seed support ignore it.
	Seed int64
}

// Usage holds token accounting returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionResponse is the backend's reply.
type CompletionResponse struct {
	// Content is the full text of the completion.
	Content string

	// Usage contains token accounting; zero-valued when the backend does
	// not report it.
	Usage Usage
}

// Provider is the abstraction over any text-generation backend.
type Provider interface {
	// Complete sends req and waits for the full response. Returns an error
	// if the request fails or ctx is cancelled before completion.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Name identifies the backend ("openai", "anyllm:ollama", "mock") for
	// logs and replay headers.
	Name() string
}
