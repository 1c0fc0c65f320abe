// Package mock provides a scriptable llm.Provider for tests and for running
// the engine fully offline. Responses can be queued, keyed by prompt
// substring, or produced by a function; unmatched requests get a canned
// reply derived from the seed so runs stay deterministic.
package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/emberforge/wayfarer/pkg/provider/llm"
)

// Provider is a test double implementing llm.Provider.
// It is safe for concurrent use.
type Provider struct {
	mu sync.Mutex

	// queued responses consumed in FIFO order before any other matching.
	queued []string

	// rules map prompt substrings to responses.
	rules []rule

	// Fn, when set, produces every response and overrides queue and rules.
	Fn func(req llm.CompletionRequest) (string, error)

	// Err, when set, is returned from every call (simulates an
	// unavailable endpoint).
	Err error

	// Calls records every request received.
	Calls []llm.CompletionRequest
}

type rule struct {
	substring string
	response  string
}

// Compile-time interface assertion.
var _ llm.Provider = (*Provider)(nil)

// New creates an empty mock provider.
func New() *Provider { return &Provider{} }

// Name implements llm.Provider.
func (p *Provider) Name() string { return "mock" }

// Queue appends responses consumed in order by subsequent calls.
func (p *Provider) Queue(responses ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queued = append(p.queued, responses...)
}

// RespondTo registers a response for any request whose final message (or
// system prompt) contains substring. Rules are checked in registration
// order after the queue is exhausted.
func (p *Provider) RespondTo(substring, response string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rules = append(p.rules, rule{substring: substring, response: response})
}

// CallCount returns the number of requests received.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, req)

	if p.Err != nil {
		return nil, p.Err
	}
	if p.Fn != nil {
		text, err := p.Fn(req)
		if err != nil {
			return nil, err
		}
		return response(text), nil
	}
	if len(p.queued) > 0 {
		text := p.queued[0]
		p.queued = p.queued[1:]
		return response(text), nil
	}

	haystack := req.SystemPrompt
	if n := len(req.Messages); n > 0 {
		haystack += "\n" + req.Messages[n-1].Content
	}
	for _, r := range p.rules {
		if strings.Contains(haystack, r.substring) {
			return response(r.response), nil
		}
	}

	return response(fmt.Sprintf("mock response (seed %d)", req.Seed)), nil
}

func response(text string) *llm.CompletionResponse {
	return &llm.CompletionResponse{
		Content: text,
		Usage: llm.Usage{
			PromptTokens:     len(text) / 4,
			CompletionTokens: len(text) / 4,
			TotalTokens:      len(text) / 2,
		},
	}
}
