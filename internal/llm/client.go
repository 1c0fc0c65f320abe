// Package llm implements the engine-side LLM client: seeded calls with an
// abort deadline, automatic fallback to canned content, structured fallback
// accounting, and full call recording for the replay log.
//
// The client never fails a caller. Every Generate returns usable text: the
// model's answer on success, the caller's fallback on timeout, unavailability,
// error, or parse failure, with UsedFallback set so observers can tell the
// difference. Property: a call either returns within its deadline or is
// marked as a fallback.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/emberforge/wayfarer/internal/resilience"
	provider "github.com/emberforge/wayfarer/pkg/provider/llm"
)

// DefaultDeadline bounds a single LLM call when the request does not set one.
const DefaultDeadline = 120 * time.Second

// seedStride spaces per-call seeds so sub-streams derived from the master
// seed never collide with call seeds.
const seedStride = 1000

// Request describes one engine-originated LLM call.
type Request struct {
	// Subsystem tags the caller ("DialogueSubsystem", "CombatSubsystem",
	// "Decider", "QuestDetection"). Used for fallback accounting and the
	// replay cache key.
	Subsystem string

	// Operation names the specific call within the subsystem ("greeting",
	// "reply", "narration", "decide").
	Operation string

	// Frame is the autonomous-loop frame making the call.
	Frame int64

	// SystemPrompt and Messages form the prompt.
	SystemPrompt string
	Messages     []provider.Message

	// Temperature and MaxTokens are forwarded to the backend. Zero means
	// backend default.
	Temperature float64
	MaxTokens   int

	// Deadline bounds the call. Zero means DefaultDeadline.
	Deadline time.Duration

	// Fallback produces canned text when the model cannot. Required.
	Fallback func() string

	// Validate, when set, checks the model's text before it is accepted.
	// A validation error triggers the fallback path with a parse reason.
	Validate func(text string) error

	// Context carries structured details into the fallback log entry.
	Context map[string]any
}

// Result is what Generate hands back to the caller.
type Result struct {
	Text         string
	TokenCount   int
	UsedFallback bool

	// FallbackReason is one of the resilience reason codes, empty when
	// UsedFallback is false.
	FallbackReason string
}

// CallRecord captures one LLM call for the replay log. Records are appended
// in call order; the replay cache is keyed by (Frame, Subsystem, Seed).
type CallRecord struct {
	Frame     int64         `json:"frame"`
	Subsystem string        `json:"subsystem"`
	Operation string        `json:"operation,omitempty"`
	Seed      int64         `json:"seed"`
	Prompt    string        `json:"prompt"`
	Model     string        `json:"model"`
	Response  string        `json:"response"`
	Tokens    int           `json:"tokens"`
	Duration  time.Duration `json:"duration"`
	Fallback  bool          `json:"fallback"`
}

// Client is the engine's LLM access point. One instance per session; the
// session passes it by reference into every subsystem. The call counter
// derives a distinct seed per call so a deterministic backend reproduces
// text across runs.
//
// Client follows the engine's single-threaded discipline and is not safe
// for concurrent Generate calls.
type Client struct {
	backend    provider.Provider
	model      string
	masterSeed int64
	counter    int64

	fallbacks *resilience.FallbackLog
	record    func(CallRecord)

	// cache, when set, answers calls by (frame, subsystem, seed) and the
	// backend is never contacted. Used during replay playback.
	cache *ReplayCache
}

// Option configures a Client.
type Option func(*Client)

// WithRecorder installs the hook invoked with every finished call,
// fallback or not. The replay logger registers itself here.
func WithRecorder(record func(CallRecord)) Option {
	return func(c *Client) { c.record = record }
}

// WithReplayCache switches the client to playback mode: calls are answered
// from cached records and the backend is never contacted.
func WithReplayCache(cache *ReplayCache) Option {
	return func(c *Client) { c.cache = cache }
}

// NewClient creates a Client over the given backend. backend may be nil for
// fully offline sessions; every call then takes the fallback path.
func NewClient(backend provider.Provider, model string, masterSeed int64, fallbacks *resilience.FallbackLog, opts ...Option) *Client {
	c := &Client{
		backend:    backend,
		model:      model,
		masterSeed: masterSeed,
		fallbacks:  fallbacks,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// CallCount returns the number of calls issued so far.
func (c *Client) CallCount() int64 { return c.counter }

// Online reports whether a live backend is configured and the client is not
// in playback mode.
func (c *Client) Online() bool { return c.backend != nil && c.cache == nil }

// Generate performs one seeded LLM call. It never returns an error to the
// caller: failures resolve to req.Fallback() with UsedFallback set and a
// fallback entry logged.
func (c *Client) Generate(ctx context.Context, req Request) Result {
	seed := c.masterSeed + c.counter*seedStride
	c.counter++

	prompt := flattenPrompt(req)

	if c.cache != nil {
		return c.fromCache(req, seed, prompt)
	}

	if c.backend == nil {
		return c.fallback(req, seed, prompt, resilience.ReasonUnavailable, 0)
	}

	deadline := req.Deadline
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	callCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	start := time.Now()
	resp, err := c.backend.Complete(callCtx, provider.CompletionRequest{
		SystemPrompt: req.SystemPrompt,
		Messages:     req.Messages,
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
		Seed:         seed,
	})
	elapsed := time.Since(start)

	if err != nil {
		return c.fallback(req, seed, prompt, classify(err), elapsed)
	}
	if req.Validate != nil {
		if verr := req.Validate(resp.Content); verr != nil {
			slog.Debug("llm response failed validation",
				"subsystem", req.Subsystem, "operation", req.Operation, "error", verr)
			return c.fallback(req, seed, prompt, resilience.ReasonParse, elapsed)
		}
	}

	tokens := resp.Usage.TotalTokens
	if tokens == 0 {
		tokens = estimateTokens(prompt) + estimateTokens(resp.Content)
	}
	c.recordCall(CallRecord{
		Frame:     req.Frame,
		Subsystem: req.Subsystem,
		Operation: req.Operation,
		Seed:      seed,
		Prompt:    prompt,
		Model:     c.model,
		Response:  resp.Content,
		Tokens:    tokens,
		Duration:  elapsed,
	})
	return Result{Text: resp.Content, TokenCount: tokens}
}

// fromCache answers a call from the replay cache. A miss is treated as
// unavailability so playback keeps running on fallback text.
func (c *Client) fromCache(req Request, seed int64, prompt string) Result {
	if rec, ok := c.cache.Get(req.Frame, req.Subsystem, seed); ok {
		if rec.Fallback && req.Fallback != nil {
			// The original call fell back; reproduce that, not the
			// recorded canned text, so templates stay authoritative.
			return c.fallback(req, seed, prompt, resilience.ReasonUnavailable, 0)
		}
		return Result{Text: rec.Response, TokenCount: rec.Tokens}
	}
	return c.fallback(req, seed, prompt, resilience.ReasonUnavailable, 0)
}

// fallback resolves a failed call with the caller's canned producer,
// records it, and logs the fallback entry.
func (c *Client) fallback(req Request, seed int64, prompt, reason string, elapsed time.Duration) Result {
	text := ""
	if req.Fallback != nil {
		text = req.Fallback()
	}
	c.recordCall(CallRecord{
		Frame:     req.Frame,
		Subsystem: req.Subsystem,
		Operation: req.Operation,
		Seed:      seed,
		Prompt:    prompt,
		Model:     c.model,
		Response:  text,
		Tokens:    estimateTokens(text),
		Duration:  elapsed,
		Fallback:  true,
	})
	if c.fallbacks != nil {
		c.fallbacks.Log(resilience.Fallback{
			Frame:        req.Frame,
			Subsystem:    req.Subsystem,
			Operation:    req.Operation,
			Reason:       reason,
			PromptLength: len(prompt),
			FallbackText: text,
			Context:      req.Context,
		})
	}
	return Result{
		Text:           text,
		TokenCount:     estimateTokens(text),
		UsedFallback:   true,
		FallbackReason: reason,
	}
}

func (c *Client) recordCall(rec CallRecord) {
	if c.record != nil {
		c.record(rec)
	}
}

// classify maps a backend error to a fallback reason code.
func classify(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return resilience.ReasonTimeout
	case errors.Is(err, resilience.ErrCircuitOpen),
		errors.Is(err, resilience.ErrAllFailed),
		isNetworkError(err):
		return resilience.ReasonUnavailable
	default:
		return resilience.ReasonError
	}
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// flattenPrompt renders the request into the single prompt string stored in
// call records and used for prompt-length accounting.
func flattenPrompt(req Request) string {
	out := req.SystemPrompt
	for _, m := range req.Messages {
		if out != "" {
			out += "\n"
		}
		out += fmt.Sprintf("[%s] %s", m.Role, m.Content)
	}
	return out
}

// estimateTokens approximates token usage when the backend reports none.
func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}
