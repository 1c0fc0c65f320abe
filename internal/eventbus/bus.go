// Package eventbus provides the engine's in-process event fabric: a
// single-threaded, synchronous publish/subscribe queue with strict FIFO
// ordering. Subsystems communicate through events instead of holding
// references to each other; the session drains the queue once per mutating
// operation so every handler observes post-event state.
package eventbus

import (
	"log/slog"
	"time"
)

// Event is a single immutable occurrence inside the engine. Once published
// it must not be mutated; handlers receive it by value.
type Event struct {
	// Frame is the autonomous-loop frame the event was emitted in.
	Frame int64 `json:"frame"`

	// Type is one of the predefined event tags (see events.go).
	Type string `json:"type"`

	// Payload carries event-specific data as plain values.
	Payload map[string]any `json:"data,omitempty"`

	// Actor is the id of the character that caused the event, if any.
	Actor string `json:"characterId,omitempty"`

	// Timestamp is the wall-clock time of publication. Excluded from
	// determinism comparisons.
	Timestamp time.Time `json:"timestamp"`
}

// Handler processes one event. Handlers must not call [Bus.Drain]; nested
// publishes are fine and enqueue at the tail of the current drain.
type Handler func(Event)

// Bus is the synchronous FIFO event queue. Not safe for concurrent use —
// the engine's single-threaded discipline is the synchronisation mechanism.
type Bus struct {
	queue    []Event
	handlers map[string][]Handler
	wildcard []Handler
	draining bool
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{handlers: make(map[string][]Handler)}
}

// Subscribe registers a handler for one event type. Handlers run in
// registration order.
func (b *Bus) Subscribe(eventType string, h Handler) {
	b.handlers[eventType] = append(b.handlers[eventType], h)
}

// SubscribeAll registers a wildcard handler invoked for every event, after
// the exact-match handlers.
func (b *Bus) SubscribeAll(h Handler) {
	b.wildcard = append(b.wildcard, h)
}

// Publish appends ev to the queue. Delivery happens on the next [Bus.Drain].
// Publishing from inside a handler enqueues at the tail of the in-progress
// drain, preserving FIFO order.
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	b.queue = append(b.queue, ev)
}

// Drain dispatches queued events in order until the queue is empty,
// including events published by handlers during the drain. A panicking
// handler is logged and skipped; remaining handlers still run. Re-entrant
// drains are ignored.
func (b *Bus) Drain() {
	if b.draining {
		return
	}
	b.draining = true
	defer func() { b.draining = false }()

	for len(b.queue) > 0 {
		ev := b.queue[0]
		b.queue = b.queue[1:]
		for _, h := range b.handlers[ev.Type] {
			b.dispatch(h, ev)
		}
		for _, h := range b.wildcard {
			b.dispatch(h, ev)
		}
	}
}

// Pending returns the number of undelivered events.
func (b *Bus) Pending() int { return len(b.queue) }

func (b *Bus) dispatch(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event handler panicked", "type", ev.Type, "frame", ev.Frame, "panic", r)
		}
	}()
	h(ev)
}
