// Package publisher implements the observer registry through which the
// engine exposes itself to the outside world. Observers are passive:
// they receive state snapshots and events but can never drive the game.
package publisher

import (
	"log/slog"

	"github.com/emberforge/wayfarer/internal/eventbus"
)

// defaultHistorySize bounds the retained event history.
const defaultHistorySize = 1000

// Observer is one registered subscriber. Either callback may be nil.
type Observer[S any] struct {
	// OnStateUpdate receives a full snapshot after a mutating operation.
	OnStateUpdate func(snapshot S, eventType string, metadata map[string]any)

	// OnGameEvent receives every broadcast event.
	OnGameEvent func(ev eventbus.Event)
}

// Publisher fans state snapshots and events out to observers in
// registration order. A panicking observer is logged and skipped; the
// game continues regardless.
type Publisher[S any] struct {
	order     []string
	observers map[string]Observer[S]

	history     []eventbus.Event
	historySize int
}

// New creates a Publisher with the default history bound.
func New[S any]() *Publisher[S] {
	return &Publisher[S]{
		observers:   make(map[string]Observer[S]),
		historySize: defaultHistorySize,
	}
}

// Register adds or replaces the observer under id.
func (p *Publisher[S]) Register(id string, obs Observer[S]) {
	if _, ok := p.observers[id]; !ok {
		p.order = append(p.order, id)
	}
	p.observers[id] = obs
}

// Unregister removes the observer under id. Unknown ids are ignored.
func (p *Publisher[S]) Unregister(id string) {
	if _, ok := p.observers[id]; !ok {
		return
	}
	delete(p.observers, id)
	for i, oid := range p.order {
		if oid == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// Count returns the number of registered observers.
func (p *Publisher[S]) Count() int { return len(p.order) }

// Publish delivers a state snapshot to every state handler in
// registration order.
func (p *Publisher[S]) Publish(snapshot S, eventType string, metadata map[string]any) {
	for _, id := range p.order {
		obs := p.observers[id]
		if obs.OnStateUpdate == nil {
			continue
		}
		p.safely(id, eventType, func() { obs.OnStateUpdate(snapshot, eventType, metadata) })
	}
}

// Broadcast delivers an event to every event handler and records it in
// the bounded history.
func (p *Publisher[S]) Broadcast(ev eventbus.Event) {
	p.history = append(p.history, ev)
	if len(p.history) > p.historySize {
		p.history = p.history[len(p.history)-p.historySize:]
	}
	for _, id := range p.order {
		obs := p.observers[id]
		if obs.OnGameEvent == nil {
			continue
		}
		p.safely(id, ev.Type, func() { obs.OnGameEvent(ev) })
	}
}

// History returns the retained events, oldest first.
func (p *Publisher[S]) History() []eventbus.Event { return p.history }

func (p *Publisher[S]) safely(id, eventType string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("observer panicked", "observer", id, "type", eventType, "panic", r)
		}
	}()
	fn()
}
