package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/emberforge/wayfarer/pkg/provider/llm"
)

// ErrProviderNotRegistered is returned by [Registry.Create] when no
// factory has been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps LLM backend names to their constructor functions.
// It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]func(LLMConfig) (llm.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]func(LLMConfig) (llm.Provider, error)),
	}
}

// Register registers an LLM backend factory under name. Subsequent
// calls with the same name overwrite the previous registration.
func (r *Registry) Register(name string, factory func(LLMConfig) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Names returns the registered backend names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}

// Create instantiates an LLM backend using the factory registered under
// cfg.Provider. Returns [ErrProviderNotRegistered] if no factory has
// been registered for that name.
func (r *Registry) Create(cfg LLMConfig) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.factories[cfg.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrProviderNotRegistered, cfg.Provider)
	}
	return factory(cfg)
}
