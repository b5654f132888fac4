package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/earshot-audio/earshot/pkg/provider/embeddings"
	"github.com/earshot-audio/earshot/pkg/provider/llm"
	"github.com/earshot-audio/earshot/pkg/provider/stt"
)

// ErrProviderNotRegistered is returned by the Create methods when no
// factory is registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// kind holds the registered factories for one provider interface.
type kind[T any] struct {
	mu        sync.RWMutex
	factories map[string]func(ProviderEntry) (T, error)
}

func (k *kind[T]) register(name string, factory func(ProviderEntry) (T, error)) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.factories == nil {
		k.factories = make(map[string]func(ProviderEntry) (T, error))
	}
	k.factories[name] = factory
}

func (k *kind[T]) create(label string, entry ProviderEntry) (T, error) {
	k.mu.RLock()
	factory, ok := k.factories[entry.Name]
	k.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, label, entry.Name)
	}
	return factory(entry)
}

// Registry maps provider names to constructors for the three provider
// kinds Earshot wires: speech-to-text, chat completion and embeddings.
// Registering a name twice replaces the earlier factory. Safe for
// concurrent use.
type Registry struct {
	stt        kind[stt.Transcriber]
	llm        kind[llm.Provider]
	embeddings kind[embeddings.Provider]
}

// NewRegistry returns an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{}
}

// RegisterSTT registers a transcriber factory under name.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Transcriber, error)) {
	r.stt.register(name, factory)
}

// RegisterLLM registers a chat completion factory under name.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.llm.register(name, factory)
}

// RegisterEmbeddings registers an embeddings factory under name.
func (r *Registry) RegisterEmbeddings(name string, factory func(ProviderEntry) (embeddings.Provider, error)) {
	r.embeddings.register(name, factory)
}

// CreateSTT builds a transcriber from the factory registered under
// entry.Name, or reports [ErrProviderNotRegistered].
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Transcriber, error) {
	return r.stt.create("stt", entry)
}

// CreateLLM builds a chat completion provider from the factory registered
// under entry.Name, or reports [ErrProviderNotRegistered].
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	return r.llm.create("llm", entry)
}

// CreateEmbeddings builds an embeddings provider from the factory
// registered under entry.Name, or reports [ErrProviderNotRegistered].
func (r *Registry) CreateEmbeddings(entry ProviderEntry) (embeddings.Provider, error) {
	return r.embeddings.create("embeddings", entry)
}
