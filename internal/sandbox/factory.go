package sandbox

import (
	"fmt"
	"sort"
	"sync"
)

// Constructor builds a provider from its configuration value.
type Constructor func(config any) (Provider, error)

// Registry maps provider names to constructors and caches built
// providers so a name resolves to one shared instance.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
	providers    map[string]Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		constructors: make(map[string]Constructor),
		providers:    make(map[string]Provider),
	}
}

// Register adds a constructor under name, replacing any previous one.
func (r *Registry) Register(name string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[name] = ctor
}

// Get returns the cached provider for name, building it on first use.
func (r *Registry) Get(name string, config any) (Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.providers[name]; ok {
		return p, nil
	}

	ctor, ok := r.constructors[name]
	if !ok {
		return nil, fmt.Errorf("sandbox provider %q not registered (available: %v)", name, r.availableLocked())
	}

	p, err := ctor(config)
	if err != nil {
		return nil, fmt.Errorf("create provider %q: %w", name, err)
	}
	r.providers[name] = p
	return p, nil
}

// IsRegistered reports whether a constructor exists for name.
func (r *Registry) IsRegistered(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.constructors[name]
	return ok
}

// Available returns the registered provider names, sorted.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.availableLocked()
}

func (r *Registry) availableLocked() []string {
	names := make([]string, 0, len(r.constructors))
	for name := range r.constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close closes every cached provider and forgets it. Constructors stay
// registered, so a later Get rebuilds.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var lastErr error
	for name, p := range r.providers {
		if err := p.Close(); err != nil {
			lastErr = fmt.Errorf("close provider %q: %w", name, err)
		}
		delete(r.providers, name)
	}
	return lastErr
}

// DefaultRegistry is the process-wide registry. Provider packages
// register themselves into it from init.
var DefaultRegistry = NewRegistry()

// Register adds a constructor to the default registry.
func Register(name string, ctor Constructor) {
	DefaultRegistry.Register(name, ctor)
}

// Get resolves a provider from the default registry.
func Get(name string, config any) (Provider, error) {
	return DefaultRegistry.Get(name, config)
}

// Available lists provider names in the default registry.
func Available() []string {
	return DefaultRegistry.Available()
}

// IsRegistered checks the default registry for name.
func IsRegistered(name string) bool {
	return DefaultRegistry.IsRegistered(name)
}
