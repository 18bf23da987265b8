package retrieval

import (
	"context"
	"sort"
	"sync"
)

// Factory builds a provider instance. Construction may fail, for example
// when required credentials are missing.
type Factory func() (Provider, error)

// Registry maps provider names to factories and caches singleton instances.
// Providers can be registered and unregistered at runtime, which backs the
// providers.yaml hot reload.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	instances map[string]Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		instances: make(map[string]Provider),
	}
}

// Register adds or replaces a factory. Replacing drops any cached instance.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[name] = factory
	delete(r.instances, name)
}

// Unregister removes a provider and its cached instance, returning false if
// the name was unknown.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.factories[name]; !ok {
		return false
	}
	delete(r.factories, name)
	delete(r.instances, name)
	return true
}

// Get returns the singleton instance for name, constructing it on first use.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.instances[name]; ok {
		return p, nil
	}
	return r.buildLocked(name)
}

// GetFresh constructs a new instance, bypassing and replacing the cached one.
func (r *Registry) GetFresh(name string) (Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.instances, name)
	return r.buildLocked(name)
}

// List returns the registered provider names, sorted.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HealthStatus probes every registered provider. Providers that fail to
// construct report unhealthy.
func (r *Registry) HealthStatus(ctx context.Context) map[string]bool {
	status := make(map[string]bool)
	for _, name := range r.List() {
		p, err := r.Get(name)
		if err != nil {
			status[name] = false
			continue
		}
		status[name] = p.HealthCheck(ctx)
	}
	return status
}

// Clear drops all factories and instances.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories = make(map[string]Factory)
	r.instances = make(map[string]Provider)
}

func (r *Registry) buildLocked(name string) (Provider, error) {
	factory, ok := r.factories[name]
	if !ok {
		return nil, ErrUnknownProvider
	}
	p, err := factory()
	if err != nil {
		return nil, err
	}
	r.instances[name] = p
	return p, nil
}
