package device

import (
	"fmt"
	"sync"
)

// Registry holds the constructed adapters, keyed by device ID.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]Adapter
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID: make(map[string]Adapter),
	}
}

// Add registers an adapter. Duplicate IDs are rejected.
func (r *Registry) Add(adapter Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := adapter.ID()
	if _, exists := r.byID[id]; exists {
		return fmt.Errorf("device %s already registered", id)
	}

	r.byID[id] = adapter
	r.order = append(r.order, id)
	return nil
}

// Get returns the adapter with the given ID.
func (r *Registry) Get(id string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, ok := r.byID[id]
	return adapter, ok
}

// List returns all adapters in registration order.
func (r *Registry) List() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapters := make([]Adapter, 0, len(r.order))
	for _, id := range r.order {
		adapters = append(adapters, r.byID[id])
	}
	return adapters
}
