package store

import (
	"errors"
	"sort"
	"sync"
)

var (
	// ErrNotFound is returned when no entry is registered under an id.
	ErrNotFound = errors.New("entry not found")

	// ErrAlreadyRegistered is returned when an id is already taken.
	ErrAlreadyRegistered = errors.New("entry already registered")
)

// Registry is a concurrency-safe map from entry id to its runtime value.
// It is owned by the composition root and passed to whoever needs it.
type Registry[T any] struct {
	mu sync.RWMutex

	// key: entry id
	entries map[string]T
}

// NewRegistry creates an empty Registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{
		entries: make(map[string]T),
	}
}

// Register adds v under id.
func (r *Registry[T]) Register(id string, v T) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; ok {
		return ErrAlreadyRegistered
	}
	r.entries[id] = v
	return nil
}

// Lookup returns the value registered under id.
func (r *Registry[T]) Lookup(id string) (T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.entries[id]
	if !ok {
		var zero T
		return zero, ErrNotFound
	}
	return v, nil
}

// Unregister removes id and returns the value that was registered.
func (r *Registry[T]) Unregister(id string) (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.entries[id]
	if !ok {
		var zero T
		return zero, ErrNotFound
	}
	delete(r.entries, id)
	return v, nil
}

// IDs returns every registered id in ascending order.
func (r *Registry[T]) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// List returns every registered value ordered by id.
func (r *Registry[T]) List() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	result := make([]T, 0, len(ids))
	for _, id := range ids {
		result = append(result, r.entries[id])
	}
	return result
}

// Len returns the number of registered entries.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
