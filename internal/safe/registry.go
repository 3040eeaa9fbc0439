package safe

import (
	"sort"
	"sync"
)

// Registry is a thread-safe set of values keyed by the id returned from Add.
// Removing one entry never disturbs the others.
type Registry[V any] struct {
	mu   sync.RWMutex
	next uint64
	m    map[uint64]V
}

func NewRegistry[V any]() *Registry[V] {
	return &Registry[V]{m: make(map[uint64]V)}
}

func (r *Registry[V]) Add(value V) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.m[r.next] = value
	return r.next
}

// Remove deletes the entry and reports whether it was present.
func (r *Registry[V]) Remove(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, loaded := r.m[id]; loaded {
		delete(r.m, id)
		return true
	}
	return false
}

func (r *Registry[V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}

// Entry is one registered value and its id.
type Entry[V any] struct {
	ID    uint64
	Value V
}

// Has reports whether id is still registered.
func (r *Registry[V]) Has(id uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.m[id]
	return ok
}

// Entries returns a snapshot in registration order.
func (r *Registry[V]) Entries() []Entry[V] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]uint64, 0, len(r.m))
	for id := range r.m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	entries := make([]Entry[V], len(ids))
	for i, id := range ids {
		entries[i] = Entry[V]{ID: id, Value: r.m[id]}
	}
	return entries
}

// Values returns a snapshot in registration order.
func (r *Registry[V]) Values() []V {
	entries := r.Entries()
	values := make([]V, len(entries))
	for i, e := range entries {
		values[i] = e.Value
	}
	return values
}

func (r *Registry[V]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m = make(map[uint64]V)
}
