// Package registry holds the native handlers page script can call by name.
package registry

import (
	"errors"
	"sort"
	"sync"
)

// ErrInvalidBinding is returned for an empty name or a nil callback.
var ErrInvalidBinding = errors.New("registry: binding needs a name and a callback")

// Callback runs a handler. seq correlates the call with its eventual
// resolution, args is the raw argument payload and ctx is the value given
// at registration.
type Callback func(seq, args string, ctx any)

// Entry is a registered handler.
type Entry struct {
	Name     string
	Callback Callback
	Context  any
}

// Registry maps handler names to entries. A later registration under an
// existing name replaces the earlier one.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register stores the entry for name, replacing any previous one. It
// reports whether an entry was replaced.
func (r *Registry) Register(name string, cb Callback, ctx any) (bool, error) {
	if name == "" || cb == nil {
		return false, ErrInvalidBinding
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, replaced := r.entries[name]
	r.entries[name] = Entry{Name: name, Callback: cb, Context: ctx}
	return replaced, nil
}

// Lookup returns the entry for name. An unknown name is not an error.
func (r *Registry) Lookup(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// Unregister removes name. Removing an absent name is a no-op.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[name]
	delete(r.entries, name)
	return ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Len returns the number of registered handlers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Reset drops every entry.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.entries = make(map[string]Entry)
	r.mu.Unlock()
}
