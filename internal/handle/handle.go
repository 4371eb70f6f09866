// Package handle maps opaque integer IDs to Go objects so that foreign code
// (a platform shell, a websocket peer, a test) can refer to a bridge or
// window without ever holding a pointer to it.
package handle

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrNotFound is returned for IDs that were never issued or were deleted.
var ErrNotFound = errors.New("handle: not found")

// ID is an opaque handle. The zero ID is never issued.
type ID uint64

// Table is a concurrency-safe ID -> *T map. IDs are never reused.
type Table[T any] struct {
	mu      sync.RWMutex
	entries map[ID]*T
	counter atomic.Uint64
}

// NewTable returns an empty table.
func NewTable[T any]() *Table[T] {
	return &Table[T]{entries: make(map[ID]*T)}
}

// Put stores v and returns its new ID.
func (t *Table[T]) Put(v *T) ID {
	id := ID(t.counter.Add(1))
	t.mu.Lock()
	t.entries[id] = v
	t.mu.Unlock()
	return id
}

// Get returns the object for id.
func (t *Table[T]) Get(id ID) (*T, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

// Delete removes id and returns the object it referred to. Exactly one of
// any number of concurrent Delete calls for the same id succeeds.
func (t *Table[T]) Delete(id ID) (*T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(t.entries, id)
	return v, nil
}

// Len returns the number of live handles.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
