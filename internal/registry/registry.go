// Package registry maps snowflake IDs to live entities of one kind.
//
// The registry never keeps an entity alive. Entries are weak pointers, and
// whoever owns the entity (a guild's role map, a channel's history buffer, the
// cache's joined guild set) holds the strong reference. Once every owner lets go
// the garbage collector reclaims the entity, Get starts returning nil for it,
// and Sweep drops the stale map entry.
//
// A Map is not safe for concurrent use; callers serialize access.
package registry

import (
	"weak"
)

// Map is the per-kind ID -> entity registry
type Map[T any] struct {
	kind    string
	entries map[uint64]weak.Pointer[T]
}

// New creates an empty registry for one entity kind
func New[T any](kind string) *Map[T] {
	return &Map[T]{
		kind:    kind,
		entries: make(map[uint64]weak.Pointer[T]),
	}
}

// Kind names the entity kind (channels, roles, ...)
func (m *Map[T]) Kind() string {
	return m.kind
}

// Get returns the live entity or nil
func (m *Map[T]) Get(id uint64) *T {
	wp, ok := m.entries[id]
	if !ok {
		return nil
	}
	v := wp.Value()
	if v == nil {
		// Collected since the last sweep
		delete(m.entries, id)
	}
	return v
}

// GetOrCreate returns the registered entity, or builds and registers a new one.
//
// build runs to completion before the entity is published, so a reentrant
// lookup of the same ID from inside build (a message constructing the message
// it replies to) never observes a half-initialized value. If build itself
// registered the ID, the first-published entity wins.
func (m *Map[T]) GetOrCreate(id uint64, build func() *T) (*T, bool) {
	if v := m.Get(id); v != nil {
		return v, false
	}

	v := build()
	if existing := m.Get(id); existing != nil {
		return existing, false
	}

	m.entries[id] = weak.Make(v)
	return v, true
}

// Put registers v under id, replacing any previous entry
func (m *Map[T]) Put(id uint64, v *T) {
	if v == nil {
		delete(m.entries, id)
		return
	}
	m.entries[id] = weak.Make(v)
}

// Remove unregisters id. Holders of the entity keep their reference.
func (m *Map[T]) Remove(id uint64) {
	delete(m.entries, id)
}

// Len counts entries, including ones not yet swept
func (m *Map[T]) Len() int {
	return len(m.entries)
}

// Range visits live entities until fn returns false
func (m *Map[T]) Range(fn func(id uint64, v *T) bool) {
	for id, wp := range m.entries {
		v := wp.Value()
		if v == nil {
			continue
		}
		if !fn(id, v) {
			return
		}
	}
}

// Sweep drops entries whose entity has been collected and returns how many
func (m *Map[T]) Sweep() int {
	removed := 0
	for id, wp := range m.entries {
		if wp.Value() == nil {
			delete(m.entries, id)
			removed++
		}
	}
	return removed
}
