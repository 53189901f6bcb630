// Package store provides a generic, thread-safe, in-memory table keyed by
// string id, plus a controllable clock. The in-memory repository builds its
// aggregates on top of it.
package store

import (
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// Store is a generic, thread-safe, in-memory table of T keyed by id.
// Items are kept in insertion order for deterministic listing.
type Store[T any] struct {
	mu    sync.RWMutex
	items map[string]T
	order []string
	clone func(T) T
}

// New creates an empty Store. If clone is non-nil it is applied on every Set
// and Get so callers never share mutable slices with the table.
func New[T any](clone func(T) T) *Store[T] {
	if clone == nil {
		clone = func(v T) T { return v }
	}
	return &Store[T]{
		items: make(map[string]T),
		order: make([]string, 0),
		clone: clone,
	}
}

// Set stores item under id. Overwriting keeps the original insertion position.
func (s *Store[T]) Set(id string, item T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[id]; !exists {
		s.order = append(s.order, id)
	}
	s.items[id] = s.clone(item)
}

// Get retrieves an item by id.
func (s *Store[T]) Get(id string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		return item, false
	}
	return s.clone(item), true
}

// Delete removes id and reports whether it existed.
func (s *Store[T]) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[id]; !exists {
		return false
	}
	delete(s.items, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// List returns all items in insertion order.
func (s *Store[T]) List() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]T, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, s.clone(s.items[id]))
	}
	return result
}

// Count returns the number of items.
func (s *Store[T]) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Filter returns items matching predicate, in insertion order.
func (s *Store[T]) Filter(predicate func(id string, item T) bool) []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []T
	for _, id := range s.order {
		if predicate(id, s.items[id]) {
			result = append(result, s.clone(s.items[id]))
		}
	}
	return result
}

// First returns the first item in insertion order matching predicate.
func (s *Store[T]) First(predicate func(id string, item T) bool) (string, T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		if predicate(id, s.items[id]) {
			return id, s.clone(s.items[id]), true
		}
	}
	var zero T
	return "", zero, false
}

// Reset clears all items.
func (s *Store[T]) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]T)
	s.order = make([]string, 0)
}

// Snapshot returns all items as a JSON-serializable map.
func (s *Store[T]) Snapshot() map[string]T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot := make(map[string]T, len(s.items))
	for k, v := range s.items {
		snapshot[k] = s.clone(v)
	}
	return snapshot
}

// LoadSnapshot replaces all items. IDs are sorted to keep listing deterministic.
func (s *Store[T]) LoadSnapshot(snapshot map[string]T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]T, len(snapshot))
	s.order = make([]string, 0, len(snapshot))
	for k, v := range snapshot {
		s.items[k] = s.clone(v)
		s.order = append(s.order, k)
	}
	sort.Strings(s.order)
}

// MarshalJSON serializes the table as its items map.
func (s *Store[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Snapshot())
}

// UnmarshalJSON replaces the table's contents from an items map.
func (s *Store[T]) UnmarshalJSON(data []byte) error {
	var snapshot map[string]T
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return err
	}
	s.LoadSnapshot(snapshot)
	return nil
}

// Clock is a time source that can be shifted, so tests and the admin plane
// can move time forward deterministically.
type Clock struct {
	mu     sync.RWMutex
	offset time.Duration
	fixed  *time.Time
}

// NewClock creates a clock that follows wall time.
func NewClock() *Clock {
	return &Clock{}
}

// Now returns the current clock time in UTC.
func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.fixed != nil {
		return c.fixed.Add(c.offset)
	}
	return time.Now().UTC().Add(c.offset)
}

// Freeze pins the clock to t. Advance still moves it.
func (c *Clock) Freeze(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ft := t.UTC()
	c.fixed = &ft
	c.offset = 0
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset += d
}

// Reset returns the clock to wall time.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset = 0
	c.fixed = nil
}

// Offset returns the current offset.
func (c *Clock) Offset() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offset
}
