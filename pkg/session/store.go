// Package session provides a typed, thread-safe registry for batch
// result snapshots. Each processed batch is stored under an opaque
// session ID (a UUID generated server-side) that clients pass back to
// the result endpoints.
package session

import (
	"sync"
	"time"
)

// cleanupInterval is how often Lookup() triggers lazy eviction of
// expired entries.
const cleanupInterval = 100

type entry[T any] struct {
	value      *T
	lastAccess time.Time
}

// Store is a typed, thread-safe snapshot store. Each session ID maps to
// one instance of T.
type Store[T any] struct {
	mu          sync.Mutex
	entries     map[string]*entry[T]
	ttl         time.Duration
	lookupCalls int
}

// New creates a Store. A positive ttl evicts entries inactive longer
// than ttl; zero retains them for the process lifetime, which is the
// service default.
func New[T any](ttl time.Duration) *Store[T] {
	return &Store[T]{
		entries: make(map[string]*entry[T]),
		ttl:     ttl,
	}
}

// Put stores v under id, replacing any previous value.
func (s *Store[T]) Put(id string, v *T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = &entry[T]{value: v, lastAccess: time.Now()}
}

// Lookup returns the value for the given session ID. Each hit refreshes
// the entry's last-access timestamp.
func (s *Store[T]) Lookup(id string) (*T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lookupCalls++
	if s.ttl > 0 && s.lookupCalls%cleanupInterval == 0 {
		s.cleanupLocked()
	}

	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	e.lastAccess = time.Now()
	return e.value, true
}

// Delete removes the entry for id, if present.
func (s *Store[T]) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

// Cleanup evicts all entries that have been inactive longer than the
// TTL. A no-op when the store retains forever.
func (s *Store[T]) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked()
}

func (s *Store[T]) cleanupLocked() {
	if s.ttl <= 0 {
		return
	}
	cutoff := time.Now().Add(-s.ttl)
	for id, e := range s.entries {
		if e.lastAccess.Before(cutoff) {
			delete(s.entries, id)
		}
	}
}

// Len returns the number of stored sessions.
func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
