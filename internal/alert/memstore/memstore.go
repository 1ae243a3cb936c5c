// Package memstore provides an in-memory alert.Persister. Suitable for
// dev/testing; nothing survives a restart.
package memstore

import (
	"context"
	"sync"

	"github.com/linnemanlabs/triaged/internal/alert"
)

// Store keeps the last saved queue in memory.
type Store struct {
	mu      sync.RWMutex
	entries []alert.Entry
	saved   bool
	saves   int
}

// New initializes an empty Store.
func New() *Store {
	return &Store{}
}

// Save stores a copy of entries.
func (s *Store) Save(_ context.Context, entries []alert.Entry) error {
	cp := make([]alert.Entry, len(entries))
	copy(cp, entries)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = cp
	s.saved = true
	s.saves++
	return nil
}

// Load returns a copy of the last saved queue, or nil if Save was never
// called.
func (s *Store) Load(_ context.Context) ([]alert.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.saved {
		return nil, nil
	}
	cp := make([]alert.Entry, len(s.entries))
	copy(cp, s.entries)
	return cp, nil
}

// Saves returns how many times Save has been called.
func (s *Store) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
