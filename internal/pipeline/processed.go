// Package pipeline turns finalized chunk files into published events:
// discovery polls the session directory, the dispatcher transcribes each
// new chunk, and the fan-out runs analysis on accepted transcripts.
package pipeline

import "sync"

// ProcessedSet records chunk paths already dispatched in a session. It only
// grows; a new session starts with a new set.
type ProcessedSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewProcessedSet returns an empty set.
func NewProcessedSet() *ProcessedSet {
	return &ProcessedSet{seen: make(map[string]struct{})}
}

// Add inserts path and reports whether it was absent.
func (s *ProcessedSet) Add(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[path]; ok {
		return false
	}
	s.seen[path] = struct{}{}
	return true
}

// Contains reports whether path has been added.
func (s *ProcessedSet) Contains(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[path]
	return ok
}

// Len returns the number of recorded paths.
func (s *ProcessedSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}
