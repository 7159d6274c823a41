package testutil

import "sync"

// Sequence hands out deterministic record ids for fixtures.
//
// The first call to Next returns 1. Reset rewinds the sequence so the same
// fixture builder produces identical records across test runs.
//
// Thread-safety: all methods are safe for concurrent use.
type Sequence struct {
	mu   sync.Mutex
	last int64
}

// NewSequence creates a sequence starting at 0.
func NewSequence() *Sequence {
	return &Sequence{}
}

// Next increments and returns the next id.
func (s *Sequence) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last++
	return s.last
}

// Current returns the last id handed out without incrementing.
func (s *Sequence) Current() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Reset rewinds the sequence to 0.
func (s *Sequence) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = 0
}
