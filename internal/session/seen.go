// Package session tracks which payloads have already been handled during one run.
package session

import "sync"

// Seen is the set of payloads handled in this run. It only grows.
type Seen struct {
	mu  sync.Mutex
	set map[string]struct{}
}

func New() *Seen {
	return &Seen{set: make(map[string]struct{})}
}

// IsNew reports whether payload has not been seen before and marks it seen.
// Check and insert happen under one lock, so concurrent callers with the
// same payload get exactly one true.
func (s *Seen) IsNew(payload string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.set[payload]; ok {
		return false
	}
	s.set[payload] = struct{}{}
	return true
}

// Seed marks payloads as seen without reporting them as new.
func (s *Seen) Seed(payloads []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range payloads {
		s.set[p] = struct{}{}
	}
}

func (s *Seen) Contains(payload string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.set[payload]
	return ok
}

func (s *Seen) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.set)
}
