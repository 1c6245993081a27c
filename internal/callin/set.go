// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package callin

import (
	"sort"
	"sync"
)

// Set is the collection of call-in codes a sandbox may still use.
//
// A Set only shrinks: there is no way to add a code after creation.
// Set is safe for concurrent use.
type Set struct {
	codes map[Code]struct{}
	mu    sync.RWMutex
}

func newSet(codes []Code) *Set {
	s := &Set{codes: make(map[Code]struct{}, len(codes))}
	for _, c := range codes {
		s.codes[c] = struct{}{}
	}
	return s
}

// Contains reports whether code is still in the set.
func (s *Set) Contains(code Code) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.codes[code]
	return ok
}

// Remove deletes code and reports whether it was present.
func (s *Set) Remove(code Code) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codes[code]; !ok {
		return false
	}
	delete(s.codes, code)
	return true
}

// Len returns the number of codes in the set.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.codes)
}

// Codes returns the codes in ascending order.
func (s *Set) Codes() []Code {
	s.mu.RLock()
	out := make([]Code, 0, len(s.codes))
	for c := range s.codes {
		out = append(out, c)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
