// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package capability decides which host library tables a sandbox may admit.
//
// Grants are glob patterns with '.' as the segment separator:
//   - '*' matches a single segment (does not cross '.')
//   - '**' matches zero or more segments (crosses '.')
//
// Examples:
//   - "lib.math.*" matches "lib.math.bitops" but NOT "lib.math.vector.extra"
//   - "lib.**" matches every library capability
package capability

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gobwas/glob"
)

// DefaultGrants admits every host library.
var DefaultGrants = []string{"lib.**"}

type compiledGrant struct {
	pattern string
	glob    glob.Glob
}

// Enforcer checks sandbox capabilities.
//
// Enforcer is safe for concurrent use. The zero value denies everything.
type Enforcer struct {
	grants map[string][]compiledGrant // sandbox name -> compiled grants
	mu     sync.RWMutex
}

// NewEnforcer creates a capability enforcer.
func NewEnforcer() *Enforcer {
	return &Enforcer{grants: make(map[string][]compiledGrant)}
}

// SetGrants replaces the grants of a sandbox. Either every pattern compiles
// and all are installed, or nothing changes.
func (e *Enforcer) SetGrants(sandbox string, patterns []string) error {
	if sandbox == "" {
		return errors.New("sandbox name cannot be empty")
	}

	compiled := make([]compiledGrant, len(patterns))
	for i, pattern := range patterns {
		if pattern == "" {
			return fmt.Errorf("grant %d: empty capability pattern", i)
		}
		g, err := glob.Compile(pattern, '.')
		if err != nil {
			return fmt.Errorf("grant %d (%q): %w", i, pattern, err)
		}
		compiled[i] = compiledGrant{pattern: pattern, glob: g}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.grants == nil {
		e.grants = make(map[string][]compiledGrant)
	}
	e.grants[sandbox] = compiled
	return nil
}

// RemoveGrants forgets a sandbox. Safe to call for unknown names.
func (e *Enforcer) RemoveGrants(sandbox string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.grants, sandbox)
}

// Grants returns a copy of the patterns granted to a sandbox, or nil.
func (e *Enforcer) Grants(sandbox string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	grants, ok := e.grants[sandbox]
	if !ok {
		return nil
	}
	patterns := make([]string, len(grants))
	for i, g := range grants {
		patterns[i] = g.pattern
	}
	return patterns
}

// Check reports whether the sandbox holds capability. Unknown sandboxes and
// empty capabilities are denied.
func (e *Enforcer) Check(sandbox, capability string) bool {
	if capability == "" {
		return false
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, grant := range e.grants[sandbox] {
		if grant.glob.Match(capability) {
			return true
		}
	}
	return false
}
