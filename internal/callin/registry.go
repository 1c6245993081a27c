// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package callin maps call-in names to stable numeric codes.
//
// A call-in is a named event hook the host invokes on a sandboxed script.
// The set of call-ins is versioned data (callins.yaml), loaded once per
// process; codes are never reassigned. Several names may resolve to one
// code: legacy aliases collapse onto their canonical call-in, so callers
// must not assume that different names imply different codes.
package callin

import (
	_ "embed"
	"sort"
	"sync"

	"github.com/Masterminds/semver/v3"
)

// Code identifies a call-in.
type Code int

//go:embed callins.yaml
var defaultManifest []byte

// Registry is an immutable lookup table of call-ins.
type Registry struct {
	version   *semver.Version
	byName    map[string]Code   // canonical names and aliases
	canonical map[Code]string   // code -> canonical name
	aliases   map[string]string // alias -> canonical name
	codes     []Code            // declaration order
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the registry built from the embedded manifest.
// It panics if the embedded manifest is invalid.
func Default() *Registry {
	defaultOnce.Do(func() {
		r, err := Parse(defaultManifest)
		if err != nil {
			panic("callin: embedded manifest is invalid: " + err.Error())
		}
		defaultRegistry = r
	})
	return defaultRegistry
}

// Parse builds a registry from manifest bytes.
func Parse(data []byte) (*Registry, error) {
	m, err := ParseManifest(data)
	if err != nil {
		return nil, err
	}
	return New(m)
}

// New builds a registry from a parsed manifest.
func New(m *Manifest) (*Registry, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	v, err := semver.NewVersion(m.Version)
	if err != nil {
		return nil, err
	}

	r := &Registry{
		version:   v,
		byName:    make(map[string]Code),
		canonical: make(map[Code]string, len(m.CallIns)),
		aliases:   make(map[string]string),
		codes:     make([]Code, 0, len(m.CallIns)),
	}
	for _, e := range m.CallIns {
		r.byName[e.Name] = e.Code
		r.canonical[e.Code] = e.Name
		r.codes = append(r.codes, e.Code)
		for _, alias := range e.Aliases {
			r.byName[alias] = e.Code
			r.aliases[alias] = e.Name
		}
	}
	return r, nil
}

// Version returns the manifest version.
func (r *Registry) Version() *semver.Version {
	return r.version
}

// CodeFor resolves a canonical name or alias to its code.
func (r *Registry) CodeFor(name string) (Code, bool) {
	code, ok := r.byName[name]
	return code, ok
}

// Name returns the canonical name for a code, or "" if unknown.
func (r *Registry) Name(code Code) string {
	return r.canonical[code]
}

// Canonical resolves an alias to the canonical name used for event
// subscriptions. Canonical names resolve to themselves.
func (r *Registry) Canonical(name string) (string, bool) {
	if canon, ok := r.aliases[name]; ok {
		return canon, true
	}
	if _, ok := r.byName[name]; ok {
		return name, true
	}
	return "", false
}

// Aliases returns the aliases declared for a canonical name, sorted.
func (r *Registry) Aliases(canonical string) []string {
	var out []string
	for alias, canon := range r.aliases {
		if canon == canonical {
			out = append(out, alias)
		}
	}
	sort.Strings(out)
	return out
}

// Codes returns every code in declaration order.
func (r *Registry) Codes() []Code {
	out := make([]Code, len(r.codes))
	copy(out, r.codes)
	return out
}

// Names returns every canonical name in declaration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.codes))
	for i, code := range r.codes {
		out[i] = r.canonical[code]
	}
	return out
}

// NewSet returns a set holding every code the registry knows.
func (r *Registry) NewSet() *Set {
	return newSet(r.codes)
}
