// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package vfs

import "strings"

// Scope is an ordered set of mode letters. Each letter selects one layer of
// the virtual filesystem; resolution searches layers in scope order.
type Scope string

// Mode letters.
const (
	User       Scope = "u"
	UserWrite  Scope = "U"
	World      Scope = "w"
	WorldWrite Scope = "W"
	Basic      Scope = "b"
)

// Join concatenates scopes, dropping repeated letters.
func Join(scopes ...Scope) Scope {
	var b strings.Builder
	for _, s := range scopes {
		for i := 0; i < len(s); i++ {
			if !strings.ContainsRune(b.String(), rune(s[i])) {
				b.WriteByte(s[i])
			}
		}
	}
	return Scope(b.String())
}

// Has reports whether mode is part of the scope.
func (s Scope) Has(mode byte) bool {
	return strings.IndexByte(string(s), mode) >= 0
}

// Intersect keeps the letters of s that are also in limit, in s's order.
// The result never contains a letter missing from limit.
func (s Scope) Intersect(limit Scope) Scope {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if limit.Has(s[i]) && !strings.ContainsRune(b.String(), rune(s[i])) {
			b.WriteByte(s[i])
		}
	}
	return Scope(b.String())
}

// Scopes are the four filesystem scopes fixed when a sandbox is built.
// Read and Write are used when a script does not ask for specific modes;
// ReadAll and WriteAll bound what it may ask for.
type Scopes struct {
	Read     Scope
	ReadAll  Scope
	Write    Scope
	WriteAll Scope
}

// UserScopes returns the scopes granted to the user sandbox: read from every
// script layer, write only to the user's writable layer.
func UserScopes() Scopes {
	read := Join(User, UserWrite, World, WorldWrite, Basic)
	return Scopes{
		Read:     read,
		ReadAll:  read,
		Write:    UserWrite,
		WriteAll: UserWrite,
	}
}

// ReadScope returns the scope for a read request: the requested modes
// narrowed to ReadAll, or Read when nothing was requested.
func (s Scopes) ReadScope(requested Scope) Scope {
	if requested == "" {
		return s.Read
	}
	return requested.Intersect(s.ReadAll)
}

// WriteScope is ReadScope for writes.
func (s Scopes) WriteScope(requested Scope) Scope {
	if requested == "" {
		return s.Write
	}
	return requested.Intersect(s.WriteAll)
}
