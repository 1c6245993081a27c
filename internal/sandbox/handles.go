// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package sandbox

import (
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// handles maps interpreter states to the instance that owns them.
var handles = &handleTable{m: make(map[*lua.LState]*Instance)}

type handleTable struct {
	m  map[*lua.LState]*Instance
	mu sync.RWMutex
}

func (h *handleTable) register(L *lua.LState, inst *Instance) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.m[L] = inst
}

func (h *handleTable) unregister(L *lua.LState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.m, L)
}

func (h *handleTable) lookup(L *lua.LState) (*Instance, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	inst, ok := h.m[L]
	return inst, ok
}

func (h *handleTable) size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.m)
}

// Lookup returns the instance running in L. Coroutine threads resolve to the
// instance of their main state.
func Lookup(L *lua.LState) (*Instance, bool) {
	for cur := L; cur != nil; cur = cur.Parent {
		if inst, ok := handles.lookup(cur); ok {
			return inst, true
		}
	}
	if L != nil && L.G != nil && L.G.MainThread != nil {
		return handles.lookup(L.G.MainThread)
	}
	return nil, false
}
