// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package sandbox

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// Engine creates and destroys isolated interpreter states.
type Engine interface {
	NewState() (*lua.LState, error)
	Close(L *lua.LState)
}

// LuaEngine allocates gopher-lua states with no libraries opened.
type LuaEngine struct {
	// CallStackSize and RegistrySize are passed to lua.Options; zero keeps
	// the gopher-lua defaults.
	CallStackSize int
	RegistrySize  int
}

// NewLuaEngine creates an engine with gopher-lua defaults.
func NewLuaEngine() *LuaEngine {
	return &LuaEngine{}
}

// NewState allocates a bare interpreter. A panic inside gopher-lua is
// reported as an error.
func (e *LuaEngine) NewState() (L *lua.LState, err error) {
	defer func() {
		if r := recover(); r != nil {
			L = nil
			err = fmt.Errorf("lua state panicked: %v", r)
		}
	}()

	L = lua.NewState(lua.Options{
		SkipOpenLibs:  true,
		CallStackSize: e.CallStackSize,
		RegistrySize:  e.RegistrySize,
	})
	return L, nil
}

// Close releases L. Closing an already closed state is a no-op.
func (e *LuaEngine) Close(L *lua.LState) {
	if L == nil || L.IsClosed() {
		return
	}
	L.Close()
}
