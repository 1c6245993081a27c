// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package sandbox

import (
	lua "github.com/yuin/gopher-lua"
)

// ScriptNamespace is the global table holding the call-in functions.
const ScriptNamespace = "Script"

// ScriptLibrary returns the descriptor for the Script table, through which a
// script registers for call-ins.
func ScriptLibrary() Descriptor {
	return Descriptor{
		Namespace:  ScriptNamespace,
		Name:       "script",
		Capability: "lib.script",
		Module: StaticModule{
			"SetCallIn":    scriptSetCallIn,
			"CanUseCallIn": scriptCanUseCallIn,
			"GetCallIns":   scriptGetCallIns,
			"GetName":      scriptGetName,
			"IsPrivileged": scriptIsPrivileged,
		},
	}
}

func instanceOf(L *lua.LState) *Instance {
	inst, ok := Lookup(L)
	if !ok {
		L.RaiseError("no sandbox is bound to this state")
		return nil
	}
	return inst
}

// Script.SetCallIn(name, fn|nil) -> bool
func scriptSetCallIn(L *lua.LState) int {
	inst := instanceOf(L)
	name := L.CheckString(1)
	fn := L.OptFunction(2, nil)
	L.Push(lua.LBool(inst.setCallIn(name, fn)))
	return 1
}

// Script.CanUseCallIn(name) -> bool
func scriptCanUseCallIn(L *lua.LState) int {
	inst := instanceOf(L)
	code, ok := inst.registry.CodeFor(L.CheckString(1))
	L.Push(lua.LBool(ok && inst.valid.Contains(code)))
	return 1
}

// Script.GetCallIns() -> {name = code}, aliases included.
func scriptGetCallIns(L *lua.LState) int {
	inst := instanceOf(L)
	t := L.NewTable()
	for _, name := range inst.registry.Names() {
		code, _ := inst.registry.CodeFor(name)
		if !inst.valid.Contains(code) {
			continue
		}
		t.RawSetString(name, lua.LNumber(code))
		for _, alias := range inst.registry.Aliases(name) {
			t.RawSetString(alias, lua.LNumber(code))
		}
	}
	L.Push(t)
	return 1
}

func scriptGetName(L *lua.LState) int {
	L.Push(lua.LString(instanceOf(L).name))
	return 1
}

func scriptIsPrivileged(L *lua.LState) int {
	L.Push(lua.LBool(instanceOf(L).privileged))
	return 1
}
