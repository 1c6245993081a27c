// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package sandbox

import (
	"log/slog"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"
)

// Facility is one standard library bundle.
type Facility struct {
	Name string
	Open lua.LGFunction
}

// Policy decides which standard facilities a sandbox gets.
type Policy struct {
	// Always are opened in every sandbox.
	Always []Facility
	// Privileged are opened only in privileged sandboxes.
	Privileged []Facility
	// DeniedGlobals are removed from the global namespace.
	DeniedGlobals []string
	// DeniedFields are removed from library tables, keyed by table name.
	DeniedFields map[string][]string
}

// DefaultPolicy opens base, table, string, math, coroutine and a pruned os.
// debug is privileged only. io, package and channel are never opened.
func DefaultPolicy() Policy {
	return Policy{
		Always: []Facility{
			{lua.BaseLibName, lua.OpenBase},
			{lua.TabLibName, lua.OpenTable},
			{lua.StringLibName, lua.OpenString},
			{lua.MathLibName, lua.OpenMath},
			{lua.CoroutineLibName, lua.OpenCoroutine},
			{lua.OsLibName, lua.OpenOs},
		},
		Privileged: []Facility{
			{lua.DebugLibName, lua.OpenDebug},
		},
		DeniedGlobals: []string{
			"dofile", "loadfile", "require", "module",
			lua.IoLibName, lua.LoadLibName, lua.ChannelLibName,
		},
		DeniedFields: map[string][]string{
			lua.OsLibName: {"exit", "execute", "setlocale", "setenv", "remove", "rename", "tmpname"},
		},
	}
}

// Open opens the allowed facilities in L and strips denied entries.
func (p Policy) Open(L *lua.LState, privileged bool) error {
	facilities := p.Always
	if privileged {
		facilities = append(facilities[:len(facilities):len(facilities)], p.Privileged...)
	}
	for _, f := range facilities {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(f.Open),
			NRet:    0,
			Protect: true,
		}, lua.LString(f.Name)); err != nil {
			return oops.In("sandbox").With("facility", f.Name).Wrapf(err, "open facility")
		}
	}
	p.Strip(L)
	return nil
}

// Strip removes every denied global and field from L.
func (p Policy) Strip(L *lua.LState) {
	for _, name := range p.DeniedGlobals {
		L.SetGlobal(name, lua.LNil)
	}
	for lib, fields := range p.DeniedFields {
		tbl, ok := L.GetGlobal(lib).(*lua.LTable)
		if !ok {
			continue
		}
		for _, field := range fields {
			tbl.RawSetString(field, lua.LNil)
		}
	}
}

// Exports are the functions a module contributes, keyed by entry name.
type Exports map[string]lua.LGFunction

// Module contributes functions to a namespace. It is admitted wholesale or
// not at all.
type Module interface {
	Exports(L *lua.LState) (Exports, error)
}

// ModuleFunc adapts a function to Module.
type ModuleFunc func(L *lua.LState) (Exports, error)

// Exports calls f.
func (f ModuleFunc) Exports(L *lua.LState) (Exports, error) {
	return f(L)
}

// StaticModule is a module whose exports never fail.
type StaticModule Exports

// Exports returns m.
func (m StaticModule) Exports(*lua.LState) (Exports, error) {
	return Exports(m), nil
}

// Descriptor declares one module and where it is merged.
type Descriptor struct {
	// Namespace is the global table the module is merged into; "" merges
	// into the global namespace itself.
	Namespace string
	// Name identifies the module in errors and logs.
	Name string
	// Capability gates admission; "" is always admitted.
	Capability string
	Module     Module
}

// Checker reports whether a sandbox holds a capability.
type Checker interface {
	Check(sandbox, capability string) bool
}

// Table is the ordered list of modules offered to a sandbox. Later entries
// in the same namespace shadow earlier entries with the same key.
type Table []Descriptor

// Admit merges every granted module into L in declared order and returns the
// names of the admitted modules. The first failure stops admission; the
// caller must discard L.
func (t Table) Admit(L *lua.LState, sandbox string, grants Checker) ([]string, error) {
	admitted := make([]string, 0, len(t))
	for _, d := range t {
		if d.Capability != "" && grants != nil && !grants.Check(sandbox, d.Capability) {
			slog.Debug("library not granted",
				"sandbox", sandbox,
				"library", d.Name,
				"capability", d.Capability)
			continue
		}
		if err := d.protectedMerge(L); err != nil {
			return admitted, ErrAdmissionFailure(sandbox, d.Name, err)
		}
		admitted = append(admitted, d.Name)
	}
	return admitted, nil
}

// Names returns the module names in declared order.
func (t Table) Names() []string {
	names := make([]string, len(t))
	for i, d := range t {
		names[i] = d.Name
	}
	return names
}

// protectedMerge runs merge in protected mode so a module that raises a Lua
// error while building its exports fails admission instead of panicking.
func (d Descriptor) protectedMerge(L *lua.LState) error {
	var mergeErr error
	err := L.CallByParam(lua.P{
		Fn: L.NewFunction(func(L *lua.LState) int {
			mergeErr = d.merge(L)
			return 0
		}),
		NRet:    0,
		Protect: true,
	})
	if err != nil {
		return oops.In("sandbox").With("library", d.Name).Wrapf(err, "library raised an error")
	}
	return mergeErr
}

// merge checks every entry before writing any, so a module is never half merged.
func (d Descriptor) merge(L *lua.LState) error {
	if d.Module == nil {
		return oops.In("sandbox").With("library", d.Name).Errorf("library has no module")
	}
	exports, err := d.Module.Exports(L)
	if err != nil {
		return err
	}

	var target *lua.LTable
	if d.Namespace == "" {
		target = L.G.Global
		for key := range exports {
			if target.RawGetString(key) != lua.LNil {
				return errNameCollision("", key)
			}
		}
	} else {
		switch existing := L.GetGlobal(d.Namespace).(type) {
		case *lua.LTable:
			target = existing
		case *lua.LNilType:
		default:
			return errNameCollision("", d.Namespace)
		}
	}

	if target == nil {
		target = L.NewTable()
		L.SetGlobal(d.Namespace, target)
	}
	for key, fn := range exports {
		target.RawSetString(key, L.NewFunction(fn))
	}
	return nil
}
