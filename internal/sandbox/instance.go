// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package sandbox

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	"github.com/holomush/scriptbox/internal/callin"
	"github.com/holomush/scriptbox/internal/event"
	"github.com/holomush/scriptbox/internal/observability"
	"github.com/holomush/scriptbox/internal/vfs"
)

// State is a step of the sandbox lifecycle.
type State int

// Lifecycle states. Failed is reachable from Admitting, Loading and Executing.
const (
	StateUninitialized State = iota
	StateAdmitting
	StateLoading
	StateExecuting
	StateActive
	StateTornDown
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateAdmitting:
		return "admitting"
	case StateLoading:
		return "loading"
	case StateExecuting:
		return "executing"
	case StateActive:
		return "active"
	case StateTornDown:
		return "torn_down"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Compile-time interface check.
var _ event.Subscriber = (*Instance)(nil)

// Instance is one sandboxed interpreter with its admitted namespace, its
// filesystem scopes and the call-ins it may still receive.
type Instance struct {
	id         ulid.ULID
	name       string
	privileged bool
	scopes     vfs.Scopes
	registry   *callin.Registry
	events     Events
	valid      *callin.Set

	// callMu serializes every entry into the interpreter.
	callMu sync.Mutex

	mu       sync.RWMutex
	state    State
	L        *lua.LState
	handlers map[callin.Code]*lua.LFunction
}

func newInstance(name string, privileged bool, scopes vfs.Scopes, registry *callin.Registry, events Events) *Instance {
	return &Instance{
		id:         ulid.Make(),
		name:       name,
		privileged: privileged,
		scopes:     scopes,
		registry:   registry,
		events:     events,
		valid:      registry.NewSet(),
		handlers:   make(map[callin.Code]*lua.LFunction),
	}
}

// ID returns the instance id.
func (i *Instance) ID() ulid.ULID { return i.id }

// Name returns the sandbox name.
func (i *Instance) Name() string { return i.name }

// Privileged reports whether the instance was built in privileged mode.
func (i *Instance) Privileged() bool { return i.privileged }

// Scopes returns the filesystem scopes fixed at construction.
func (i *Instance) Scopes() vfs.Scopes { return i.scopes }

// Registry returns the call-in registry the instance was built against.
func (i *Instance) Registry() *callin.Registry { return i.registry }

// State returns the lifecycle state.
func (i *Instance) State() State {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.state
}

// Active reports whether the instance holds a live interpreter.
func (i *Instance) Active() bool {
	return i.State() == StateActive
}

func (i *Instance) setState(s State) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.state = s
}

// IsValidCallIn reports whether code may still be delivered.
func (i *Instance) IsValidCallIn(code callin.Code) bool {
	return i.valid.Contains(code)
}

// ValidCallIns returns the codes that may still be delivered, sorted.
func (i *Instance) ValidCallIns() []callin.Code {
	return i.valid.Codes()
}

// HasCallIn reports whether the script registered a handler for code.
func (i *Instance) HasCallIn(code callin.Code) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	_, ok := i.handlers[code]
	return ok
}

// CallIns returns the canonical names of the call-ins the script handles
// and may still receive, sorted.
func (i *Instance) CallIns() []string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	names := make([]string, 0, len(i.handlers))
	for code := range i.handlers {
		if i.valid.Contains(code) {
			names = append(names, i.registry.Name(code))
		}
	}
	sort.Strings(names)
	return names
}

// SubscriberName implements event.Subscriber.
func (i *Instance) SubscriberName() string { return i.name }

// WantsEvent implements event.Subscriber.
func (i *Instance) WantsEvent(name string) bool {
	code, ok := i.registry.CodeFor(name)
	if !ok || !i.valid.Contains(code) {
		return false
	}
	return i.HasCallIn(code)
}

// HandleEvent implements event.Subscriber. Events the instance cannot
// receive are dropped without error.
func (i *Instance) HandleEvent(ctx context.Context, ev event.Event) error {
	code, ok := i.registry.CodeFor(ev.Name)
	if !ok {
		return nil
	}
	return i.invoke(ctx, code, ev.Args...)
}

// invoke calls the handler for code in protected mode.
func (i *Instance) invoke(_ context.Context, code callin.Code, args ...any) error {
	i.callMu.Lock()
	defer i.callMu.Unlock()

	i.mu.RLock()
	L, fn, state := i.L, i.handlers[code], i.state
	i.mu.RUnlock()

	if state != StateActive || L == nil || fn == nil || !i.valid.Contains(code) {
		return nil
	}

	name := i.registry.Name(code)
	values := make([]lua.LValue, len(args))
	for n, a := range args {
		values[n] = toLValue(L, a)
	}
	if err := L.CallByParam(lua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
	}, values...); err != nil {
		observability.RecordCallInInvocation(name, "error")
		return oops.In("sandbox").
			With("sandbox", i.name).
			With("callin", name).
			Wrapf(err, "call-in %s", name)
	}
	observability.RecordCallInInvocation(name, "ok")
	return nil
}

// setCallIn installs or clears the handler for name and reports whether the
// call-in is usable. Active instances update their subscription.
func (i *Instance) setCallIn(name string, fn *lua.LFunction) bool {
	code, ok := i.registry.CodeFor(name)
	if !ok || !i.valid.Contains(code) {
		return false
	}
	canonical, _ := i.registry.Canonical(name)

	i.mu.Lock()
	if fn == nil {
		delete(i.handlers, code)
	} else {
		i.handlers[code] = fn
	}
	active := i.state == StateActive
	i.mu.Unlock()

	if active && i.events != nil {
		if fn == nil {
			i.events.Unsubscribe(i, canonical)
		} else {
			i.events.Subscribe(i)
		}
	}
	return true
}

// forbid removes code from the valid set and drops its handler. It reports
// whether the code was valid.
func (i *Instance) forbid(code callin.Code) bool {
	if !i.valid.Remove(code) {
		return false
	}
	i.mu.Lock()
	delete(i.handlers, code)
	i.mu.Unlock()
	return true
}

// toLValue converts event arguments to Lua values.
func toLValue(L *lua.LState, v any) lua.LValue {
	switch x := v.(type) {
	case nil:
		return lua.LNil
	case lua.LValue:
		return x
	case string:
		return lua.LString(x)
	case bool:
		return lua.LBool(x)
	case int:
		return lua.LNumber(x)
	case int32:
		return lua.LNumber(x)
	case int64:
		return lua.LNumber(x)
	case uint32:
		return lua.LNumber(x)
	case float32:
		return lua.LNumber(x)
	case float64:
		return lua.LNumber(x)
	case []any:
		t := L.NewTable()
		for _, e := range x {
			t.Append(toLValue(L, e))
		}
		return t
	case map[string]any:
		t := L.NewTable()
		for k, e := range x {
			t.RawSetString(k, toLValue(L, e))
		}
		return t
	case fmt.Stringer:
		return lua.LString(x.String())
	default:
		return lua.LString(fmt.Sprint(x))
	}
}
