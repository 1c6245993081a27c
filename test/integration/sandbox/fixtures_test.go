// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package sandbox_test

import (
	"sync"
	"testing/fstest"

	lua "github.com/yuin/gopher-lua"

	"github.com/holomush/scriptbox/internal/callin"
	"github.com/holomush/scriptbox/internal/event"
	"github.com/holomush/scriptbox/internal/sandbox"
	"github.com/holomush/scriptbox/internal/sandbox/hostlib"
	"github.com/holomush/scriptbox/internal/vfs"
)

// countingEngine counts allocations and releases per state.
type countingEngine struct {
	inner  *sandbox.LuaEngine
	mu     sync.Mutex
	states []*lua.LState
	closes map[*lua.LState]int
}

func newCountingEngine() *countingEngine {
	return &countingEngine{inner: sandbox.NewLuaEngine(), closes: make(map[*lua.LState]int)}
}

func (e *countingEngine) NewState() (*lua.LState, error) {
	L, err := e.inner.NewState()
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.states = append(e.states, L)
	return L, nil
}

func (e *countingEngine) Close(L *lua.LState) {
	e.mu.Lock()
	e.closes[L]++
	e.mu.Unlock()
	e.inner.Close(L)
}

func (e *countingEngine) allocated() []*lua.LState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*lua.LState(nil), e.states...)
}

func (e *countingEngine) closeCount(L *lua.LState) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closes[L]
}

// forbidConfig serves a fixed forbidden call-in list.
type forbidConfig string

func (c forbidConfig) String(key string) string {
	if key == sandbox.DefaultForbidKey {
		return string(c)
	}
	return ""
}

// probe records values a script reports through probe(...).
type probe struct {
	mu     sync.Mutex
	values map[string]string
}

func newProbe() *probe { return &probe{values: make(map[string]string)} }

func (p *probe) descriptor() sandbox.Descriptor {
	return sandbox.Descriptor{
		Name: "probe",
		Module: sandbox.StaticModule{
			"probe": func(L *lua.LState) int {
				p.mu.Lock()
				defer p.mu.Unlock()
				p.values[L.CheckString(1)] = L.Get(2).String()
				return 0
			},
		},
	}
}

func (p *probe) get(key string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.values[key]
}

// world is one wired sandbox with real collaborators.
type world struct {
	engine   *countingEngine
	events   *event.Dispatcher
	registry *callin.Registry
	manager  *sandbox.Manager
	probe    *probe
}

type worldOptions struct {
	script     string
	forbid     string
	privileged bool
	extra      sandbox.Table
}

func newWorld(opts worldOptions) *world {
	registry := callin.Default()
	files := vfs.New(vfs.ReadOnlyLayer(vfs.User, fstest.MapFS{
		"main.lua": {Data: []byte(opts.script)},
	}))
	w := &world{
		engine:   newCountingEngine(),
		events:   event.NewDispatcher(registry.Names()),
		registry: registry,
		probe:    newProbe(),
	}
	modules := append(sandbox.Table{w.probe.descriptor()}, opts.extra...)
	modules = append(modules, hostlib.DefaultTable(hostlib.Deps{Files: files})...)
	w.manager = sandbox.NewManager(sandbox.Deps{
		Engine:   w.engine,
		Files:    files,
		Events:   w.events,
		Config:   forbidConfig(opts.forbid),
		Registry: registry,
	}, sandbox.Options{
		SourcePath: "main.lua",
		Privileged: opts.privileged,
		Modules:    modules,
	})
	return w
}

func (w *world) code(name string) callin.Code {
	code, ok := w.registry.CodeFor(name)
	if !ok {
		panic("unknown call-in " + name)
	}
	return code
}

// subscribeAll registers a handler for every named call-in.
func subscribeAll(names ...string) string {
	script := ""
	for _, n := range names {
		script += `Script.SetCallIn("` + n + `", function() end)` + "\n"
	}
	return script
}
