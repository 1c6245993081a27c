// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package sandbox

import (
	"errors"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"

	"github.com/holomush/scriptbox/internal/callin"
	"github.com/holomush/scriptbox/internal/event"
	"github.com/holomush/scriptbox/internal/vfs"
)

const testManifest = `
version: 2.0.0
callins:
  - name: Shutdown
    code: 1
  - name: Tick
    code: 2
  - name: Explosion
    code: 3
  - name: WorldLoaded
    code: 4
  - name: GLContextInit
    code: 7
    aliases: [GLReload]
`

// subscribingScript registers for Tick, Explosion, WorldLoaded and Shutdown.
const subscribingScript = `
Script.SetCallIn("Tick", function(n) record("Tick", n) end)
Script.SetCallIn("Explosion", function() record("Explosion") end)
Script.SetCallIn("WorldLoaded", function() record("WorldLoaded") end)
Script.SetCallIn("Shutdown", function() record("Shutdown") end)
`

func testRegistry(t *testing.T) *callin.Registry {
	t.Helper()
	r, err := callin.Parse([]byte(testManifest))
	require.NoError(t, err)
	return r
}

type mockEvents struct {
	mock.Mock
}

func (m *mockEvents) Subscribe(s event.Subscriber) []string {
	args := m.Called(s)
	names, _ := args.Get(0).([]string)
	return names
}

func (m *mockEvents) Unsubscribe(s event.Subscriber, name string) bool {
	args := m.Called(s, name)
	return args.Bool(0)
}

func (m *mockEvents) RemoveSubscriber(s event.Subscriber) {
	m.Called(s)
}

// countingEngine wraps LuaEngine and counts allocations and releases.
type countingEngine struct {
	inner *LuaEngine
	fail  error

	mu        sync.Mutex
	allocated int
	closed    map[*lua.LState]int
}

func newCountingEngine() *countingEngine {
	return &countingEngine{inner: NewLuaEngine(), closed: make(map[*lua.LState]int)}
}

func (e *countingEngine) NewState() (*lua.LState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail != nil {
		return nil, e.fail
	}
	e.allocated++
	return e.inner.NewState()
}

func (e *countingEngine) Close(L *lua.LState) {
	e.mu.Lock()
	e.closed[L]++
	e.mu.Unlock()
	e.inner.Close(L)
}

func (e *countingEngine) counts() (allocated, released int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, n := range e.closed {
		released += n
	}
	return e.allocated, released
}

// maxCloses returns the highest number of times a single state was closed.
func (e *countingEngine) maxCloses() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	highest := 0
	for _, n := range e.closed {
		highest = max(highest, n)
	}
	return highest
}

type mapConfig map[string]string

func (c mapConfig) String(key string) string { return c[key] }

// recorder is a host library that records the calls a script makes.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) descriptor() Descriptor {
	return Descriptor{
		Name: "record",
		Module: StaticModule{
			"record": func(L *lua.LState) int {
				entry := L.CheckString(1)
				if L.GetTop() > 1 {
					entry += ":" + L.Get(2).String()
				}
				r.mu.Lock()
				r.calls = append(r.calls, entry)
				r.mu.Unlock()
				return 0
			},
		},
	}
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func scriptFS(files map[string]string) vfs.Resolver {
	mapFS := fstest.MapFS{}
	for name, src := range files {
		mapFS[name] = &fstest.MapFile{Data: []byte(src)}
	}
	return vfs.New(vfs.ReadOnlyLayer(vfs.User, mapFS))
}

type testSandbox struct {
	manager  *Manager
	engine   *countingEngine
	events   *mockEvents
	recorder *recorder
	registry *callin.Registry
}

type testOption func(*Deps, *Options)

func withConfig(c ConfigReader) testOption {
	return func(d *Deps, _ *Options) { d.Config = c }
}

func withModules(ds ...Descriptor) testOption {
	return func(_ *Deps, o *Options) { o.Modules = append(o.Modules, ds...) }
}

func withPrivileged() testOption {
	return func(_ *Deps, o *Options) { o.Privileged = true }
}

func withEvents(ev Events) testOption {
	return func(d *Deps, _ *Options) { d.Events = ev }
}

// newTestSandbox builds a manager whose script is main.lua. The mock event
// registry accepts any subscription; tests add expectations as needed.
func newTestSandbox(t *testing.T, script string, opts ...testOption) *testSandbox {
	t.Helper()
	ts := &testSandbox{
		engine:   newCountingEngine(),
		events:   new(mockEvents),
		recorder: &recorder{},
		registry: testRegistry(t),
	}
	deps := Deps{
		Engine:   ts.engine,
		Files:    scriptFS(map[string]string{"main.lua": script}),
		Events:   ts.events,
		Registry: ts.registry,
	}
	options := Options{
		Name:       "TestUser",
		SourcePath: "main.lua",
		Modules:    Table{ts.recorder.descriptor(), ScriptLibrary()},
	}
	for _, o := range opts {
		o(&deps, &options)
	}
	ts.manager = NewManager(deps, options)
	return ts
}

func (ts *testSandbox) expectSubscribe(names ...string) {
	ts.events.On("Subscribe", mock.Anything).Return(names).Maybe()
}

var errBoom = errors.New("boom")
