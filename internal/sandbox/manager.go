// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package sandbox

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/scriptbox/internal/callin"
	"github.com/holomush/scriptbox/internal/event"
	"github.com/holomush/scriptbox/internal/observability"
	"github.com/holomush/scriptbox/internal/vfs"
	"github.com/holomush/scriptbox/pkg/errutil"
)

var tracer = otel.Tracer("scriptbox/sandbox")

// Defaults for Options.
const (
	DefaultName       = "LuaUser"
	DefaultSourcePath = "bzUser.lua"
	DefaultForbidKey  = "sandbox.forbid_callins"
	shutdownCallIn    = "Shutdown"
)

// Events is the event-dispatch registry an instance subscribes to.
type Events interface {
	Subscribe(s event.Subscriber) []string
	Unsubscribe(s event.Subscriber, name string) bool
	RemoveSubscriber(s event.Subscriber)
}

// ConfigReader reads the forbidden call-in list.
type ConfigReader interface {
	String(key string) string
}

// Deps are the collaborators of a Manager.
type Deps struct {
	// Engine defaults to a LuaEngine.
	Engine Engine
	Files  vfs.Resolver
	Events Events
	// Config may be nil, in which case nothing is forbidden.
	Config ConfigReader
	// Registry defaults to callin.Default().
	Registry *callin.Registry
	// Grants may be nil, in which case every library is admitted.
	Grants Checker
}

// Options describe the sandbox a Manager builds.
type Options struct {
	Name       string
	SourcePath string
	// Privileged admits the debug facility. It is fixed for the life of
	// every instance the Manager builds.
	Privileged bool
	// Scopes default to vfs.UserScopes().
	Scopes *vfs.Scopes
	// Policy defaults to DefaultPolicy().
	Policy  *Policy
	Modules Table
	// ForbidKey is the config key holding the forbidden call-in list.
	ForbidKey string
}

// Manager owns the single live sandbox instance.
//
// Only the Manager assigns the current instance; readers go through Current.
// Manager is safe for concurrent use. Load, Free and ForbidCallIns hold the
// manager lock for their whole run, so they wait on a script that is still
// loading; Active does not.
type Manager struct {
	deps   Deps
	opts   Options
	policy Policy
	scopes vfs.Scopes

	mu      sync.Mutex
	current *Instance
	active  atomic.Bool
}

// NewManager creates a manager. Panics if deps.Files or deps.Events is nil.
func NewManager(deps Deps, opts Options) *Manager {
	if deps.Files == nil {
		panic("sandbox.NewManager: Files cannot be nil")
	}
	if deps.Events == nil {
		panic("sandbox.NewManager: Events cannot be nil")
	}
	if deps.Engine == nil {
		deps.Engine = NewLuaEngine()
	}
	if deps.Registry == nil {
		deps.Registry = callin.Default()
	}
	if opts.Name == "" {
		opts.Name = DefaultName
	}
	if opts.SourcePath == "" {
		opts.SourcePath = DefaultSourcePath
	}
	if opts.ForbidKey == "" {
		opts.ForbidKey = DefaultForbidKey
	}

	m := &Manager{deps: deps, opts: opts, policy: DefaultPolicy(), scopes: vfs.UserScopes()}
	if opts.Policy != nil {
		m.policy = *opts.Policy
	}
	if opts.Scopes != nil {
		m.scopes = *opts.Scopes
	}
	return m
}

// Name returns the sandbox name.
func (m *Manager) Name() string { return m.opts.Name }

// Current returns the active instance, or nil.
func (m *Manager) Current() *Instance {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Active reports whether an instance is active. It never blocks.
func (m *Manager) Active() bool {
	return m.active.Load()
}

// Load builds the sandbox and runs the forbidding filter. If an instance is
// already active it is returned unchanged. On failure no instance is
// retained and every resource of the attempt has been released.
func (m *Manager) Load(ctx context.Context) (_ *Instance, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		return m.current, nil
	}

	ctx, span := tracer.Start(ctx, "sandbox.load",
		trace.WithAttributes(
			attribute.String("sandbox.name", m.opts.Name),
			attribute.String("sandbox.source", m.opts.SourcePath),
			attribute.Bool("sandbox.privileged", m.opts.Privileged),
		),
	)
	defer func() {
		span.SetAttributes(attribute.String("sandbox.outcome", outcome(err)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	inst, err := m.construct(ctx, span)
	observability.RecordSandboxLoad(outcome(err))
	if err != nil {
		errutil.LogError(slog.Default(), "sandbox construction failed", err)
		return nil, err
	}

	m.current = inst
	m.active.Store(true)
	observability.SetSandboxActive(true)
	slog.InfoContext(ctx, "sandbox active",
		"sandbox", inst.name,
		"id", inst.id.String(),
		"privileged", inst.privileged,
		"callins", inst.CallIns())

	m.forbid(ctx, inst)
	return inst, nil
}

// construct drives one instance from Uninitialized to Active.
func (m *Manager) construct(ctx context.Context, span trace.Span) (_ *Instance, err error) {
	inst := newInstance(m.opts.Name, m.opts.Privileged, m.scopes, m.deps.Registry, m.deps.Events)
	enter := func(s State) {
		inst.setState(s)
		span.AddEvent(s.String())
	}

	L, err := m.deps.Engine.NewState()
	if err == nil && L == nil {
		err = errors.New("engine returned no state")
	}
	if err != nil {
		enter(StateFailed)
		return nil, ErrAllocationFailure(m.opts.Name, err)
	}

	inst.mu.Lock()
	inst.L = L
	inst.mu.Unlock()
	handles.register(L, inst)
	enter(StateAdmitting)

	defer func() {
		if r := recover(); r != nil {
			err = oops.In("sandbox").
				Code(codeFor(inst.State())).
				With("sandbox", m.opts.Name).
				With("state", inst.State().String()).
				Errorf("panic during construction: %v", r)
		}
		if err != nil {
			m.release(inst)
			enter(StateFailed)
		}
	}()

	inst.callMu.Lock()
	defer inst.callMu.Unlock()

	if err := m.policy.Open(L, m.opts.Privileged); err != nil {
		return nil, ErrAdmissionFailure(m.opts.Name, "stdlib", err)
	}
	admitted, err := m.opts.Modules.Admit(L, m.opts.Name, m.deps.Grants)
	if err != nil {
		return nil, err
	}
	m.policy.Strip(L)
	span.SetAttributes(attribute.StringSlice("sandbox.libraries", admitted))

	enter(StateLoading)
	src, err := m.deps.Files.Resolve(ctx, m.opts.SourcePath, inst.scopes.Read)
	if err != nil {
		return nil, ErrSourceUnavailable(m.opts.Name, m.opts.SourcePath, err)
	}
	if len(src) == 0 {
		return nil, ErrSourceUnavailable(m.opts.Name, m.opts.SourcePath, nil)
	}

	enter(StateExecuting)
	fn, err := L.Load(bytes.NewReader(src), m.opts.SourcePath)
	if err != nil {
		return nil, ErrExecutionError(m.opts.Name, m.opts.SourcePath, err)
	}
	if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}); err != nil {
		return nil, ErrExecutionError(m.opts.Name, m.opts.SourcePath, err)
	}

	enter(StateActive)
	subscribed := m.deps.Events.Subscribe(inst)
	span.SetAttributes(attribute.StringSlice("sandbox.subscriptions", subscribed))
	return inst, nil
}

// release closes the interpreter of inst. It is safe to call more than once;
// the interpreter is closed exactly once.
func (m *Manager) release(inst *Instance) {
	inst.mu.Lock()
	L := inst.L
	inst.L = nil
	inst.handlers = make(map[callin.Code]*lua.LFunction)
	inst.mu.Unlock()

	if L == nil {
		return
	}
	handles.unregister(L)
	m.deps.Engine.Close(L)
}

// Free tears down the active instance: the script's Shutdown call-in runs,
// the instance leaves the event registry and the interpreter is released.
func (m *Manager) Free(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.free(ctx)
}

func (m *Manager) free(ctx context.Context) {
	inst := m.current
	if inst == nil {
		return
	}

	if code, ok := inst.registry.CodeFor(shutdownCallIn); ok {
		if err := inst.invoke(ctx, code); err != nil {
			errutil.LogWarn(slog.Default().With("sandbox", inst.name), "shutdown call-in failed", err)
		}
	}

	m.deps.Events.RemoveSubscriber(inst)
	inst.callMu.Lock()
	m.release(inst)
	inst.callMu.Unlock()
	inst.setState(StateTornDown)

	m.current = nil
	m.active.Store(false)
	observability.SetSandboxActive(false)
	slog.InfoContext(ctx, "sandbox torn down", "sandbox", inst.name, "id", inst.id.String())
}

// Reload tears down the active instance, if any, and builds a new one.
func (m *Manager) Reload(ctx context.Context) (*Instance, error) {
	m.Free(ctx)
	return m.Load(ctx)
}

// ForbidCallIns re-reads the forbidden call-in list and applies it to the
// active instance. It returns the call-ins removed by this pass.
func (m *Manager) ForbidCallIns(ctx context.Context) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	return m.forbid(ctx, m.current)
}

func (m *Manager) forbid(ctx context.Context, inst *Instance) []string {
	if m.deps.Config == nil {
		return nil
	}
	return ForbidCallIns(ctx, inst, m.deps.Events, m.deps.Config.String(m.opts.ForbidKey))
}
