// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package sandbox_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	"github.com/holomush/scriptbox/internal/callin"
	"github.com/holomush/scriptbox/internal/event"
	"github.com/holomush/scriptbox/internal/sandbox"
)

func codeOf(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	return fmt.Sprint(oopsErr.Code())
}

func eventNamed(name string) event.Event { return event.Event{Name: name} }

// collidingModule claims a global the default table also exports.
func collidingModule() sandbox.Descriptor {
	return sandbox.Descriptor{
		Name:   "shadow",
		Module: sandbox.StaticModule{"log": func(*lua.LState) int { return 0 }},
	}
}

func failingModule(name string) sandbox.Descriptor {
	return sandbox.Descriptor{
		Namespace: "Broken",
		Name:      name,
		Module: sandbox.ModuleFunc(func(*lua.LState) (sandbox.Exports, error) {
			return nil, errors.New("module refused to load")
		}),
	}
}

var _ = Describe("Sandbox construction", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Describe("admission failures", func() {
		DescribeTable("leave no instance and release the interpreter once",
			func(extra sandbox.Table) {
				w := newWorld(worldOptions{script: subscribeAll("Tick"), extra: extra})

				inst, err := w.manager.Load(ctx)
				Expect(err).To(HaveOccurred())
				Expect(codeOf(err)).To(Equal(sandbox.CodeAdmissionFailure))
				Expect(inst).To(BeNil())
				Expect(w.manager.Current()).To(BeNil())

				states := w.engine.allocated()
				Expect(states).To(HaveLen(1))
				Expect(w.engine.closeCount(states[0])).To(Equal(1))
				_, bound := sandbox.Lookup(states[0])
				Expect(bound).To(BeFalse())
				Expect(w.events.Subscribers("Tick")).To(BeEmpty())
			},
			Entry("first module fails", sandbox.Table{failingModule("first")}),
			Entry("module after a good one fails", sandbox.Table{
				{Namespace: "Good", Name: "good", Module: sandbox.StaticModule{"f": func(*lua.LState) int { return 0 }}},
				failingModule("second"),
			}),
			Entry("global name collision", sandbox.Table{collidingModule()}),
		)

		It("reports a name collision as the cause", func() {
			w := newWorld(worldOptions{script: "", extra: sandbox.Table{collidingModule()}})

			_, err := w.manager.Load(ctx)
			Expect(errors.Is(err, sandbox.ErrNameCollision)).To(BeTrue())
		})
	})

	Describe("standard facilities", func() {
		const script = `
probe("exit", type(os.exit))
probe("execute", type(os.execute))
probe("setlocale", type(os.setlocale))
probe("io", type(io))
probe("require", type(require))
probe("dofile", type(dofile))
probe("debug", type(debug))
probe("clock", type(os.clock))
`
		DescribeTable("are admitted by policy",
			func(privileged bool, wantDebug string) {
				w := newWorld(worldOptions{script: script, privileged: privileged})
				_, err := w.manager.Load(ctx)
				Expect(err).NotTo(HaveOccurred())
				DeferCleanup(w.manager.Free, ctx)

				for _, name := range []string{"exit", "execute", "setlocale", "io", "require", "dofile"} {
					Expect(w.probe.get(name)).To(Equal("nil"), name)
				}
				Expect(w.probe.get("clock")).To(Equal("function"))
				Expect(w.probe.get("debug")).To(Equal(wantDebug))
			},
			Entry("standard sandbox", false, "nil"),
			Entry("privileged sandbox", true, "table"),
		)
	})

	Describe("source loading", func() {
		It("aborts on empty source before subscribing", func() {
			w := newWorld(worldOptions{script: ""})

			_, err := w.manager.Load(ctx)
			Expect(err).To(HaveOccurred())
			Expect(codeOf(err)).To(Equal(sandbox.CodeSourceUnavailable))
			Expect(w.manager.Current()).To(BeNil())
			for _, name := range w.registry.Names() {
				Expect(w.events.Subscribers(name)).To(BeEmpty(), name)
			}
			states := w.engine.allocated()
			Expect(states).To(HaveLen(1))
			Expect(w.engine.closeCount(states[0])).To(Equal(1))
		})
	})
})

var _ = Describe("Forbidding call-ins", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("revokes Tick and Explosion and leaves the rest subscribed", func() {
		w := newWorld(worldOptions{
			script: subscribeAll("Tick", "Explosion", "WorldLoaded"),
			forbid: "Tick, Explosion",
		})

		inst, err := w.manager.Load(ctx)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(w.manager.Free, ctx)

		Expect(inst.IsValidCallIn(w.code("Tick"))).To(BeFalse())
		Expect(inst.IsValidCallIn(w.code("Explosion"))).To(BeFalse())
		Expect(w.events.Subscribed(inst, "Tick")).To(BeFalse())
		Expect(w.events.Subscribed(inst, "Explosion")).To(BeFalse())
		Expect(w.events.Subscribed(inst, "WorldLoaded")).To(BeTrue())
		Expect(inst.CallIns()).To(Equal([]string{"WorldLoaded"}))
	})

	It("collapses an alias onto its canonical call-in", func() {
		byAlias := newWorld(worldOptions{script: subscribeAll("GLContextInit"), forbid: "GLReload"})
		byName := newWorld(worldOptions{script: subscribeAll("GLContextInit"), forbid: "GLContextInit"})

		a, err := byAlias.manager.Load(ctx)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(byAlias.manager.Free, ctx)
		b, err := byName.manager.Load(ctx)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(byName.manager.Free, ctx)

		Expect(a.ValidCallIns()).To(Equal(b.ValidCallIns()))
		Expect(byAlias.events.Subscribed(a, "GLContextInit")).To(BeFalse())
		Expect(byName.events.Subscribed(b, "GLContextInit")).To(BeFalse())
	})

	It("is idempotent and ignores unknown names", func() {
		w := newWorld(worldOptions{script: subscribeAll("Tick")})
		inst, err := w.manager.Load(ctx)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(w.manager.Free, ctx)

		first := sandbox.ForbidCallIns(ctx, inst, w.events, "Tick")
		once := inst.ValidCallIns()
		second := sandbox.ForbidCallIns(ctx, inst, w.events, "Tick Tick")
		Expect(first).To(Equal([]string{"Tick"}))
		Expect(second).To(BeEmpty())
		Expect(inst.ValidCallIns()).To(Equal(once))

		Expect(sandbox.ForbidCallIns(ctx, inst, w.events, "NoSuchCallIn")).To(BeEmpty())
		Expect(inst.ValidCallIns()).To(Equal(once))
	})

	It("only ever shrinks the valid set", func() {
		w := newWorld(worldOptions{script: subscribeAll(callin.Default().Names()...)})
		inst, err := w.manager.Load(ctx)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(w.manager.Free, ctx)

		names := append(w.registry.Names(), "GLReload", "Update", "Bogus")
		rng := rand.New(rand.NewPCG(1, 2)) //nolint:gosec // deterministic test sequence
		prev := inst.ValidCallIns()
		for range 50 {
			list := names[rng.IntN(len(names))] + "," + names[rng.IntN(len(names))]
			sandbox.ForbidCallIns(ctx, inst, w.events, list)

			next := inst.ValidCallIns()
			for _, code := range next {
				Expect(prev).To(ContainElement(code))
			}
			Expect(len(next)).To(BeNumerically("<=", len(prev)))
			prev = next
		}
	})

	It("never delivers a forbidden call-in", func() {
		w := newWorld(worldOptions{script: `
Script.SetCallIn("Tick", function() probe("tick", "delivered") end)
Script.SetCallIn("Explosion", function() probe("boom", "delivered") end)
`, forbid: "Tick"})
		inst, err := w.manager.Load(ctx)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(w.manager.Free, ctx)

		Expect(inst.HandleEvent(ctx, eventNamed("Tick"))).To(Succeed())
		w.events.Dispatch(ctx, eventNamed("Tick"))
		w.events.Dispatch(ctx, eventNamed("Explosion"))

		Expect(w.probe.get("tick")).To(BeEmpty())
		Expect(w.probe.get("boom")).To(Equal("delivered"))
	})
})
