// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package hostlib

import (
	"math"

	lua "github.com/yuin/gopher-lua"

	"github.com/holomush/scriptbox/internal/sandbox"
)

// Vector returns 3D vector helpers merged into math. Vectors are passed as
// three numbers: math.vdot(x1, y1, z1, x2, y2, z2).
func Vector() sandbox.Descriptor {
	return sandbox.Descriptor{
		Namespace:  lua.MathLibName,
		Name:       "vector",
		Capability: "lib.math.vector",
		Module: sandbox.StaticModule{
			"vlength":    vlength,
			"vnormalize": vnormalize,
			"vdot":       vdot,
			"vcross":     vcross,
		},
	}
}

type vec3 struct{ x, y, z float64 }

func checkVec(L *lua.LState, first int) vec3 {
	return vec3{
		x: float64(L.CheckNumber(first)),
		y: float64(L.CheckNumber(first + 1)),
		z: float64(L.CheckNumber(first + 2)),
	}
}

func (v vec3) length() float64 { return math.Sqrt(v.x*v.x + v.y*v.y + v.z*v.z) }

func pushVec(L *lua.LState, v vec3) int {
	L.Push(lua.LNumber(v.x))
	L.Push(lua.LNumber(v.y))
	L.Push(lua.LNumber(v.z))
	return 3
}

func vlength(L *lua.LState) int {
	L.Push(lua.LNumber(checkVec(L, 1).length()))
	return 1
}

// vnormalize returns the unit vector, or the zero vector unchanged.
func vnormalize(L *lua.LState) int {
	v := checkVec(L, 1)
	l := v.length()
	if l == 0 {
		return pushVec(L, v)
	}
	return pushVec(L, vec3{v.x / l, v.y / l, v.z / l})
}

func vdot(L *lua.LState) int {
	a, b := checkVec(L, 1), checkVec(L, 4)
	L.Push(lua.LNumber(a.x*b.x + a.y*b.y + a.z*b.z))
	return 1
}

func vcross(L *lua.LState) int {
	a, b := checkVec(L, 1), checkVec(L, 4)
	return pushVec(L, vec3{
		a.y*b.z - a.z*b.y,
		a.z*b.x - a.x*b.z,
		a.x*b.y - a.y*b.x,
	})
}
