// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package hostlib

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/holomush/scriptbox/internal/sandbox"
)

// BitOps returns 32-bit unsigned bit operations merged into math.
func BitOps() sandbox.Descriptor {
	return sandbox.Descriptor{
		Namespace:  lua.MathLibName,
		Name:       "bitops",
		Capability: "lib.math.bitops",
		Module: sandbox.StaticModule{
			"band":   foldBits(func(a, b uint32) uint32 { return a & b }),
			"bor":    foldBits(func(a, b uint32) uint32 { return a | b }),
			"bxor":   foldBits(func(a, b uint32) uint32 { return a ^ b }),
			"bnot":   bnot,
			"lshift": shiftBits(func(v uint32, n uint) uint32 { return v << n }),
			"rshift": shiftBits(func(v uint32, n uint) uint32 { return v >> n }),
		},
	}
}

func checkBits(L *lua.LState, n int) uint32 {
	return uint32(int64(L.CheckNumber(n))) //nolint:gosec // wraps to 32 bits on purpose
}

// foldBits applies op across every argument, left to right.
func foldBits(op func(a, b uint32) uint32) lua.LGFunction {
	return func(L *lua.LState) int {
		top := L.GetTop()
		if top == 0 {
			L.ArgError(1, "number expected")
			return 0
		}
		acc := checkBits(L, 1)
		for i := 2; i <= top; i++ {
			acc = op(acc, checkBits(L, i))
		}
		L.Push(lua.LNumber(acc))
		return 1
	}
}

func bnot(L *lua.LState) int {
	L.Push(lua.LNumber(^checkBits(L, 1)))
	return 1
}

func shiftBits(op func(v uint32, n uint) uint32) lua.LGFunction {
	return func(L *lua.LState) int {
		v := checkBits(L, 1)
		n := L.CheckInt(2)
		if n < 0 || n >= 32 {
			L.Push(lua.LNumber(0))
			return 1
		}
		L.Push(lua.LNumber(op(v, uint(n))))
		return 1
	}
}
