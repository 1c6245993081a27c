// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package hostlib

import (
	"github.com/oklog/ulid/v2"
	lua "github.com/yuin/gopher-lua"

	"github.com/holomush/scriptbox/internal/sandbox"
)

// Extras returns the global helpers log(level, msg) and new_request_id().
func Extras() sandbox.Descriptor {
	return sandbox.Descriptor{
		Name:       "extras",
		Capability: "lib.extras",
		Module: sandbox.StaticModule{
			"log":            logFn,
			"new_request_id": newRequestIDFn,
		},
	}
}

func logFn(L *lua.LState) int {
	level := L.CheckString(1)
	message := L.CheckString(2)

	log := logger(L)
	switch level {
	case "debug":
		log.Debug(message)
	case "info":
		log.Info(message)
	case "warn":
		log.Warn(message)
	case "error":
		log.Error(message)
	default:
		log.Info(message)
	}
	return 0
}

func newRequestIDFn(L *lua.LState) int {
	L.Push(lua.LString(ulid.Make().String()))
	return 1
}
