// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package hostlib

import (
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/holomush/scriptbox/internal/sandbox"
)

// ConfigReader is the read-only view of configuration offered to scripts.
type ConfigReader interface {
	String(key string) string
	Bool(key string) bool
	Exists(key string) bool
}

// hiddenPrefix guards the sandbox's own settings, including the forbid list.
const hiddenPrefix = "sandbox."

// Config returns read-only configuration access:
//
//	Config.GetString(key) -> string | nil
//	Config.GetBool(key)   -> bool | nil
func Config(cfg ConfigReader) sandbox.Descriptor {
	return sandbox.Descriptor{
		Namespace:  "Config",
		Name:       "config",
		Capability: "lib.config",
		Module: sandbox.StaticModule{
			"GetString": func(L *lua.LState) int {
				key := L.CheckString(1)
				if !visible(cfg, key) {
					L.Push(lua.LNil)
					return 1
				}
				L.Push(lua.LString(cfg.String(key)))
				return 1
			},
			"GetBool": func(L *lua.LState) int {
				key := L.CheckString(1)
				if !visible(cfg, key) {
					L.Push(lua.LNil)
					return 1
				}
				L.Push(lua.LBool(cfg.Bool(key)))
				return 1
			},
		},
	}
}

func visible(cfg ConfigReader, key string) bool {
	return !strings.HasPrefix(key, hiddenPrefix) && cfg.Exists(key)
}
