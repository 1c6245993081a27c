// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package hostlib provides the host library modules admitted into a sandbox.
//
// Each constructor returns a sandbox.Descriptor; DefaultTable lists them in
// admission order.
//
//nolint:gocritic // captLocal: L is the idiomatic name for lua.LState
package hostlib

import (
	"context"
	"log/slog"

	lua "github.com/yuin/gopher-lua"

	"github.com/holomush/scriptbox/internal/sandbox"
	"github.com/holomush/scriptbox/internal/vfs"
)

// Deps are the collaborators the default libraries need. A nil field drops
// the library that needs it from DefaultTable.
type Deps struct {
	Files  vfs.FileSystem
	Config ConfigReader
}

// DefaultTable returns the host libraries in admission order.
func DefaultTable(deps Deps) sandbox.Table {
	table := sandbox.Table{
		Extras(),
		BitOps(),
		Vector(),
	}
	if deps.Files != nil {
		table = append(table, VFS(deps.Files))
	}
	if deps.Config != nil {
		table = append(table, Config(deps.Config))
	}
	return append(table, sandbox.ScriptLibrary())
}

// pushError pushes nil followed by an error string and returns 2.
func pushError(L *lua.LState, errMsg string) int {
	L.Push(lua.LNil)
	L.Push(lua.LString(errMsg))
	return 2
}

// pushSuccess pushes a value followed by nil and returns 2.
func pushSuccess(L *lua.LState, value lua.LValue) int {
	L.Push(value)
	L.Push(lua.LNil)
	return 2
}

// callerContext returns the context set on L, or context.Background().
func callerContext(L *lua.LState) context.Context {
	if ctx := L.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// logger returns the default logger tagged with the calling sandbox.
func logger(L *lua.LState) *slog.Logger {
	if inst, ok := sandbox.Lookup(L); ok {
		return slog.Default().With("sandbox", inst.Name())
	}
	return slog.Default()
}
