// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package hostlib

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/holomush/scriptbox/internal/sandbox"
	"github.com/holomush/scriptbox/internal/vfs"
)

// VFS returns file access bounded by the calling instance's scopes:
//
//	VFS.FileExists(path[, modes]) -> bool
//	VFS.LoadFile(path[, modes])   -> data | nil, err
//	VFS.WriteFile(path, data[, modes]) -> true | nil, err
//
// modes is a string of mode letters. It narrows the instance's default
// scope and can never widen it past ReadAll or WriteAll.
func VFS(files vfs.FileSystem) sandbox.Descriptor {
	l := &vfsLib{files: files}
	return sandbox.Descriptor{
		Namespace:  "VFS",
		Name:       "vfs",
		Capability: "lib.vfs",
		Module: sandbox.StaticModule{
			"FileExists": l.fileExists,
			"LoadFile":   l.loadFile,
			"WriteFile":  l.writeFile,
		},
	}
}

type vfsLib struct {
	files vfs.FileSystem
}

func scopesOf(L *lua.LState) vfs.Scopes {
	inst, ok := sandbox.Lookup(L)
	if !ok {
		// Unbound states get no filesystem access at all.
		return vfs.Scopes{}
	}
	return inst.Scopes()
}

func (l *vfsLib) fileExists(L *lua.LState) int {
	path := L.CheckString(1)
	scope := scopesOf(L).ReadScope(vfs.Scope(L.OptString(2, "")))
	if scope == "" {
		L.Push(lua.LFalse)
		return 1
	}
	L.Push(lua.LBool(l.files.Exists(callerContext(L), path, scope)))
	return 1
}

func (l *vfsLib) loadFile(L *lua.LState) int {
	path := L.CheckString(1)
	scope := scopesOf(L).ReadScope(vfs.Scope(L.OptString(2, "")))
	if scope == "" {
		return pushError(L, "access denied")
	}
	data, err := l.files.Resolve(callerContext(L), path, scope)
	if err != nil {
		logger(L).Debug("VFS.LoadFile failed", "path", path, "scope", string(scope), "error", err)
		return pushError(L, err.Error())
	}
	return pushSuccess(L, lua.LString(string(data)))
}

func (l *vfsLib) writeFile(L *lua.LState) int {
	path := L.CheckString(1)
	data := L.CheckString(2)
	scope := scopesOf(L).WriteScope(vfs.Scope(L.OptString(3, "")))
	if scope == "" {
		return pushError(L, "access denied")
	}
	if err := l.files.Write(callerContext(L), path, scope, []byte(data)); err != nil {
		logger(L).Debug("VFS.WriteFile failed", "path", path, "scope", string(scope), "error", err)
		return pushError(L, err.Error())
	}
	return pushSuccess(L, lua.LTrue)
}
