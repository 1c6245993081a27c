// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package sandbox runs one user script in a restricted Lua interpreter.
//
// A Manager builds the instance in fixed phases: allocate the interpreter,
// open the standard facilities allowed by the Policy, merge the host library
// Table, load the script from the virtual filesystem and execute it. Any
// failure releases the interpreter and leaves no instance behind. An active
// instance subscribes to the call-ins its script registered for through the
// Script table; ForbidCallIns can later revoke them from configuration.
//
// L is the idiomatic variable name for lua.LState in gopher-lua code.
//
//nolint:gocritic // captLocal: L is the idiomatic name for lua.LState
package sandbox
