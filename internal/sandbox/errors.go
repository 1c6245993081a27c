// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package sandbox

import (
	"errors"
	"strings"

	"github.com/samber/oops"
)

// Error codes for sandbox construction failures.
const (
	CodeAllocationFailure = "ALLOCATION_FAILURE"
	CodeAdmissionFailure  = "ADMISSION_FAILURE"
	CodeSourceUnavailable = "SOURCE_UNAVAILABLE"
	CodeExecutionError    = "EXECUTION_ERROR"
)

// ErrNameCollision is the cause of an admission failure where a module's
// entry would overwrite a global or land in a non-table namespace.
var ErrNameCollision = errors.New("name collision")

// ErrAllocationFailure creates an error for an interpreter that could not be created.
func ErrAllocationFailure(sandbox string, cause error) error {
	return oops.In("sandbox").
		Code(CodeAllocationFailure).
		With("sandbox", sandbox).
		Wrapf(cause, "allocate interpreter")
}

// ErrAdmissionFailure creates an error for a library that failed to merge.
func ErrAdmissionFailure(sandbox, library string, cause error) error {
	return oops.In("sandbox").
		Code(CodeAdmissionFailure).
		With("sandbox", sandbox).
		With("library", library).
		Wrapf(cause, "admit library %s", library)
}

// ErrSourceUnavailable creates an error for script source that is missing or
// empty. cause may be nil.
func ErrSourceUnavailable(sandbox, path string, cause error) error {
	builder := oops.In("sandbox").
		Code(CodeSourceUnavailable).
		With("sandbox", sandbox).
		With("path", path)
	if cause != nil {
		return builder.Wrapf(cause, "load source %s", path)
	}
	return builder.Errorf("source %s is empty", path)
}

// ErrExecutionError creates an error carrying the interpreter's message.
func ErrExecutionError(sandbox, path string, cause error) error {
	return oops.In("sandbox").
		Code(CodeExecutionError).
		With("sandbox", sandbox).
		With("path", path).
		Hint("the script raised an error while running").
		Wrapf(cause, "execute %s", path)
}

func errNameCollision(namespace, key string) error {
	return oops.In("sandbox").
		With("namespace", namespace).
		With("key", key).
		Wrapf(ErrNameCollision, "%s", qualified(namespace, key))
}

// outcome turns an error into a metrics label.
func outcome(err error) string {
	if err == nil {
		return "active"
	}
	if oopsErr, ok := oops.AsOops(err); ok {
		if code, ok := oopsErr.Code().(string); ok && code != "" {
			return strings.ToLower(code)
		}
	}
	return "unknown"
}

func qualified(namespace, key string) string {
	if namespace == "" {
		return key
	}
	return namespace + "." + key
}

// codeFor maps the phase a construction stopped in to its error code.
func codeFor(s State) string {
	switch s {
	case StateLoading:
		return CodeSourceUnavailable
	case StateExecuting:
		return CodeExecutionError
	default:
		return CodeAdmissionFailure
	}
}
