// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package vfs resolves logical script paths to bytes under a mode-letter scope.
package vfs

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/samber/oops"
)

// Sentinel errors. They are wrapped with oops context but carry no code,
// so callers can attach their own.
var (
	ErrNotFound    = errors.New("file not found")
	ErrInvalidPath = errors.New("invalid path")
	ErrReadOnly    = errors.New("no writable layer in scope")
)

// Resolver loads file contents.
type Resolver interface {
	Resolve(ctx context.Context, name string, scope Scope) ([]byte, error)
}

// Writer stores file contents.
type Writer interface {
	Write(ctx context.Context, name string, scope Scope, data []byte) error
}

// FileSystem is the full collaborator used by host libraries.
type FileSystem interface {
	Resolver
	Writer
	Exists(ctx context.Context, name string, scope Scope) bool
}

// Layer backs one mode letter. FS serves reads; Dir, when set, is the
// on-disk root that receives writes for this mode.
type Layer struct {
	Mode byte
	FS   fs.FS
	Dir  string
}

// DirLayer returns a read/write layer rooted at dir.
func DirLayer(mode Scope, dir string) Layer {
	return Layer{Mode: mode[0], FS: os.DirFS(dir), Dir: dir}
}

// ReadOnlyLayer returns a layer that only serves reads.
func ReadOnlyLayer(mode Scope, fsys fs.FS) Layer {
	return Layer{Mode: mode[0], FS: fsys}
}

// Layered is a FileSystem searching one layer per mode letter.
type Layered struct {
	layers map[byte]Layer
}

// Compile-time interface check.
var _ FileSystem = (*Layered)(nil)

// New creates a layered filesystem. Later layers replace earlier ones with
// the same mode letter.
func New(layers ...Layer) *Layered {
	l := &Layered{layers: make(map[byte]Layer, len(layers))}
	for _, layer := range layers {
		l.layers[layer.Mode] = layer
	}
	return l
}

// Resolve returns the contents of name from the first layer in scope that has it.
func (l *Layered) Resolve(_ context.Context, name string, scope Scope) ([]byte, error) {
	clean, err := cleanPath(name)
	if err != nil {
		return nil, err
	}

	for i := 0; i < len(scope); i++ {
		layer, ok := l.layers[scope[i]]
		if !ok || layer.FS == nil {
			continue
		}
		data, err := fs.ReadFile(layer.FS, clean)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, oops.In("vfs").With("path", clean).With("mode", string(layer.Mode)).Wrap(err)
		}
	}

	return nil, oops.In("vfs").With("path", clean).With("scope", string(scope)).Wrap(ErrNotFound)
}

// Exists reports whether name resolves within scope.
func (l *Layered) Exists(ctx context.Context, name string, scope Scope) bool {
	_, err := l.Resolve(ctx, name, scope)
	return err == nil
}

// Write stores data in the first writable layer in scope.
func (l *Layered) Write(_ context.Context, name string, scope Scope, data []byte) error {
	clean, err := cleanPath(name)
	if err != nil {
		return err
	}

	for i := 0; i < len(scope); i++ {
		layer, ok := l.layers[scope[i]]
		if !ok || layer.Dir == "" {
			continue
		}
		target := filepath.Join(layer.Dir, filepath.FromSlash(clean))
		if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
			return oops.In("vfs").With("path", clean).Wrap(err)
		}
		if err := os.WriteFile(target, data, 0o600); err != nil {
			return oops.In("vfs").With("path", clean).Wrap(err)
		}
		return nil
	}

	return oops.In("vfs").With("path", clean).With("scope", string(scope)).Wrap(ErrReadOnly)
}

// cleanPath normalizes a logical path and rejects anything escaping a layer root.
func cleanPath(name string) (string, error) {
	clean := path.Clean("/" + strings.ReplaceAll(name, "\\", "/"))
	clean = strings.TrimPrefix(clean, "/")
	if clean == "" || clean == "." || !fs.ValidPath(clean) || strings.Contains(name, "..") {
		return "", oops.In("vfs").With("path", name).Wrap(ErrInvalidPath)
	}
	return clean, nil
}
