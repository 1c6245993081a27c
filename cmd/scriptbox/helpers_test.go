// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// useConfigFile points the global --config value at path for one test.
func useConfigFile(t *testing.T, path string) {
	t.Helper()
	prev := configFile
	configFile = path
	t.Cleanup(func() { configFile = prev })
}

// keepDefaultLogger restores slog's default logger after a test that
// installs its own through newHost.
func keepDefaultLogger(t *testing.T) {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
}

// sandboxDirs creates the user and world directories and writes script
// into the user directory as main.lua.
type sandboxDirs struct {
	user  string
	world string
}

func newSandboxDirs(t *testing.T, script string) sandboxDirs {
	t.Helper()
	d := sandboxDirs{user: t.TempDir(), world: t.TempDir()}
	if script != "" {
		require.NoError(t, os.WriteFile(filepath.Join(d.user, "main.lua"), []byte(script), 0o600))
	}
	return d
}

func (d sandboxDirs) read(t *testing.T, name string) (string, bool) {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(d.user, name))
	if err != nil {
		return "", false
	}
	return string(data), true
}

// writeConfig writes a YAML config for dirs plus extra sandbox settings.
func writeConfig(t *testing.T, path string, d sandboxDirs, extra map[string]string) {
	t.Helper()
	var b strings.Builder
	b.WriteString("sandbox:\n  script: main.lua\n  tick_interval: 10ms\n")
	for k, v := range extra {
		fmt.Fprintf(&b, "  %s: %q\n", k, v)
	}
	fmt.Fprintf(&b, "vfs:\n  user: %q\n  world: %q\n", d.user, d.world)
	b.WriteString("log:\n  format: text\n  level: error\n")
	b.WriteString("metrics:\n  addr: \"127.0.0.1:0\"\n")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))
}
