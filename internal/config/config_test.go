// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/holomush/scriptbox/internal/config"
)

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestStore_DefaultsWithoutFile(t *testing.T) {
	s := config.New(config.Options{})
	require.NoError(t, s.Load(context.Background()))

	assert.Equal(t, "LuaUser", s.String(config.KeySandboxName))
	assert.Equal(t, "bzUser.lua", s.String(config.KeyScript))
	assert.False(t, s.Bool(config.KeyPrivileged))
	assert.Equal(t, "", s.String(config.KeyForbidCallIns))
	assert.Equal(t, []string{"lib.**"}, s.Strings(config.KeyGrants))
	assert.Equal(t, time.Second, s.Duration(config.KeyTickInterval))
}

func TestStore_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, `
sandbox:
  script: main.lua
  privileged: true
  forbid_callins: "Tick, Explosion"
log:
  format: text
`)

	s := config.New(config.Options{Path: path})
	require.NoError(t, s.Load(context.Background()))

	assert.Equal(t, "main.lua", s.String(config.KeyScript))
	assert.True(t, s.Bool(config.KeyPrivileged))
	assert.Equal(t, "Tick, Explosion", s.String(config.KeyForbidCallIns))
	assert.Equal(t, "text", s.String(config.KeyLogFormat))
	assert.Equal(t, "LuaUser", s.String(config.KeySandboxName), "unset keys keep defaults")
}

func TestStore_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "sandbox:\n  script: from-file.lua\n  name: FileName\n")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("script", "flag-default.lua", "")
	flags.String("name", "FlagName", "")
	flags.Bool("unmapped", false, "")
	require.NoError(t, flags.Parse([]string{"--script", "from-flag.lua"}))

	s := config.New(config.Options{
		Path:     path,
		Flags:    flags,
		FlagKeys: map[string]string{"script": config.KeyScript, "name": config.KeySandboxName},
	})
	require.NoError(t, s.Load(context.Background()))

	assert.Equal(t, "from-flag.lua", s.String(config.KeyScript), "changed flag wins")
	assert.Equal(t, "FileName", s.String(config.KeySandboxName), "unchanged flag does not override")
	assert.False(t, s.Exists("unmapped"))
}

func TestStore_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")

	err := config.New(config.Options{Path: path}).Load(context.Background())
	assert.Error(t, err)

	err = config.New(config.Options{Path: path, Optional: true}).Load(context.Background())
	assert.NoError(t, err)
}

func TestStore_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "bad log format", content: "log:\n  format: xml\n"},
		{name: "empty script", content: "sandbox:\n  script: \"\"\n"},
		{name: "negative tick", content: "sandbox:\n  tick_interval: -1s\n"},
		{name: "malformed yaml", content: "sandbox: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			writeConfig(t, path, tt.content)
			assert.Error(t, config.New(config.Options{Path: path}).Load(context.Background()))
		})
	}
}

func TestStore_ReloadKeepsPreviousValuesOnFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "sandbox:\n  forbid_callins: Tick\n")

	s := config.New(config.Options{Path: path, ReloadRetries: 1, ReloadDelay: time.Millisecond})
	require.NoError(t, s.Load(context.Background()))

	writeConfig(t, path, "sandbox: [\n")
	require.Error(t, s.Reload(context.Background()))
	assert.Equal(t, "Tick", s.String(config.KeyForbidCallIns))

	writeConfig(t, path, "sandbox:\n  forbid_callins: Explosion\n")
	require.NoError(t, s.Reload(context.Background()))
	assert.Equal(t, "Explosion", s.String(config.KeyForbidCallIns))
}

func TestStore_WatchReloadsOnChange(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "sandbox:\n  forbid_callins: Tick\n")

	s := config.New(config.Options{Path: path, ReloadDelay: 10 * time.Millisecond})
	require.NoError(t, s.Load(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	changed := make(chan string, 16)
	require.NoError(t, s.Watch(ctx, func(context.Context) {
		select {
		case changed <- s.String(config.KeyForbidCallIns):
		default:
		}
	}))
	assert.Error(t, s.Watch(ctx, nil), "second watch is rejected")

	writeConfig(t, path, "sandbox:\n  forbid_callins: Explosion\n")

	// A write may surface as several events (truncate, then write).
	deadline := time.After(5 * time.Second)
	for seen := false; !seen; {
		select {
		case got := <-changed:
			seen = got == "Explosion"
		case <-deadline:
			t.Fatal("config change was not observed")
		}
	}

	cancel()
	s.StopWatching()
}

func TestStore_WatchWithoutFile(t *testing.T) {
	s := config.New(config.Options{})
	assert.Error(t, s.Watch(context.Background(), nil))
}
