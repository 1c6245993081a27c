// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/holomush/scriptbox/internal/callin"
	"github.com/holomush/scriptbox/internal/capability"
	"github.com/holomush/scriptbox/internal/config"
	"github.com/holomush/scriptbox/internal/event"
	"github.com/holomush/scriptbox/internal/logging"
	"github.com/holomush/scriptbox/internal/sandbox"
	"github.com/holomush/scriptbox/internal/sandbox/hostlib"
	"github.com/holomush/scriptbox/internal/vfs"
	"github.com/holomush/scriptbox/internal/xdg"
)

const serviceName = "scriptbox"

// flagKeys maps sandbox flags to the config keys they override.
var flagKeys = map[string]string{
	"name":          config.KeySandboxName,
	"script":        config.KeyScript,
	"privileged":    config.KeyPrivileged,
	"forbid":        config.KeyForbidCallIns,
	"user-dir":      config.KeyVFSUser,
	"world-dir":     config.KeyVFSWorld,
	"basic-dir":     config.KeyVFSBasic,
	"log-format":    config.KeyLogFormat,
	"log-level":     config.KeyLogLevel,
	"metrics-addr":  config.KeyMetricsAddr,
	"tick-interval": config.KeyTickInterval,
}

// addSandboxFlags registers the flags shared by run and check. Unset flags
// leave the config file value in place.
func addSandboxFlags(flags *pflag.FlagSet) {
	flags.String("name", "", "sandbox name")
	flags.String("script", "", "script path inside the sandbox filesystem")
	flags.Bool("privileged", false, "admit the debug facility")
	flags.String("forbid", "", "call-ins to forbid, separated by commas or spaces")
	flags.String("user-dir", "", "directory backing the user scope (u, U)")
	flags.String("world-dir", "", "directory backing the world scope (w, W)")
	flags.String("basic-dir", "", "directory backing the basic scope (b)")
	flags.String("log-format", "", "log format (json or text)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("metrics-addr", "", "metrics/health HTTP address")
	flags.Duration("tick-interval", 0, "interval between Tick events")
}

// host is one wired sandbox with its collaborators.
type host struct {
	config   *config.Store
	registry *callin.Registry
	events   *event.Dispatcher
	grants   *capability.Enforcer
	manager  *sandbox.Manager
}

// configPath returns the config file to read and whether it may be missing.
func configPath() (string, bool) {
	if configFile != "" {
		return configFile, false
	}
	return xdg.ConfigFile(), true
}

// newHost loads configuration, installs the default logger and wires a
// sandbox manager. Nothing is constructed yet.
func newHost(ctx context.Context, flags *pflag.FlagSet, engine sandbox.Engine) (*host, error) {
	path, optional := configPath()
	store := config.New(config.Options{
		Path:     path,
		Optional: optional,
		Flags:    flags,
		FlagKeys: flagKeys,
	})
	if err := store.Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	level, err := logging.ParseLevel(store.String(config.KeyLogLevel))
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logging.SetDefault(logging.Options{
		Service: serviceName,
		Version: version,
		Format:  store.String(config.KeyLogFormat),
		Level:   level,
	})

	name := store.String(config.KeySandboxName)
	grants := capability.NewEnforcer()
	if err := grants.SetGrants(name, store.Strings(config.KeyGrants)); err != nil {
		return nil, fmt.Errorf("invalid sandbox grants: %w", err)
	}

	registry := callin.Default()
	files := newFiles(store)
	events := event.NewDispatcher(registry.Names())

	manager := sandbox.NewManager(sandbox.Deps{
		Engine:   engine,
		Files:    files,
		Events:   events,
		Config:   store,
		Registry: registry,
		Grants:   grants,
	}, sandbox.Options{
		Name:       name,
		SourcePath: store.String(config.KeyScript),
		Privileged: store.Bool(config.KeyPrivileged),
		Modules:    hostlib.DefaultTable(hostlib.Deps{Files: files, Config: store}),
		ForbidKey:  config.KeyForbidCallIns,
	})

	return &host{
		config:   store,
		registry: registry,
		events:   events,
		grants:   grants,
		manager:  manager,
	}, nil
}

// newFiles builds the layered filesystem from the vfs.* directories.
// An empty directory leaves its mode letters unbacked.
func newFiles(store *config.Store) *vfs.Layered {
	var layers []vfs.Layer
	if dir := store.String(config.KeyVFSUser); dir != "" {
		layers = append(layers,
			vfs.ReadOnlyLayer(vfs.User, os.DirFS(dir)),
			vfs.DirLayer(vfs.UserWrite, dir),
		)
	}
	if dir := store.String(config.KeyVFSWorld); dir != "" {
		layers = append(layers,
			vfs.ReadOnlyLayer(vfs.World, os.DirFS(dir)),
			vfs.DirLayer(vfs.WorldWrite, dir),
		)
	}
	if dir := store.String(config.KeyVFSBasic); dir != "" {
		layers = append(layers, vfs.ReadOnlyLayer(vfs.Basic, os.DirFS(dir)))
	}
	return vfs.New(layers...)
}
