// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config is the process-wide key/value configuration store.
//
// Values come from built-in defaults, an optional YAML file and command-line
// flags, in increasing precedence. Readers always see a complete snapshot:
// a reload builds a new koanf instance and swaps it in atomically.
package config

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"github.com/spf13/pflag"

	"github.com/holomush/scriptbox/internal/capability"
	"github.com/holomush/scriptbox/internal/xdg"
	"github.com/holomush/scriptbox/pkg/errutil"
)

// Configuration keys.
const (
	KeySandboxName   = "sandbox.name"
	KeyScript        = "sandbox.script"
	KeyPrivileged    = "sandbox.privileged"
	KeyForbidCallIns = "sandbox.forbid_callins"
	KeyGrants        = "sandbox.grants"
	KeyTickInterval  = "sandbox.tick_interval"
	KeyVFSUser       = "vfs.user"
	KeyVFSWorld      = "vfs.world"
	KeyVFSBasic      = "vfs.basic"
	KeyLogFormat     = "log.format"
	KeyLogLevel      = "log.level"
	KeyMetricsAddr   = "metrics.addr"
)

const delim = "."

// Defaults returns the built-in configuration values.
func Defaults() map[string]any {
	return map[string]any{
		KeySandboxName:   "LuaUser",
		KeyScript:        "bzUser.lua",
		KeyPrivileged:    false,
		KeyForbidCallIns: "",
		KeyGrants:        capability.DefaultGrants,
		KeyTickInterval:  "1s",
		KeyVFSUser:       xdg.UserScriptDir(),
		KeyVFSWorld:      xdg.WorldScriptDir(),
		KeyVFSBasic:      "",
		KeyLogFormat:     "json",
		KeyLogLevel:      "info",
		KeyMetricsAddr:   "127.0.0.1:9100",
	}
}

// Options configures a Store.
type Options struct {
	// Path is the YAML config file. Empty disables file loading.
	Path string
	// Optional tolerates a missing file at Path.
	Optional bool
	// Flags, if set, override file values. FlagKeys maps flag names to
	// config keys; flags without an entry are ignored.
	Flags    *pflag.FlagSet
	FlagKeys map[string]string
	// ReloadRetries bounds how often a failed reload is retried.
	ReloadRetries uint64
	// ReloadDelay is the pause between reload attempts.
	ReloadDelay time.Duration
}

// Store serves configuration snapshots.
type Store struct {
	opts    Options
	current atomic.Pointer[koanf.Koanf]
	watcher *file.File
	mu      sync.Mutex
}

// New creates a store. Call Load before reading values.
func New(opts Options) *Store {
	if opts.ReloadRetries == 0 {
		opts.ReloadRetries = 3
	}
	if opts.ReloadDelay == 0 {
		opts.ReloadDelay = 100 * time.Millisecond
	}
	s := &Store{opts: opts}
	s.current.Store(koanf.New(delim))
	return s
}

// Load reads every source once.
func (s *Store) Load(_ context.Context) error {
	ko, err := s.build()
	if err != nil {
		return err
	}
	s.current.Store(ko)
	return nil
}

// Reload reads every source again, retrying while the file is unreadable
// (editors commonly truncate before writing).
func (s *Store) Reload(ctx context.Context) error {
	backoff := retry.WithMaxRetries(s.opts.ReloadRetries, retry.NewConstant(s.opts.ReloadDelay))
	ko, err := retry.DoValue(ctx, backoff, func(_ context.Context) (*koanf.Koanf, error) {
		ko, err := s.build()
		if err != nil {
			return nil, retry.RetryableError(err)
		}
		return ko, nil
	})
	if err != nil {
		return oops.In("config").With("path", s.opts.Path).Hint("reload failed, keeping previous values").Wrap(err)
	}
	s.current.Store(ko)
	return nil
}

func (s *Store) build() (*koanf.Koanf, error) {
	ko := koanf.New(delim)
	for key, val := range Defaults() {
		if err := ko.Set(key, val); err != nil {
			return nil, oops.In("config").With("key", key).Wrap(err)
		}
	}

	if s.opts.Path != "" {
		_, statErr := os.Stat(s.opts.Path)
		switch {
		case statErr == nil:
			if err := ko.Load(file.Provider(s.opts.Path), yaml.Parser()); err != nil {
				return nil, oops.In("config").With("path", s.opts.Path).Hint("invalid config file").Wrap(err)
			}
		case errors.Is(statErr, fs.ErrNotExist) && s.opts.Optional:
			slog.Debug("config file not found, using defaults", "path", s.opts.Path)
		default:
			return nil, oops.In("config").With("path", s.opts.Path).Wrap(statErr)
		}
	}

	if s.opts.Flags != nil {
		provider := posflag.ProviderWithFlag(s.opts.Flags, delim, ko, func(f *pflag.Flag) (string, any) {
			key, ok := s.opts.FlagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(s.opts.Flags, f)
		})
		if err := ko.Load(provider, nil); err != nil {
			return nil, oops.In("config").Hint("invalid flags").Wrap(err)
		}
	}

	if err := validate(ko); err != nil {
		return nil, err
	}
	return ko, nil
}

func validate(ko *koanf.Koanf) error {
	if f := ko.String(KeyLogFormat); f != "json" && f != "text" {
		return oops.In("config").With("key", KeyLogFormat).Errorf("log.format must be 'json' or 'text', got %q", f)
	}
	if ko.String(KeyScript) == "" {
		return oops.In("config").With("key", KeyScript).Errorf("sandbox.script is required")
	}
	if ko.String(KeySandboxName) == "" {
		return oops.In("config").With("key", KeySandboxName).Errorf("sandbox.name is required")
	}
	if d := ko.Duration(KeyTickInterval); d <= 0 {
		return oops.In("config").With("key", KeyTickInterval).Errorf("sandbox.tick_interval must be positive")
	}
	return nil
}

// Watch reloads the store whenever the config file changes and then calls
// onChange. It returns immediately; watching stops when ctx is done.
func (s *Store) Watch(ctx context.Context, onChange func(ctx context.Context)) error {
	if s.opts.Path == "" {
		return oops.In("config").Errorf("no config file to watch")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher != nil {
		return oops.In("config").With("path", s.opts.Path).Errorf("already watching")
	}

	w := file.Provider(s.opts.Path)
	err := w.Watch(func(_ any, err error) {
		if err != nil {
			errutil.LogWarn(slog.Default(), "config watch stopped", err)
			return
		}
		if err := s.Reload(ctx); err != nil {
			errutil.LogError(slog.Default(), "config reload failed", err)
			return
		}
		slog.Info("configuration reloaded", "path", s.opts.Path)
		if onChange != nil {
			onChange(ctx)
		}
	})
	if err != nil {
		return oops.In("config").With("path", s.opts.Path).Wrap(err)
	}
	s.watcher = w

	go func() {
		<-ctx.Done()
		s.StopWatching()
	}()
	return nil
}

// StopWatching ends a Watch. Safe to call when not watching.
func (s *Store) StopWatching() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher == nil {
		return
	}
	if err := s.watcher.Unwatch(); err != nil {
		slog.Debug("config unwatch failed", "error", err)
	}
	s.watcher = nil
}

// String returns the string value of key, or "".
func (s *Store) String(key string) string { return s.current.Load().String(key) }

// Bool returns the boolean value of key.
func (s *Store) Bool(key string) bool { return s.current.Load().Bool(key) }

// Strings returns the string slice value of key.
func (s *Store) Strings(key string) []string { return s.current.Load().Strings(key) }

// Duration returns the duration value of key.
func (s *Store) Duration(key string) time.Duration { return s.current.Load().Duration(key) }

// Exists reports whether key has a value.
func (s *Store) Exists(key string) bool { return s.current.Load().Exists(key) }
