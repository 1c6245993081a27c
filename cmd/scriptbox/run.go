// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/holomush/scriptbox/internal/config"
	"github.com/holomush/scriptbox/internal/event"
	"github.com/holomush/scriptbox/internal/observability"
)

// tickEvent is dispatched on every tick interval.
const tickEvent = "Tick"

const shutdownTimeout = 5 * time.Second

// newRunCmd creates the run subcommand.
func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the sandbox until interrupted",
		Long: `Construct the sandbox, start the metrics server and dispatch Tick
events until SIGINT or SIGTERM. Config file changes re-apply the forbidden
call-in list. On shutdown the script's Shutdown call-in runs.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWithDeps(cmd.Context(), cmd, nil)
		},
	}

	addSandboxFlags(cmd.Flags())

	return cmd
}

// runWithDeps runs the sandbox with injectable dependencies.
// If deps is nil, default implementations are used.
func runWithDeps(ctx context.Context, cmd *cobra.Command, deps *RunDeps) error {
	if deps == nil {
		deps = &RunDeps{}
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}

	h, err := newHost(ctx, cmd.Flags(), deps.Engine)
	if err != nil {
		return err
	}

	slog.Info("starting sandbox host",
		"sandbox", h.manager.Name(),
		"script", h.config.String(config.KeyScript),
		"privileged", h.config.Bool(config.KeyPrivileged),
	)

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var obsServer ObservabilityServer
	if addr := h.config.String(config.KeyMetricsAddr); addr != "" {
		obsServer = deps.ObservabilityServerFactory(addr, h.manager.Active)
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return fmt.Errorf("failed to start observability server: %w", err)
		}
		// Monitor observability server errors - cancel context on error
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		slog.Info("observability server started", "addr", obsServer.Addr())
	}

	inst, err := h.manager.Load(ctx)
	if err != nil {
		stopServer(obsServer)
		return fmt.Errorf("failed to load sandbox: %w", err)
	}

	if err := h.config.Watch(ctx, func(ctx context.Context) {
		h.manager.ForbidCallIns(ctx)
	}); err != nil {
		slog.Warn("config file is not watched", "error", err)
	}
	defer h.config.StopWatching()

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	ticker := time.NewTicker(h.config.Duration(config.KeyTickInterval))
	defer ticker.Stop()

	cmd.Println("Sandbox started")
	slog.Info("sandbox host ready",
		"sandbox", inst.Name(),
		"id", inst.ID().String(),
		"callins", inst.CallIns(),
	)

	waitForShutdown(ctx, sigChan, ticker.C, func() {
		h.events.Dispatch(ctx, event.Event{Name: tickEvent})
	})

	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	h.manager.Free(shutdownCtx)
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			slog.Warn("error stopping observability server", "error", err)
		}
	}

	slog.Info("shutdown complete")
	return nil
}

// waitForShutdown calls tick on every tick until a signal arrives or ctx
// is done.
func waitForShutdown(ctx context.Context, sigChan <-chan os.Signal, ticks <-chan time.Time, tick func()) {
	for {
		select {
		case <-ticks:
			tick()
		case sig := <-sigChan:
			slog.Info("received shutdown signal", "signal", sig)
			return
		case <-ctx.Done():
			slog.Info("context cancelled, shutting down")
			return
		}
	}
}

func stopServer(s ObservabilityServer) {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		slog.Warn("failed to stop observability server during cleanup", "error", err)
	}
}

// monitorServerErrors watches a server's error channel and cancels the context
// if an error occurs. This ensures the process shuts down if a critical server fails.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			// Channel closed, server stopped gracefully
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
		// Context cancelled, exit monitoring
	}
}
