// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/holomush/scriptbox/internal/sandbox"
)

// newCheckCmd creates the check subcommand.
func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Load the sandbox once and report its call-ins",
		Long: `Construct the sandbox, print every valid call-in with whether the
script subscribed to it, then tear the sandbox down. Exits non-zero when the
sandbox cannot be constructed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd.Context(), cmd)
		},
	}

	addSandboxFlags(cmd.Flags())

	return cmd
}

// runCheck executes the check command.
func runCheck(ctx context.Context, cmd *cobra.Command) error {
	h, err := newHost(ctx, cmd.Flags(), nil)
	if err != nil {
		return err
	}

	inst, err := h.manager.Load(ctx)
	if err != nil {
		return fmt.Errorf("sandbox %s failed to load: %w", h.manager.Name(), err)
	}
	defer h.manager.Free(ctx)

	cmd.Printf("Sandbox %s is %s (privileged: %t)\n", inst.Name(), inst.State(), inst.Privileged())
	cmd.Print(formatCheckTable(h, inst))
	return nil
}

// formatCheckTable lists the valid call-ins and their subscription state.
func formatCheckTable(h *host, inst *sandbox.Instance) string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "CODE\tCALL-IN\tSUBSCRIBED")
	for _, code := range inst.ValidCallIns() {
		name := h.registry.Name(code)
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\n", code, name, yesNo(h.events.Subscribed(inst, name)))
	}
	_ = w.Flush()

	return buf.String()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
