// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the scriptbox CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scriptbox",
		Short: "scriptbox - a sandboxed Lua script host",
		Long: `scriptbox runs one user script inside a restricted Lua sandbox.
The script registers call-ins that the host invokes on events; call-ins can be
forbidden by configuration while the sandbox runs.`,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/scriptbox/config.yaml)")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newCallInsCmd())

	return cmd
}
