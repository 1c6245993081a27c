// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/holomush/scriptbox/internal/callin"
)

// CallInInfo describes one registry entry.
type CallInInfo struct {
	Code    int      `json:"code"`
	Name    string   `json:"name"`
	Aliases []string `json:"aliases,omitempty"`
}

// callInsConfig holds configuration for the callins command.
type callInsConfig struct {
	jsonOutput bool
}

// newCallInsCmd creates the callins subcommand.
func newCallInsCmd() *cobra.Command {
	cfg := &callInsConfig{}

	cmd := &cobra.Command{
		Use:   "callins",
		Short: "List the call-in registry",
		Long:  `List every call-in a script may register, with its code and aliases.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCallIns(cmd, cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output call-ins as JSON")

	return cmd
}

// runCallIns executes the callins command.
func runCallIns(cmd *cobra.Command, cfg *callInsConfig) error {
	registry := callin.Default()
	infos := listCallIns(registry)

	if cfg.jsonOutput {
		output, err := formatCallInsJSON(infos)
		if err != nil {
			return fmt.Errorf("failed to format JSON: %w", err)
		}
		cmd.Println(output)
		return nil
	}

	cmd.Printf("Call-in registry version %s\n", registry.Version())
	cmd.Print(formatCallInsTable(infos))
	return nil
}

func listCallIns(registry *callin.Registry) []CallInInfo {
	codes := registry.Codes()
	infos := make([]CallInInfo, 0, len(codes))
	for _, code := range codes {
		name := registry.Name(code)
		infos = append(infos, CallInInfo{
			Code:    int(code),
			Name:    name,
			Aliases: registry.Aliases(name),
		})
	}
	return infos
}

func formatCallInsJSON(infos []CallInInfo) (string, error) {
	data, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func formatCallInsTable(infos []CallInInfo) string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "CODE\tCALL-IN\tALIASES")
	for _, info := range infos {
		aliases := "-"
		if len(info.Aliases) > 0 {
			aliases = strings.Join(info.Aliases, ",")
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\n", info.Code, info.Name, aliases)
	}
	_ = w.Flush()

	return buf.String()
}
