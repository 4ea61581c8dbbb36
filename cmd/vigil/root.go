// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"

	"github.com/vigil-works/vigil/lib/version"
)

// root builds the complete vigil command tree.
func root() *command {
	return &command{
		Name: "vigil",
		Description: `Vigil: context monitoring for Claude Code workspaces.

Track context pressure, rolling plan-window usage, and burn rate for
active coding sessions. Daemon-backed commands need a running
vigil-daemon; context and usage also work standalone.`,
		Subcommands: []*command{
			statusCommand(),
			contextCommand(),
			usageCommand(),
			trackCommand(),
			untrackCommand(),
			listCommand(),
			historyCommand(),
			exportCommand(),
			compactCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(_ context.Context, args []string, _ *slog.Logger) error {
					version.Print("vigil")
					return nil
				},
			},
		},
		Examples: []example{
			{
				Description: "Check daemon health",
				Command:     "vigil status",
			},
			{
				Description: "Inspect the current workspace's context pressure",
				Command:     "vigil context",
			},
			{
				Description: "Plan-window usage for another workspace",
				Command:     "vigil usage ~/src/parser",
			},
			{
				Description: "Track the current workspace in the daemon",
				Command:     "vigil track",
			},
			{
				Description: "Usage history for the last two days",
				Command:     "vigil history --since 2d",
			},
			{
				Description: "Export a week of history to a compressed archive",
				Command:     "vigil export --from 7d --out week.vigil --compress zstd",
			},
		},
	}
}
