// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/vigil-works/vigil/lib/schema"
	"github.com/vigil-works/vigil/monitor"
)

type trackParams struct {
	connectFlags
	jsonOutput
	workspaceID string
}

func trackCommand() *command {
	var params trackParams

	return &command{
		Name:    "track",
		Summary: "Start tracking a workspace in the daemon",
		Description: `Register a workspace with the daemon. The daemon locates the
active session log, starts watching it, and from then on publishes
metric updates, records history samples, and evaluates the
compaction policy for the workspace.

Tracking an already-tracked workspace re-resolves its session and
returns fresh metrics.`,
		Usage: "vigil track [path] [flags]",
		Examples: []example{
			{
				Description: "Track the current workspace",
				Command:     "vigil track",
			},
			{
				Description: "Track another workspace under a short name",
				Command:     "vigil track ~/src/parser --id parser",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("track", pflag.ContinueOnError)
			params.connectFlags.register(flagSet)
			params.jsonOutput.register(flagSet)
			flagSet.StringVar(&params.workspaceID, "id", "", "workspace identifier (default: absolute path)")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			workspaceID, workspacePath, err := resolveWorkspace(args, params.workspaceID)
			if err != nil {
				return err
			}
			cfg, err := params.loadConfig()
			if err != nil {
				return err
			}
			client := params.client(cfg)

			ctx, cancel := callContext(ctx)
			defer cancel()

			var snapshot monitor.Snapshot
			err = client.Call(ctx, "track", map[string]any{
				"workspace_id":   workspaceID,
				"workspace_path": workspacePath,
			}, &snapshot)
			if err != nil {
				return err
			}

			if done, err := params.emitJSON(&snapshot); done {
				return err
			}
			fmt.Printf("Tracking %s\n", snapshot.WorkspaceID)
			if snapshot.LogPath == "" {
				fmt.Printf("No active session log yet; the daemon will pick one up when it appears.\n")
				return nil
			}
			fmt.Printf("Session %s, %s tokens (%s of context)\n",
				snapshot.SessionID,
				formatTokens(snapshot.Context.CurrentTokens),
				formatPercent(snapshot.Context.Percentage))
			return nil
		},
	}
}

func untrackCommand() *command {
	var params trackParams

	return &command{
		Name:    "untrack",
		Summary: "Stop tracking a workspace",
		Description: `Remove a workspace from the daemon's watch set. Recorded history
is kept; only live monitoring stops. Untracking a workspace that is
not tracked is not an error.`,
		Usage: "vigil untrack [path] [flags]",
		Examples: []example{
			{
				Description: "Stop tracking the current workspace",
				Command:     "vigil untrack",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("untrack", pflag.ContinueOnError)
			params.connectFlags.register(flagSet)
			flagSet.StringVar(&params.workspaceID, "id", "", "workspace identifier (default: absolute path)")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			workspaceID, _, err := resolveWorkspace(args, params.workspaceID)
			if err != nil {
				return err
			}
			cfg, err := params.loadConfig()
			if err != nil {
				return err
			}
			client := params.client(cfg)

			ctx, cancel := callContext(ctx)
			defer cancel()

			if err := client.Call(ctx, "untrack", map[string]any{
				"workspace_id": workspaceID,
			}, nil); err != nil {
				return err
			}
			fmt.Printf("Untracked %s\n", workspaceID)
			return nil
		},
	}
}

type listParams struct {
	connectFlags
	jsonOutput
}

func listCommand() *command {
	var params listParams

	return &command{
		Name:    "list",
		Summary: "List tracked workspaces",
		Description: `List every workspace the daemon is tracking, with the latest
observed metrics for each.`,
		Usage: "vigil list [flags]",
		Examples: []example{
			{
				Description: "Tracked workspaces at a glance",
				Command:     "vigil list",
			},
			{
				Description: "JSON output for scripting",
				Command:     "vigil list --json",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
			params.connectFlags.register(flagSet)
			params.jsonOutput.register(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			cfg, err := params.loadConfig()
			if err != nil {
				return err
			}
			client := params.client(cfg)

			ctx, cancel := callContext(ctx)
			defer cancel()

			var workspaces []schema.WorkspaceInfo
			if err := client.Call(ctx, "workspaces", nil, &workspaces); err != nil {
				return err
			}

			if done, err := params.emitJSON(workspaces); done {
				return err
			}

			if len(workspaces) == 0 {
				fmt.Printf("No tracked workspaces. Use 'vigil track' to add one.\n")
				return nil
			}

			home, _ := os.UserHomeDir()
			now := time.Now()
			writer := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintf(writer, "WORKSPACE\tSESSION\tCONTEXT\tPLAN\tLAST EVENT\n")
			for _, workspace := range workspaces {
				contextDisplay := "-"
				if workspace.Context != nil {
					contextDisplay = formatPercent(workspace.Context.Percentage)
				}
				planDisplay := "-"
				if workspace.Usage != nil && workspace.Usage.PlanLimitTokens > 0 {
					planDisplay = formatPercent(workspace.Usage.PercentageOfPlan)
				}
				sessionDisplay := workspace.SessionID
				if sessionDisplay == "" {
					sessionDisplay = "-"
				}
				fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
					shortenPath(workspace.WorkspacePath, home),
					sessionDisplay,
					contextDisplay,
					planDisplay,
					formatAge(workspace.LastEventTime(), now),
				)
			}
			return writer.Flush()
		},
	}
}
