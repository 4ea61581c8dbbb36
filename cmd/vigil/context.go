// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/vigil-works/vigil/lib/config"
	"github.com/vigil-works/vigil/lib/service"
	"github.com/vigil-works/vigil/monitor"
)

type contextParams struct {
	connectFlags
	jsonOutput
	workspaceID string
}

func contextCommand() *command {
	var params contextParams

	return &command{
		Name:    "context",
		Summary: "Show context pressure for a workspace",
		Description: `Display the current session's context metrics for a workspace:
live token count against the model's context limit, message count,
and the estimated prunable share.

The workspace path defaults to the current directory. With a running
daemon the metrics come from its watcher; without one they are
computed in-process from the session log, so this command needs no
daemon.`,
		Usage: "vigil context [path] [flags]",
		Examples: []example{
			{
				Description: "Context pressure for the current workspace",
				Command:     "vigil context",
			},
			{
				Description: "Another workspace, as JSON",
				Command:     "vigil context ~/src/parser --json",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("context", pflag.ContinueOnError)
			params.connectFlags.register(flagSet)
			params.jsonOutput.register(flagSet)
			flagSet.StringVar(&params.workspaceID, "id", "", "workspace identifier (default: absolute path)")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			workspaceID, workspacePath, err := resolveWorkspace(args, params.workspaceID)
			if err != nil {
				return err
			}
			cfg, err := params.loadConfig()
			if err != nil {
				return err
			}

			snapshot, err := fetchSnapshot(ctx, &params.connectFlags, cfg, workspaceID, workspacePath, logger)
			if err != nil {
				return err
			}

			if done, err := params.emitJSON(snapshot); done {
				return err
			}
			printContext(snapshot)
			return nil
		},
	}
}

// fetchSnapshot asks the daemon for a workspace snapshot, falling back
// to in-process computation when the socket is absent. Both paths
// produce the same shape, so callers cannot tell the difference.
func fetchSnapshot(ctx context.Context, flags *connectFlags, cfg *config.Config, workspaceID, workspacePath string, logger *slog.Logger) (*monitor.Snapshot, error) {
	client := flags.client(cfg)

	callCtx, cancel := callContext(ctx)
	defer cancel()

	var snapshot monitor.Snapshot
	err := client.Call(callCtx, "context", map[string]any{
		"workspace_id":   workspaceID,
		"workspace_path": workspacePath,
	}, &snapshot)
	if err == nil {
		return &snapshot, nil
	}
	if !errors.Is(err, service.ErrDaemonNotRunning) {
		return nil, err
	}
	return localSnapshot(cfg, workspaceID, workspacePath, logger)
}

func printContext(snapshot *monitor.Snapshot) {
	fmt.Printf("Workspace: %s\n", snapshot.WorkspacePath)
	if snapshot.LogPath == "" {
		fmt.Printf("\nNo active session log found.\n")
		return
	}
	metrics := snapshot.Context

	fmt.Printf("Session:   %s\n", snapshot.SessionID)
	if metrics.Model != "" {
		fmt.Printf("Model:     %s\n", metrics.Model)
	}
	fmt.Printf("Context:   %s / %s tokens (%s)\n",
		formatTokens(metrics.CurrentTokens),
		formatTokens(metrics.LimitTokens),
		formatPercent(metrics.Percentage))
	fmt.Printf("Messages:  %d\n", metrics.MessageCount)
	if metrics.PrunableTokensEstimate > 0 {
		fmt.Printf("Prunable:  ~%s tokens\n", formatTokens(metrics.PrunableTokensEstimate))
	}
	if !metrics.LastCompactTimestamp.IsZero() {
		fmt.Printf("Last compaction: %s\n", formatTimestamp(metrics.LastCompactTimestamp.UnixNano()))
	}
	if metrics.ShouldCompact {
		fmt.Printf("\nCompaction recommended: run 'vigil compact'.\n")
	}
}
