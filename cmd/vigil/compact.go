// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/pflag"

	"github.com/vigil-works/vigil/lib/schema"
)

// compactTimeout bounds the whole request. The daemon runs the
// summarizer synchronously for manual compaction, and a full
// transcript summary can take minutes.
const compactTimeout = 6 * time.Minute

type compactParams struct {
	connectFlags
	jsonOutput
	workspaceID string
}

func compactCommand() *command {
	var params compactParams

	return &command{
		Name:    "compact",
		Summary: "Ask the daemon to compact a workspace's session",
		Description: `Evaluate the compaction policy for a tracked workspace and, when
it fires, run the summarizer and print the produced summary. The
policy's cooldown applies: a recently compacted session reports a
"none" decision instead of compacting again.

The workspace must already be tracked (see 'vigil track').`,
		Usage: "vigil compact [path] [flags]",
		Examples: []example{
			{
				Description: "Compact the current workspace's session",
				Command:     "vigil compact",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("compact", pflag.ContinueOnError)
			params.connectFlags.register(flagSet)
			params.jsonOutput.register(flagSet)
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

			ctx, cancel := context.WithTimeout(ctx, compactTimeout)
			defer cancel()

			var result schema.CompactResult
			err = client.Call(ctx, "compact", map[string]any{
				"workspace_id": workspaceID,
			}, &result)
			if err != nil {
				return err
			}

			if done, err := params.emitJSON(result); done {
				return err
			}

			fmt.Printf("Decision: %s\n", result.Decision)
			if result.Error != "" {
				fmt.Printf("Error:    %s\n", result.Error)
				return &exitError{Code: 1}
			}
			if !result.Triggered {
				return nil
			}
			fmt.Printf("\n%s\n", result.Summary)
			return nil
		},
	}
}
