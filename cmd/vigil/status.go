// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/vigil-works/vigil/lib/schema"
	"github.com/vigil-works/vigil/lib/service"
)

// statusResult is the output type for the status command. Running is
// false when the daemon socket did not answer; Daemon is set only when
// it did.
type statusResult struct {
	Running bool                 `json:"running"`
	Socket  string               `json:"socket"`
	Daemon  *schema.DaemonStatus `json:"daemon,omitempty"`
}

type statusParams struct {
	connectFlags
	jsonOutput
}

func statusCommand() *command {
	var params statusParams

	return &command{
		Name:    "status",
		Summary: "Show daemon health and counters",
		Description: `Display operational health of vigil-daemon: uptime, tracked
workspace and subscriber counts, event and sample counters, and
history database statistics.

Exits 1 when the daemon is not running.`,
		Usage: "vigil status [flags]",
		Examples: []example{
			{
				Description: "Check the daemon",
				Command:     "vigil status",
			},
			{
				Description: "JSON output for scripting",
				Command:     "vigil status --json",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("status", pflag.ContinueOnError)
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

			var daemonStatus schema.DaemonStatus
			err = client.Call(ctx, "status", nil, &daemonStatus)
			if errors.Is(err, service.ErrDaemonNotRunning) {
				result := statusResult{Socket: params.socket(cfg)}
				if done, emitErr := params.emitJSON(result); done {
					if emitErr != nil {
						return emitErr
					}
					return &exitError{Code: 1}
				}
				fmt.Printf("vigil-daemon is not running\n")
				fmt.Printf("Socket: %s\n", result.Socket)
				return &exitError{Code: 1}
			}
			if err != nil {
				return err
			}

			result := statusResult{
				Running: true,
				Socket:  params.socket(cfg),
				Daemon:  &daemonStatus,
			}
			if done, err := params.emitJSON(result); done {
				return err
			}

			fmt.Printf("Version:            %s\n", daemonStatus.Version)
			fmt.Printf("PID:                %d\n", daemonStatus.PID)
			fmt.Printf("Uptime:             %s\n", formatUptime(daemonStatus.UptimeSeconds))
			fmt.Printf("Tracked workspaces: %d\n", daemonStatus.TrackedWorkspaces)
			fmt.Printf("Subscribers:        %d\n", daemonStatus.Subscribers)
			fmt.Printf("Events published:   %d\n", daemonStatus.EventsPublished)
			fmt.Printf("Samples recorded:   %d\n", daemonStatus.SamplesRecorded)
			fmt.Printf("Compactions:        %d\n", daemonStatus.CompactionsTriggered)

			fmt.Printf("\nHistory\n")
			fmt.Printf("  Database:   %s\n", daemonStatus.HistoryPath)
			fmt.Printf("  Partitions: %d\n", daemonStatus.HistoryPartitions)
			fmt.Printf("  Samples:    %d\n", daemonStatus.HistorySamples)
			fmt.Printf("  Size:       %s\n", formatBytes(daemonStatus.HistorySizeBytes))
			return nil
		},
	}
}
