// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/vigil-works/vigil/lib/archive"
	"github.com/vigil-works/vigil/lib/schema"
)

type historyParams struct {
	connectFlags
	jsonOutput
	workspaceID   string
	archivePath   string
	since         string
	until         string
	limit         int
	allWorkspaces bool
}

func historyCommand() *command {
	var params historyParams

	return &command{
		Name:    "history",
		Summary: "Show recorded usage history",
		Description: `List usage samples recorded by the daemon: context size, window
totals, and burn rate over time, oldest first.

By default the listing is filtered to one workspace (the current
directory); --all lists every workspace. Time bounds accept Go
durations (1h, 30m), day suffixes (7d), or timestamps (RFC3339 or
YYYY-MM-DD).

With --archive, samples are read from an export file instead of the
daemon, so archives remain inspectable after the history they came
from has been retention-pruned.`,
		Usage: "vigil history [path] [flags]",
		Examples: []example{
			{
				Description: "Samples for the current workspace over two days",
				Command:     "vigil history --since 2d",
			},
			{
				Description: "Everything the daemon recorded in the last hour",
				Command:     "vigil history --all --since 1h",
			},
			{
				Description: "Inspect an export archive",
				Command:     "vigil history --archive week.vigil",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("history", pflag.ContinueOnError)
			params.connectFlags.register(flagSet)
			params.jsonOutput.register(flagSet)
			flagSet.StringVar(&params.workspaceID, "id", "", "workspace identifier (default: absolute path)")
			flagSet.StringVar(&params.archivePath, "archive", "", "read samples from an export archive instead of the daemon")
			flagSet.StringVar(&params.since, "since", "", "start of time range (duration or timestamp)")
			flagSet.StringVar(&params.until, "until", "", "end of time range (duration or timestamp)")
			flagSet.IntVar(&params.limit, "limit", 0, "maximum number of samples (default: daemon's cap)")
			flagSet.BoolVar(&params.allWorkspaces, "all", false, "include all workspaces")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			fromNanos, err := parseTimeFlag(params.since)
			if err != nil {
				return fmt.Errorf("--since: %w", err)
			}
			toNanos, err := parseTimeFlag(params.until)
			if err != nil {
				return fmt.Errorf("--until: %w", err)
			}

			workspaceID := ""
			if !params.allWorkspaces {
				workspaceID, _, err = resolveWorkspace(args, params.workspaceID)
				if err != nil {
					return err
				}
			}

			if params.archivePath != "" {
				return runArchiveHistory(&params, workspaceID, fromNanos, toNanos, logger)
			}

			cfg, err := params.loadConfig()
			if err != nil {
				return err
			}
			client := params.client(cfg)

			ctx, cancel := callContext(ctx)
			defer cancel()

			var samples []schema.UsageSample
			err = client.Call(ctx, "history", map[string]any{
				"workspace_id": workspaceID,
				"from_nanos":   fromNanos,
				"to_nanos":     toNanos,
				"limit":        params.limit,
			}, &samples)
			if err != nil {
				return err
			}

			if done, err := params.emitJSON(samples); done {
				return err
			}
			printSamples(samples, params.allWorkspaces, logger)
			return nil
		},
	}
}

// runArchiveHistory lists samples from an export archive. The time and
// workspace filters still apply, client-side; the archive's own header
// records what it was exported with.
func runArchiveHistory(params *historyParams, workspaceID string, fromNanos, toNanos int64, logger *slog.Logger) error {
	arch, compression, err := archive.ReadFile(params.archivePath)
	if err != nil {
		return err
	}

	samples := filterSamples(arch.Samples, workspaceID, fromNanos, toNanos, params.limit)

	if done, err := params.emitJSON(samples); done {
		return err
	}

	fmt.Printf("Archive:     %s (%s)\n", params.archivePath, compression)
	if arch.WorkspaceID != "" {
		fmt.Printf("Exported:    %s, workspace %s\n", formatTimestamp(arch.CreatedAt), arch.WorkspaceID)
	} else {
		fmt.Printf("Exported:    %s, all workspaces\n", formatTimestamp(arch.CreatedAt))
	}
	fmt.Printf("Range:       %s to %s\n", formatTimestamp(arch.From), formatTimestamp(arch.To))
	fmt.Printf("\n")
	printSamples(samples, params.allWorkspaces || arch.WorkspaceID == "", logger)
	return nil
}

// filterSamples applies workspace, range, and limit filters to archive
// samples. The daemon applies the same filters server-side for live
// queries.
func filterSamples(samples []schema.UsageSample, workspaceID string, fromNanos, toNanos int64, limit int) []schema.UsageSample {
	filtered := make([]schema.UsageSample, 0, len(samples))
	for _, sample := range samples {
		if workspaceID != "" && sample.WorkspaceID != workspaceID {
			continue
		}
		if fromNanos != 0 && sample.Timestamp < fromNanos {
			continue
		}
		if toNanos != 0 && sample.Timestamp > toNanos {
			continue
		}
		filtered = append(filtered, sample)
	}
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered
}

func printSamples(samples []schema.UsageSample, showWorkspace bool, logger *slog.Logger) {
	if len(samples) == 0 {
		logger.Info("no samples found")
		return
	}

	home, _ := os.UserHomeDir()
	writer := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
	if showWorkspace {
		fmt.Fprintf(writer, "TIMESTAMP\tWORKSPACE\tTOKENS\tCONTEXT\tWINDOW\tPLAN\tBURN/H\n")
	} else {
		fmt.Fprintf(writer, "TIMESTAMP\tTOKENS\tCONTEXT\tWINDOW\tPLAN\tBURN/H\n")
	}
	for _, sample := range samples {
		planDisplay := "-"
		if sample.PlanPercent > 0 {
			planDisplay = formatPercent(sample.PlanPercent)
		}
		if showWorkspace {
			fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				formatTimestamp(sample.Timestamp),
				shortenPath(sample.WorkspaceID, home),
				formatTokens(sample.CurrentTokens),
				formatPercent(sample.ContextPercent),
				formatTokens(sample.WindowTokens),
				planDisplay,
				formatTokens(uint64(sample.BurnRatePerHour)),
			)
		} else {
			fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\n",
				formatTimestamp(sample.Timestamp),
				formatTokens(sample.CurrentTokens),
				formatPercent(sample.ContextPercent),
				formatTokens(sample.WindowTokens),
				planDisplay,
				formatTokens(uint64(sample.BurnRatePerHour)),
			)
		}
	}
	writer.Flush()
}
