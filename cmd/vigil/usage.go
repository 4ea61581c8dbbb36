// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/pflag"

	"github.com/vigil-works/vigil/lib/clock"
	"github.com/vigil-works/vigil/lib/config"
	"github.com/vigil-works/vigil/lib/contextmeter"
	"github.com/vigil-works/vigil/lib/service"
	"github.com/vigil-works/vigil/lib/sessionlog"
)

type usageParams struct {
	connectFlags
	jsonOutput
	windowHours int
}

func usageCommand() *command {
	var params usageParams

	return &command{
		Name:    "usage",
		Summary: "Show rolling plan-window usage for a workspace",
		Description: `Display cumulative token usage inside the rolling plan window:
input and output totals, percentage of the plan tier's budget, burn
rate, and the estimated time until the budget is exhausted at the
current rate.

The workspace path defaults to the current directory. Works with or
without a running daemon.`,
		Usage: "vigil usage [path] [flags]",
		Examples: []example{
			{
				Description: "Plan-window usage for the current workspace",
				Command:     "vigil usage",
			},
			{
				Description: "A one-hour window instead of the plan window",
				Command:     "vigil usage --window 1",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("usage", pflag.ContinueOnError)
			params.connectFlags.register(flagSet)
			params.jsonOutput.register(flagSet)
			flagSet.IntVar(&params.windowHours, "window", 0, "rolling window in hours (default: plan window from config)")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			_, workspacePath, err := resolveWorkspace(args, "")
			if err != nil {
				return err
			}
			cfg, err := params.loadConfig()
			if err != nil {
				return err
			}

			window := cfg.PlanWindow()
			if params.windowHours > 0 {
				window = time.Duration(params.windowHours) * time.Hour
			}

			metrics, err := fetchUsage(ctx, &params.connectFlags, cfg, workspacePath, params.windowHours, logger)
			if err != nil {
				return err
			}

			if done, err := params.emitJSON(metrics); done {
				return err
			}
			printUsage(workspacePath, window, metrics)
			return nil
		},
	}
}

// fetchUsage asks the daemon for window metrics, computing them
// in-process when the socket is absent.
func fetchUsage(ctx context.Context, flags *connectFlags, cfg *config.Config, workspacePath string, windowHours int, logger *slog.Logger) (contextmeter.UsageWindowMetrics, error) {
	client := flags.client(cfg)

	callCtx, cancel := callContext(ctx)
	defer cancel()

	var metrics contextmeter.UsageWindowMetrics
	err := client.Call(callCtx, "usage", map[string]any{
		"workspace_path": workspacePath,
		"window_hours":   windowHours,
	}, &metrics)
	if err == nil {
		return metrics, nil
	}
	if !errors.Is(err, service.ErrDaemonNotRunning) {
		return contextmeter.UsageWindowMetrics{}, err
	}

	window := cfg.PlanWindow()
	if windowHours > 0 {
		window = time.Duration(windowHours) * time.Hour
	}
	return localUsage(cfg, workspacePath, window, logger)
}

// localUsage computes window metrics without the daemon. A workspace
// with no session log yields zero metrics, same as an empty log.
func localUsage(cfg *config.Config, workspacePath string, window time.Duration, logger *slog.Logger) (contextmeter.UsageWindowMetrics, error) {
	directory := sessionlog.SessionDirectory(cfg.Paths.ProjectsRoot, workspacePath)
	logPath, err := sessionlog.FindActiveLog(directory, logger)
	if err != nil {
		return contextmeter.UsageWindowMetrics{}, err
	}
	if logPath == "" {
		return contextmeter.UsageWindowMetrics{}, nil
	}
	calc := contextmeter.New(cfg, clock.Real(), logger)
	return calc.UsageWindow(logPath, window)
}

func printUsage(workspacePath string, window time.Duration, metrics contextmeter.UsageWindowMetrics) {
	fmt.Printf("Workspace:  %s\n", workspacePath)
	fmt.Printf("Window:     %dh\n", int(window/time.Hour))
	if metrics.PlanName != "" {
		fmt.Printf("Plan:       %s\n", metrics.PlanName)
	}
	fmt.Printf("Tokens:     in %s / out %s / total %s\n",
		formatTokens(metrics.InputTokens),
		formatTokens(metrics.OutputTokens),
		formatTokens(metrics.TotalTokens))
	if metrics.PlanLimitTokens > 0 {
		fmt.Printf("Plan usage: %s of %s tokens\n",
			formatPercent(metrics.PercentageOfPlan),
			formatTokens(metrics.PlanLimitTokens))
	}
	fmt.Printf("Burn rate:  %s tokens/h\n", formatTokens(uint64(metrics.BurnRatePerHour)))
	if metrics.Unbounded {
		fmt.Printf("Remaining:  no recent burn\n")
	} else if metrics.EstimatedMinutesRemaining > 0 {
		fmt.Printf("Remaining:  ~%s at the current rate\n", formatMinutes(metrics.EstimatedMinutesRemaining))
	}
}
