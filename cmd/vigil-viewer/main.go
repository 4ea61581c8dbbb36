// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/vigil-works/vigil/lib/config"
	"github.com/vigil-works/vigil/lib/process"
	"github.com/vigil-works/vigil/lib/schema"
	"github.com/vigil-works/vigil/lib/service"
	"github.com/vigil-works/vigil/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath    string
		socketPath    string
		workspacePath string
		logOutput     string
	)

	flagSet := pflag.NewFlagSet("vigil-viewer", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "config file path (default: $VIGIL_CONFIG, then ~/.config/vigil/config.yaml)")
	flagSet.StringVar(&socketPath, "socket", "", "override the daemon socket path")
	flagSet.StringVar(&workspacePath, "workspace", "", "workspace path to select at startup")
	flagSet.StringVar(&logOutput, "log-output", "", "write JSON log records to this file")
	flagSet.BoolP("help", "h", false, "show help")

	// Handle --version before flag parsing to match the other vigil
	// binaries.
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("vigil-viewer")
		return nil
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if socketPath != "" {
		cfg.Paths.Socket = socketPath
	}

	client := service.NewClient(cfg.SocketPath())

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return runPlain(client)
	}

	logger, closeLog, err := buildLogger(logOutput)
	if err != nil {
		return err
	}
	defer closeLog()

	preselect := ""
	if workspacePath != "" {
		absolute, err := filepath.Abs(workspacePath)
		if err != nil {
			return fmt.Errorf("resolving workspace path %s: %w", workspacePath, err)
		}
		preselect = absolute
	}

	program := tea.NewProgram(
		newModel(client, cfg.Thresholds.CompactPercent, cfg.PlanWindow(), preselect, logger),
		tea.WithAltScreen(),
		tea.WithMouseAllMotion(),
	)
	_, err = program.Run()
	return err
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// buildLogger routes log records to the --log-output file. Without
// one, records are dropped: the alternate screen owns the terminal
// and stderr writes would corrupt it.
func buildLogger(path string) (*slog.Logger, func(), error) {
	if path == "" {
		return slog.New(slog.DiscardHandler), func() {}, nil
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file %s: %w", path, err)
	}
	handler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(handler), func() { file.Close() }, nil
}

// runPlain prints the workspace table once and exits, for pipes and
// scripts.
func runPlain(client *service.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	var infos []schema.WorkspaceInfo
	if err := client.Call(ctx, "workspaces", nil, &infos); err != nil {
		return err
	}

	home, _ := os.UserHomeDir()
	now := time.Now()
	writer := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
	fmt.Fprintln(writer, "WORKSPACE\tSESSION\tCONTEXT\tPLAN\tBURN/H\tLAST EVENT")
	for _, info := range infos {
		session := info.SessionID
		if session == "" {
			session = "-"
		}
		contextCell, planCell, burnCell := "-", "-", "-"
		if info.Context != nil {
			contextCell = formatPercent(info.Context.Percentage)
		}
		if info.Usage != nil {
			if info.Usage.PlanLimitTokens > 0 {
				planCell = formatPercent(info.Usage.PercentageOfPlan)
			}
			burnCell = formatTokens(uint64(info.Usage.BurnRatePerHour))
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortenPath(info.WorkspacePath, home),
			session,
			contextCell,
			planCell,
			burnCell,
			formatAge(info.LastEventTime(), now))
	}
	return writer.Flush()
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Vigil workspace viewer — live terminal dashboard for tracked workspaces.

Connects to the vigil daemon and subscribes to its event stream. The
left pane lists tracked workspaces with context pressure and recency;
the right pane shows the selected workspace's gauges, burn history,
and the latest compaction summary. The connection self-heals while
the daemon restarts.

When stdout is not a terminal the viewer prints the workspace table
once and exits, for use in scripts and pipes.

Usage:
  vigil-viewer [flags]

Keys:
  up/down, k/j    move the selection
  tab             switch pane focus
  /               fuzzy-filter workspaces
  r               refresh the list
  q               quit

Examples:
  # Open the dashboard
  vigil-viewer

  # Start with a workspace selected
  vigil-viewer --workspace ~/src/project

  # Capture background logs while debugging
  vigil-viewer --log-output /tmp/vigil-viewer.log

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
