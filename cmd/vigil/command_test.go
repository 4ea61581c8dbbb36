// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestCommandExecuteDispatchesToSubcommand(t *testing.T) {
	var called string

	root := &command{
		Name: "vigil",
		Subcommands: []*command{
			{
				Name: "version",
				Run: func(_ context.Context, args []string, _ *slog.Logger) error {
					called = "version"
					return nil
				},
			},
			{
				Name: "status",
				Run: func(_ context.Context, args []string, _ *slog.Logger) error {
					called = "status"
					return nil
				},
			},
		},
	}

	if err := root.Execute(context.Background(), []string{"status"}, testLogger()); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "status" {
		t.Errorf("dispatched to %q, want %q", called, "status")
	}
}

func TestCommandExecutePassesRemainingArgs(t *testing.T) {
	var receivedArgs []string

	root := &command{
		Name: "vigil",
		Subcommands: []*command{
			{
				Name: "context",
				Run: func(_ context.Context, args []string, _ *slog.Logger) error {
					receivedArgs = args
					return nil
				},
			},
		},
	}

	if err := root.Execute(context.Background(), []string{"context", "/some/path"}, testLogger()); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if len(receivedArgs) != 1 || receivedArgs[0] != "/some/path" {
		t.Errorf("args = %v, want [/some/path]", receivedArgs)
	}
}

func TestCommandExecuteFlagParsing(t *testing.T) {
	var socketPath string
	var target string

	cmd := &command{
		Name: "context",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("context", pflag.ContinueOnError)
			flagSet.StringVar(&socketPath, "socket", "/default.sock", "socket path")
			return flagSet
		},
		Run: func(_ context.Context, args []string, _ *slog.Logger) error {
			if len(args) > 0 {
				target = args[0]
			}
			return nil
		},
	}

	if err := cmd.Execute(context.Background(), []string{"--socket", "/custom.sock", "/work"}, testLogger()); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if socketPath != "/custom.sock" {
		t.Errorf("socketPath = %q, want %q", socketPath, "/custom.sock")
	}
	if target != "/work" {
		t.Errorf("target = %q, want %q", target, "/work")
	}
}

func TestCommandExecuteUnknownFlagSuggestion(t *testing.T) {
	cmd := &command{
		Name: "history",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("history", pflag.ContinueOnError)
			flagSet.String("archive", "", "archive file")
			flagSet.String("since", "", "start of range")
			return flagSet
		},
		Run: func(_ context.Context, args []string, _ *slog.Logger) error { return nil },
	}

	err := cmd.Execute(context.Background(), []string{"--archve", "x"}, testLogger())
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown flag")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "did you mean --archive") {
		t.Errorf("error = %q, want suggestion for '--archive'", errStr)
	}
	if !strings.Contains(errStr, "--help") {
		t.Errorf("error = %q, should point to --help", errStr)
	}
}

func TestCommandExecuteUnknownFlagNoSuggestion(t *testing.T) {
	cmd := &command{
		Name: "history",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("history", pflag.ContinueOnError)
			flagSet.String("archive", "", "archive file")
			return flagSet
		},
		Run: func(_ context.Context, args []string, _ *slog.Logger) error { return nil },
	}

	err := cmd.Execute(context.Background(), []string{"--zzzzzzzzz"}, testLogger())
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown flag")
	}
	if strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %q, should not suggest for distant flag", err.Error())
	}
}

func TestCommandExecuteUnknownSubcommandSuggestion(t *testing.T) {
	root := &command{
		Name: "vigil",
		Subcommands: []*command{
			{Name: "status"},
			{Name: "context"},
			{Name: "usage"},
		},
	}

	err := root.Execute(context.Background(), []string{"statsu"}, testLogger())
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown subcommand")
	}
	if !strings.Contains(err.Error(), `did you mean "status"`) {
		t.Errorf("error = %q, want suggestion for 'status'", err.Error())
	}
}

func TestCommandExecuteUnknownSubcommandNoSuggestion(t *testing.T) {
	root := &command{
		Name: "vigil",
		Subcommands: []*command{
			{Name: "status"},
			{Name: "context"},
		},
	}

	err := root.Execute(context.Background(), []string{"qqqqqqqqqq"}, testLogger())
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown subcommand")
	}
	if strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %q, should not contain suggestion for distant input", err.Error())
	}
}

func TestCommandExecuteHelpFlag(t *testing.T) {
	for _, helpArg := range []string{"-h", "--help", "help"} {
		t.Run(helpArg, func(t *testing.T) {
			root := &command{
				Name:    "vigil",
				Summary: "context monitoring",
				Subcommands: []*command{
					{Name: "status", Summary: "Show daemon health"},
				},
			}

			if err := root.Execute(context.Background(), []string{helpArg}, testLogger()); err != nil {
				t.Errorf("Execute(%q) error: %v", helpArg, err)
			}
		})
	}
}

func TestCommandExecuteNoArgsShowsHelp(t *testing.T) {
	root := &command{
		Name: "vigil",
		Subcommands: []*command{
			{Name: "status", Summary: "Show daemon health"},
		},
	}

	err := root.Execute(context.Background(), []string{}, testLogger())
	if err == nil {
		t.Fatal("Execute() = nil, want error for missing subcommand")
	}
	if !strings.Contains(err.Error(), "subcommand required") {
		t.Errorf("error = %q, want 'subcommand required'", err.Error())
	}
}

func TestCommandPrintHelp(t *testing.T) {
	cmd := &command{
		Name:        "vigil",
		Description: "Context monitoring for coding sessions.",
		Subcommands: []*command{
			{Name: "status", Summary: "Show daemon health"},
			{Name: "context", Summary: "Show context pressure"},
			{Name: "version", Summary: "Print version information"},
		},
		Examples: []example{
			{
				Description: "Check the daemon",
				Command:     "vigil status",
			},
			{
				Description: "Inspect the current workspace",
				Command:     "vigil context",
			},
		},
	}

	var buffer bytes.Buffer
	cmd.PrintHelp(&buffer)
	output := buffer.String()

	for _, want := range []string{
		"Context monitoring for coding sessions.",
		"Usage:",
		"vigil <command> [flags]",
		"Commands:",
		"status",
		"Show daemon health",
		"context",
		"Show context pressure",
		"Examples:",
		"vigil status",
		"Run 'vigil <command> --help'",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q\n\nFull output:\n%s", want, output)
		}
	}
}

func TestCommandPrintHelpWithFlags(t *testing.T) {
	cmd := &command{
		Name:    "export",
		Summary: "Export usage history",
		Usage:   "vigil export --out FILE [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("export", pflag.ContinueOnError)
			flagSet.String("out", "", "output file")
			flagSet.String("compress", "zstd", "compression algorithm")
			return flagSet
		},
	}

	var buffer bytes.Buffer
	cmd.PrintHelp(&buffer)
	output := buffer.String()

	for _, want := range []string{
		"vigil export --out FILE [flags]",
		"Flags:",
		"out",
		"compress",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q\n\nFull output:\n%s", want, output)
		}
	}
}

func TestCommandFullName(t *testing.T) {
	rootCmd := &command{Name: "vigil"}
	history := &command{Name: "history", parent: rootCmd}

	if got := rootCmd.fullName(); got != "vigil" {
		t.Errorf("root fullName() = %q, want %q", got, "vigil")
	}
	if got := history.fullName(); got != "vigil history" {
		t.Errorf("history fullName() = %q, want %q", got, "vigil history")
	}
}

// The real tree should dispatch every advertised command without
// panicking on construction.
func TestRootTreeNames(t *testing.T) {
	tree := root()
	want := []string{
		"status", "context", "usage", "track", "untrack",
		"list", "history", "export", "compact", "version",
	}
	if len(tree.Subcommands) != len(want) {
		t.Fatalf("root has %d subcommands, want %d", len(tree.Subcommands), len(want))
	}
	for i, name := range want {
		if tree.Subcommands[i].Name != name {
			t.Errorf("subcommand %d = %q, want %q", i, tree.Subcommands[i].Name, name)
		}
		if tree.Subcommands[i].Summary == "" {
			t.Errorf("subcommand %q has no summary", name)
		}
	}
}
