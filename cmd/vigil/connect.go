// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/vigil-works/vigil/lib/clock"
	"github.com/vigil-works/vigil/lib/config"
	"github.com/vigil-works/vigil/lib/contextmeter"
	"github.com/vigil-works/vigil/lib/service"
	"github.com/vigil-works/vigil/lib/sessionlog"
	"github.com/vigil-works/vigil/monitor"
)

// connectFlags carries the flags shared by every command that resolves
// daemon connection parameters from configuration.
type connectFlags struct {
	configPath string
	socketPath string
}

func (f *connectFlags) register(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.configPath, "config", "", "config file (default $VIGIL_CONFIG, then ~/.config/vigil/config.yaml)")
	flagSet.StringVar(&f.socketPath, "socket", "", "daemon socket path (default from config)")
}

// loadConfig resolves the effective configuration: an explicit --config
// wins, otherwise the usual lookup (VIGIL_CONFIG, default path,
// built-in defaults).
func (f *connectFlags) loadConfig() (*config.Config, error) {
	if f.configPath != "" {
		return config.LoadFile(f.configPath)
	}
	return config.Load()
}

// socket returns the daemon socket path: --socket wins over config.
func (f *connectFlags) socket(cfg *config.Config) string {
	if f.socketPath != "" {
		return f.socketPath
	}
	return cfg.SocketPath()
}

// client returns a service client for the resolved socket path.
func (f *connectFlags) client(cfg *config.Config) *service.Client {
	return service.NewClient(f.socket(cfg))
}

// callContext bounds a daemon query. History queries scan day-
// partitioned SQLite tables and may involve moderate I/O for wide
// time ranges.
func callContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, 30*time.Second)
}

// resolveWorkspace turns an optional positional path argument into the
// (workspaceID, absolutePath) pair used by daemon actions. The path
// defaults to the current directory; the ID defaults to the absolute
// path, which is unique per workspace and readable in listings. An
// --id override substitutes a custom identifier.
func resolveWorkspace(args []string, idOverride string) (workspaceID, workspacePath string, err error) {
	if len(args) > 1 {
		return "", "", fmt.Errorf("expected at most 1 positional argument, got %d", len(args))
	}
	path := "."
	if len(args) == 1 {
		path = args[0]
	}
	absolute, err := filepath.Abs(path)
	if err != nil {
		return "", "", fmt.Errorf("resolving workspace path %q: %w", path, err)
	}
	workspaceID = idOverride
	if workspaceID == "" {
		workspaceID = absolute
	}
	return workspaceID, absolute, nil
}

// localSnapshot computes workspace metrics in-process, without the
// daemon: locate the active session log under the configured projects
// root, then run the calculator over it. Used by context and usage
// when the daemon socket is absent, so one-shot inspection works on
// machines that never start vigil-daemon.
func localSnapshot(cfg *config.Config, workspaceID, workspacePath string, logger *slog.Logger) (*monitor.Snapshot, error) {
	snapshot := &monitor.Snapshot{
		WorkspaceID:   workspaceID,
		WorkspacePath: workspacePath,
	}

	directory := sessionlog.SessionDirectory(cfg.Paths.ProjectsRoot, workspacePath)
	logPath, err := sessionlog.FindActiveLog(directory, logger)
	if err != nil {
		return nil, err
	}
	if logPath == "" {
		// No session yet. The zero metrics say so.
		return snapshot, nil
	}
	snapshot.LogPath = logPath
	snapshot.SessionID = strings.TrimSuffix(filepath.Base(logPath), sessionlog.LogExtension)

	calc := contextmeter.New(cfg, clock.Real(), logger)
	contextMetrics, err := calc.Context(logPath, workspacePath)
	if err != nil {
		return nil, err
	}
	usageMetrics, err := calc.UsageWindow(logPath, cfg.PlanWindow())
	if err != nil {
		return nil, err
	}
	snapshot.Context = contextMetrics
	snapshot.Usage = usageMetrics
	return snapshot, nil
}
