// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vigil-works/vigil/lib/clock"
	"github.com/vigil-works/vigil/lib/config"
	"github.com/vigil-works/vigil/lib/process"
	"github.com/vigil-works/vigil/lib/service"
	"github.com/vigil-works/vigil/lib/version"
	"github.com/vigil-works/vigil/monitor"
)

// coordinatorBuffer is the event queue between the coordinator and the
// daemon's pump. The pump is the coordinator's only consumer; a deep
// queue rides out bursts from many workspaces updating at once.
const coordinatorBuffer = 256

// retentionInterval paces history retention sweeps.
const retentionInterval = time.Hour

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		showVersion bool
		configPath  string
		socketPath  string
	)
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.StringVar(&configPath, "config", "", "config file path (default: $VIGIL_CONFIG, then ~/.config/vigil/config.yaml)")
	flag.StringVar(&socketPath, "socket", "", "override the daemon socket path")
	flag.Parse()

	if showVersion {
		version.Print("vigil-daemon")
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if socketPath != "" {
		cfg.Paths.Socket = socketPath
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lock, err := acquireLock(cfg.LockPath())
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn("failed to release daemon lock", "error", err)
		}
	}()

	clk := clock.Real()

	store, err := OpenStore(StoreConfig{
		Path:   cfg.HistoryDBPath(),
		Clock:  clk,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close history store", "error", err)
		}
	}()

	coordinator, err := monitor.New(cfg, clk, logger)
	if err != nil {
		return err
	}
	defer coordinator.Close()

	daemon := NewDaemon(cfg, coordinator, store, clk, logger)

	events, unsubscribe := coordinator.Subscribe(coordinatorBuffer)
	defer unsubscribe()
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		daemon.runEvents(events)
	}()

	go runRetention(ctx, store, cfg.Retention(), clk, logger)

	server := service.NewSocketServer(cfg.SocketPath(), logger)
	daemon.registerActions(server)

	socketDone := make(chan error, 1)
	go func() {
		socketDone <- server.Serve(ctx)
	}()

	logger.Info("vigil daemon running",
		"socket", cfg.SocketPath(),
		"history", cfg.HistoryDBPath(),
		"projects_root", cfg.Paths.ProjectsRoot,
	)

	<-ctx.Done()
	logger.Info("shutting down")

	// Serve drains active connections, including open subscribe
	// streams; each stream writes its final shutdown frame on the way
	// out.
	if err := <-socketDone; err != nil {
		logger.Error("socket server error", "error", err)
	}

	// Closing the coordinator closes the event channel, which ends the
	// pump once queued events are handled.
	if err := coordinator.Close(); err != nil {
		logger.Warn("failed to close coordinator", "error", err)
	}
	<-pumpDone

	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// newLogger builds the daemon's JSON logger. Output goes to stderr, or
// to the configured log file when one is set.
func newLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	options := &slog.HandlerOptions{Level: cfg.LogLevel()}
	if cfg.Logging.File == "" {
		return slog.New(slog.NewJSONHandler(os.Stderr, options)), func() {}, nil
	}

	file, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file %s: %w", cfg.Logging.File, err)
	}
	return slog.New(slog.NewJSONHandler(file, options)), func() { file.Close() }, nil
}

// runRetention drops expired history partitions on startup and then
// hourly until ctx is cancelled.
func runRetention(ctx context.Context, store *Store, retention time.Duration, clk clock.Clock, logger *slog.Logger) {
	if err := store.RunRetention(ctx, retention); err != nil {
		logger.Error("history retention sweep failed", "error", err)
	}

	ticker := clk.NewTicker(retentionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := store.RunRetention(ctx, retention); err != nil {
				logger.Error("history retention sweep failed", "error", err)
			}
		}
	}
}
