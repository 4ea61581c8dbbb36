// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package sessionlog

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// LogExtension is the file extension of session logs.
const LogExtension = ".jsonl"

// primaryLogBonus is added to a primary session log's modification
// time when ranking candidates. Auxiliary agent logs (spawned
// subagents) are written in bursts right next to the primary log;
// without the bonus a subagent's final flush would routinely steal
// the "most recently active" slot from the conversation that matters.
const primaryLogBonus = 30 * time.Second

// primaryLogPattern matches the canonical session log name: a UUID
// plus the log extension. Anything else (agent-<id>.jsonl sidechain
// logs, editor droppings) is auxiliary.
var primaryLogPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\.jsonl$`)

// pathFiller replaces path separators and dots when deriving a session
// directory name from a workspace path.
const pathFiller = '-'

// DefaultProjectsRoot returns the agent CLI's projects directory,
// ~/.claude/projects.
func DefaultProjectsRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("sessionlog: resolving home directory: %w", err)
	}
	return filepath.Join(home, ".claude", "projects"), nil
}

// SessionDirectory derives the session directory for a workspace. The
// transform is pure string manipulation and never touches the
// filesystem: every path separator and dot in the workspace path
// becomes the filler character, and the result is joined under the
// projects root.
//
//	/home/ada/dev/app.web → <root>/-home-ada-dev-app-web
func SessionDirectory(projectsRoot, workspacePath string) string {
	encoded := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', '.':
			return pathFiller
		}
		return r
	}, workspacePath)
	return filepath.Join(projectsRoot, encoded)
}

// FindActiveLog scans directory for the session log with the greatest
// effective modification time, where primary logs get primaryLogBonus
// so they win ties and near-ties against auxiliary agent logs.
//
// A missing directory returns ("", nil): no session has started yet,
// which is the normal waiting condition, not an error. Candidates
// whose metadata cannot be read are logged and skipped; only a failed
// directory listing is an error.
func FindActiveLog(directory string, logger *slog.Logger) (string, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	entries, err := os.ReadDir(directory)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("sessionlog: listing %s: %w", directory, err)
	}

	var (
		bestPath string
		bestTime time.Time
	)
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || !strings.HasSuffix(name, LogExtension) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			logger.Warn("skipping unreadable log candidate",
				"path", filepath.Join(directory, name),
				"error", err,
			)
			continue
		}

		effective := info.ModTime()
		if primaryLogPattern.MatchString(name) {
			effective = effective.Add(primaryLogBonus)
		}
		if bestPath == "" || effective.After(bestTime) {
			bestPath = filepath.Join(directory, name)
			bestTime = effective
		}
	}
	return bestPath, nil
}

// IsPrimaryLog reports whether name (a base name, not a path) is a
// canonical session log rather than an auxiliary agent log.
func IsPrimaryLog(name string) bool {
	return primaryLogPattern.MatchString(name)
}
