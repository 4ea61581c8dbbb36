// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vigil-works/vigil/lib/schema"
)

// formatTokens renders a token count with thousands separators:
// 1234567 becomes "1,234,567".
func formatTokens(tokens uint64) string {
	digits := strconv.FormatUint(tokens, 10)
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// formatPercent renders a 0..100 percentage with one decimal place.
func formatPercent(percent float64) string {
	return fmt.Sprintf("%.1f%%", percent)
}

// formatAge formats how long ago a timestamp was, relative to now:
// "42s ago", "5m ago", "3h 20m ago". Zero renders as "-".
func formatAge(at time.Time, now time.Time) string {
	if at.IsZero() {
		return "-"
	}
	elapsed := now.Sub(at)
	if elapsed < 0 {
		elapsed = 0
	}
	switch {
	case elapsed < time.Minute:
		return fmt.Sprintf("%ds ago", int(elapsed/time.Second))
	case elapsed < time.Hour:
		return fmt.Sprintf("%dm ago", int(elapsed/time.Minute))
	default:
		hours := int(elapsed / time.Hour)
		minutes := int((elapsed % time.Hour) / time.Minute)
		if minutes == 0 {
			return fmt.Sprintf("%dh ago", hours)
		}
		return fmt.Sprintf("%dh %dm ago", hours, minutes)
	}
}

// formatMinutes formats a minute count as a compact duration: "45m",
// "3h 20m". Negative or zero renders as "-".
func formatMinutes(minutes float64) string {
	if minutes <= 0 {
		return "-"
	}
	whole := int(minutes)
	if whole < 60 {
		return fmt.Sprintf("%dm", whole)
	}
	hours := whole / 60
	remainder := whole % 60
	if remainder == 0 {
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dh %dm", hours, remainder)
}

// shortenPath abbreviates a workspace path by replacing the home
// directory prefix with "~". Paths outside the home directory are
// returned unchanged.
func shortenPath(path, home string) string {
	if home == "" {
		return path
	}
	if path == home {
		return "~"
	}
	if strings.HasPrefix(path, home+"/") {
		return "~" + path[len(home):]
	}
	return path
}

// workspaceLabel is a workspace's display name in the list: its path
// shortened against the home directory, or the workspace ID when the
// path is unknown.
func workspaceLabel(info schema.WorkspaceInfo) string {
	if info.WorkspacePath == "" {
		return info.WorkspaceID
	}
	home, _ := os.UserHomeDir()
	return shortenPath(info.WorkspacePath, home)
}
