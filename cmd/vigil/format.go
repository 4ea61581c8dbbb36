// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// parseTimeFlag parses a time specification from a CLI flag value.
// Accepts three formats:
//   - Go duration strings: "1h", "30m", "2h30m", resolved relative to now
//   - Day suffixes: "7d", "30d", shorthand for multiples of 24h
//   - Timestamps: RFC3339 ("2026-03-01T12:00:00Z") or date-only ("2026-03-01")
//
// Returns Unix nanoseconds. Duration-based values are subtracted from
// the current time (i.e., "1h" means "1 hour ago").
func parseTimeFlag(value string) (int64, error) {
	if value == "" {
		return 0, nil
	}

	// Try day suffix first (not handled by time.ParseDuration).
	if strings.HasSuffix(value, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(value, "d"))
		if err == nil && days > 0 {
			return time.Now().Add(-time.Duration(days) * 24 * time.Hour).UnixNano(), nil
		}
	}

	// Try Go duration.
	duration, err := time.ParseDuration(value)
	if err == nil {
		return time.Now().Add(-duration).UnixNano(), nil
	}

	// Try RFC3339 timestamp.
	timestamp, err := time.Parse(time.RFC3339, value)
	if err == nil {
		return timestamp.UnixNano(), nil
	}

	// Try date-only (YYYY-MM-DD), interpreted as midnight UTC.
	timestamp, err = time.Parse("2006-01-02", value)
	if err == nil {
		return timestamp.UnixNano(), nil
	}

	return 0, fmt.Errorf("invalid time %q: expected duration (1h, 7d), RFC3339 timestamp, or date (2006-01-02)", value)
}

// formatTokens renders a token count with thousands separators:
// 1234567 becomes "1,234,567". Counts read as sizes, and unseparated
// seven-digit numbers are easy to misread by a factor of ten.
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

// formatTimestamp formats Unix nanoseconds as a local-time string.
// Uses RFC3339 layout with second precision for absolute display.
func formatTimestamp(nanoseconds int64) string {
	if nanoseconds == 0 {
		return "-"
	}
	return time.Unix(0, nanoseconds).Local().Format("2006-01-02T15:04:05")
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

// formatUptime formats seconds as a human-readable uptime string.
func formatUptime(seconds uint64) string {
	duration := time.Duration(seconds) * time.Second
	hours := int(duration / time.Hour)
	minutes := int((duration % time.Hour) / time.Minute)
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(bytes int64) string {
	switch {
	case bytes >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(1<<30))
	case bytes >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(1<<20))
	case bytes >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// shortenPath abbreviates a workspace path for table display by
// replacing the home directory prefix with "~". Paths outside the
// home directory are returned unchanged.
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
