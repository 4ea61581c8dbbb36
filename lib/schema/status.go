// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"time"

	"github.com/vigil-works/vigil/lib/contextmeter"
)

// DaemonStatus is the response to the status action. Counters are
// cumulative since daemon start.
type DaemonStatus struct {
	// Version is the daemon's build version string.
	Version string `json:"version"`

	// PID is the daemon's process ID, for diagnostics.
	PID int `json:"pid"`

	// StartedAt is when the daemon started, RFC 3339.
	StartedAt string `json:"started_at"`

	// UptimeSeconds is seconds since StartedAt.
	UptimeSeconds uint64 `json:"uptime_seconds"`

	// TrackedWorkspaces is the number of workspaces currently under
	// watch. Subscribers is the number of open subscribe streams.
	TrackedWorkspaces int `json:"tracked_workspaces"`
	Subscribers       int `json:"subscribers"`

	// EventsPublished counts coordinator events fanned out to
	// subscribers. SamplesRecorded counts history rows written.
	// CompactionsTriggered counts summarizer runs started by the
	// compaction policy (manual compact requests included).
	EventsPublished      uint64 `json:"events_published"`
	SamplesRecorded      uint64 `json:"samples_recorded"`
	CompactionsTriggered uint64 `json:"compactions_triggered"`

	// HistoryPath is the SQLite database path. HistoryPartitions is
	// the number of day partitions currently present, HistorySamples
	// the total rows across them, and HistorySizeBytes the database
	// file size.
	HistoryPath       string `json:"history_path"`
	HistoryPartitions int    `json:"history_partitions"`
	HistorySamples    int64  `json:"history_samples"`
	HistorySizeBytes  int64  `json:"history_size_bytes"`
}

// WorkspaceInfo describes one tracked workspace in the workspaces
// action response. Metrics pointers are nil until the first session
// log line has been observed.
type WorkspaceInfo struct {
	WorkspaceID   string                           `json:"workspace_id"`
	WorkspacePath string                           `json:"workspace_path"`
	SessionID     string                           `json:"session_id,omitempty"`
	LogPath       string                           `json:"log_path,omitempty"`
	Context       *contextmeter.ContextMetrics     `json:"context,omitempty"`
	Usage         *contextmeter.UsageWindowMetrics `json:"usage,omitempty"`

	// LastEventAt is when the daemon last published an event for this
	// workspace, unix nanoseconds. Zero before the first event.
	LastEventAt int64 `json:"last_event_at,omitempty"`
}

// LastEventTime returns LastEventAt as a time.Time, or the zero time
// when no event has been published.
func (w WorkspaceInfo) LastEventTime() time.Time {
	if w.LastEventAt == 0 {
		return time.Time{}
	}
	return time.Unix(0, w.LastEventAt)
}

// CompactResult is the response to the compact action: the policy
// decision for the workspace's current metrics and, when the decision
// was to compact, the summarizer outcome.
type CompactResult struct {
	// Decision is the policy outcome: "none", "warn", or "compact".
	Decision string `json:"decision"`

	// Triggered reports whether a summarizer run was started.
	Triggered bool `json:"triggered"`

	// Summary is the summarizer's output when Triggered and the run
	// succeeded. Error is the failure text when it did not.
	Summary string `json:"summary,omitempty"`
	Error   string `json:"error,omitempty"`
}

// CompactionSummary is the response to the summary action: the most
// recent summarizer output the daemon retains for a workspace. The
// zero value (empty Summary, zero ProducedAt) means no compaction has
// produced one since the workspace was tracked.
type CompactionSummary struct {
	WorkspaceID string `json:"workspace_id"`
	SessionID   string `json:"session_id,omitempty"`
	Summary     string `json:"summary,omitempty"`

	// ProducedAt is when the summarizer run finished, unix nanoseconds.
	ProducedAt int64 `json:"produced_at,omitempty"`
}

// Time returns ProducedAt as a time.Time, or the zero time when no
// summary has been produced.
func (s CompactionSummary) Time() time.Time {
	if s.ProducedAt == 0 {
		return time.Time{}
	}
	return time.Unix(0, s.ProducedAt)
}
