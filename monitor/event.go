// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"time"

	"github.com/vigil-works/vigil/lib/contextmeter"
)

// EventType classifies coordinator events. The strings appear on the
// wire in stream frames and in logs.
type EventType string

const (
	// EventContextUpdated carries freshly computed metrics.
	EventContextUpdated EventType = "context-updated"

	// EventContextWaiting reports that no session log exists yet (or
	// anymore) for the workspace.
	EventContextWaiting EventType = "context-waiting"

	// EventError reports a watcher-level failure. The workspace entry
	// survives; tracking resumes on the next filesystem event.
	EventError EventType = "error"
)

// Event is one coordinator emission. Metrics pointers are nil for
// non-update events.
type Event struct {
	Type        EventType                        `json:"type"`
	WorkspaceID string                           `json:"workspace_id"`
	SessionID   string                           `json:"session_id,omitempty"`
	LogPath     string                           `json:"log_path,omitempty"`
	Context     *contextmeter.ContextMetrics     `json:"context,omitempty"`
	Usage       *contextmeter.UsageWindowMetrics `json:"usage,omitempty"`
	Message     string                           `json:"message,omitempty"`
	At          time.Time                        `json:"at"`
}

// Snapshot is an on-demand metrics computation for one workspace.
type Snapshot struct {
	WorkspaceID   string                          `json:"workspace_id"`
	WorkspacePath string                          `json:"workspace_path"`
	LogPath       string                          `json:"log_path,omitempty"`
	SessionID     string                          `json:"session_id,omitempty"`
	Context       contextmeter.ContextMetrics     `json:"context"`
	Usage         contextmeter.UsageWindowMetrics `json:"usage"`
}

// TrackedWorkspace describes one tracked workspace and its latest
// observed metrics, for listing surfaces.
type TrackedWorkspace struct {
	WorkspaceID   string                           `json:"workspace_id"`
	WorkspacePath string                           `json:"workspace_path"`
	LogPath       string                           `json:"log_path,omitempty"`
	SessionID     string                           `json:"session_id,omitempty"`
	Context       *contextmeter.ContextMetrics     `json:"context,omitempty"`
	Usage         *contextmeter.UsageWindowMetrics `json:"usage,omitempty"`
	LastEventAt   time.Time                        `json:"last_event_at"`
}
