// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"time"

	"github.com/vigil-works/vigil/lib/contextmeter"
)

// Frame type strings. These are the "type" field of every EventFrame
// on a subscribe stream.
const (
	// FrameContextUpdated carries freshly computed metrics for one
	// workspace. Context and Usage are populated.
	FrameContextUpdated = "context-updated"

	// FrameContextWaiting reports that a tracked workspace has no
	// session log yet (or no longer has one). Metrics are nil.
	FrameContextWaiting = "context-waiting"

	// FrameError reports a watcher-level failure for one workspace.
	// Message holds the error text; tracking continues.
	FrameError = "error"

	// FrameHeartbeat keeps idle subscribe connections alive. Carries
	// no workspace and no metrics. Clients should ignore it.
	FrameHeartbeat = "heartbeat"

	// FrameShutdown is the final frame on every stream when the daemon
	// stops. No frames follow it; the daemon closes the connection.
	FrameShutdown = "shutdown"
)

// StreamAck is the handshake result written by the daemon as the
// first value on every subscribe stream. CBOR only; it never reaches
// JSON output.
type StreamAck struct {
	OK    bool   `cbor:"ok"`
	Error string `cbor:"error,omitempty"`
}

// EventFrame is one CBOR value pushed on a subscribe stream. Metrics
// pointers are nil for every type except context-updated.
type EventFrame struct {
	Type        string                           `json:"type"`
	WorkspaceID string                           `json:"workspace_id,omitempty"`
	SessionID   string                           `json:"session_id,omitempty"`
	LogPath     string                           `json:"log_path,omitempty"`
	Context     *contextmeter.ContextMetrics     `json:"context,omitempty"`
	Usage       *contextmeter.UsageWindowMetrics `json:"usage,omitempty"`
	Message     string                           `json:"message,omitempty"`

	// At is when the daemon observed the event, unix nanoseconds.
	At int64 `json:"at,omitempty"`
}

// Time returns the observation time of the frame.
func (f EventFrame) Time() time.Time {
	return time.Unix(0, f.At)
}
