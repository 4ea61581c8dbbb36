// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "time"

// UsageSample is one row of usage history: a point-in-time reading of
// a workspace's context and plan-window pressure. The daemon records
// one sample per context update (rate-limited per workspace); the
// history store persists them in day-partitioned tables, and history
// archives carry slices of them.
type UsageSample struct {
	WorkspaceID string `json:"workspace_id"`

	// Timestamp is when the sample was taken, unix nanoseconds.
	Timestamp int64 `json:"timestamp"`

	// CurrentTokens is the live context size of the session at sample
	// time. WindowTokens is the cumulative usage inside the rolling
	// plan window.
	CurrentTokens uint64 `json:"current_tokens"`
	WindowTokens  uint64 `json:"window_tokens"`

	// ContextPercent is CurrentTokens against the model's context
	// limit; PlanPercent is WindowTokens against the plan tier limit
	// (0 when the tier is unbounded).
	ContextPercent float64 `json:"context_percent"`
	PlanPercent    float64 `json:"plan_percent"`

	// BurnRatePerHour is the window's consumption rate at sample time.
	BurnRatePerHour float64 `json:"burn_rate_per_hour"`
}

// Time returns the sample's timestamp.
func (s UsageSample) Time() time.Time {
	return time.Unix(0, s.Timestamp)
}
