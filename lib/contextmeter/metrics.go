// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package contextmeter

import "time"

// ContextMetrics is the context-window occupancy of a session,
// recomputed wholesale from the full log on each update.
type ContextMetrics struct {
	// CurrentTokens is the live context footprint: the most recent
	// assistant exchange's input, cache, and output tokens combined.
	CurrentTokens uint64 `json:"current_tokens"`

	// LimitTokens is the model's context window.
	LimitTokens uint64 `json:"limit_tokens"`

	// Percentage is CurrentTokens over LimitTokens, in percent.
	Percentage float64 `json:"percentage"`

	// PrunableTokensEstimate approximates how many tokens a compaction
	// could reclaim. Estimated, not measured; treat as "~".
	PrunableTokensEstimate uint64 `json:"prunable_tokens_estimate"`

	// LastCompactTimestamp is when the session was last compacted;
	// zero when it never was.
	LastCompactTimestamp time.Time `json:"last_compact_timestamp"`

	// MessageCount is the number of de-duplicated user and assistant
	// messages in the log.
	MessageCount int `json:"message_count"`

	// Model is the model name of the most recent assistant message,
	// when the log records one.
	Model string `json:"model,omitempty"`

	// ShouldCompact is true when Percentage has reached the configured
	// compaction threshold.
	ShouldCompact bool `json:"should_compact"`
}

// UsageWindowMetrics is rolling-window token usage against the
// inferred subscription plan.
type UsageWindowMetrics struct {
	// InputTokens and OutputTokens sum the billable tokens of events
	// inside the window. Cache reads and writes are excluded from plan
	// accounting.
	InputTokens  uint64 `json:"input_tokens"`
	OutputTokens uint64 `json:"output_tokens"`

	// TotalTokens is InputTokens + OutputTokens.
	TotalTokens uint64 `json:"total_tokens"`

	// PlanName and PlanLimitTokens describe the inferred plan tier.
	// Inference is a best-effort heuristic from historical peak window
	// usage, never authoritative.
	PlanName        string `json:"plan_name"`
	PlanLimitTokens uint64 `json:"plan_limit_tokens"`

	// PercentageOfPlan is TotalTokens over PlanLimitTokens, in percent.
	PercentageOfPlan float64 `json:"percentage_of_plan"`

	// BurnRatePerHour is the recent consumption rate, tokens per hour,
	// measured over the burn window.
	BurnRatePerHour float64 `json:"burn_rate_per_hour"`

	// EstimatedMinutesRemaining extrapolates the current burn rate to
	// plan exhaustion. Meaningless when Unbounded is true.
	EstimatedMinutesRemaining float64 `json:"estimated_minutes_remaining"`

	// Unbounded is true when the burn rate is zero: at the current
	// rate the plan window is never exhausted.
	Unbounded bool `json:"unbounded"`
}
