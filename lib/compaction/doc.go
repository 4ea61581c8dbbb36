// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

// Package compaction decides when a session should be compacted and
// drives the summarizer that does it.
//
// The threshold itself lives in the metrics (ContextMetrics carries
// ShouldCompact); this package adds the gates that keep a noisy
// threshold from thrashing: a minimum conversation length and a
// per-conversation cooldown. The cooldown advances on every attempt,
// successful or not, so a failing summarizer is retried at cooldown
// cadence rather than on every metrics update.
package compaction
