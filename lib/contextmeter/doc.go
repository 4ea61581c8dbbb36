// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

// Package contextmeter computes token-budget metrics from a session
// log: context-window occupancy (ContextMetrics) and rolling-window
// plan usage with burn rate (UsageWindowMetrics).
//
// The calculator is deliberately stateless across calls: every call
// re-reads the log and recomputes from scratch. Session logs are
// bounded by a single conversation, so the simplicity is worth more
// than the saved I/O, and recompute-from-the-file means truncation,
// rotation, and retroactive edits need no special handling here.
package contextmeter
