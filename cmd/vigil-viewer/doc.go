// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

// Vigil-viewer is the live terminal dashboard for tracked workspaces.
// It subscribes to vigil-daemon's event stream and renders a
// two-pane view: a fuzzy-filterable workspace list on the left, and
// context occupancy, plan-window usage, a burn-rate sparkline, and
// the latest compaction summary for the selected workspace on the
// right. The connection self-heals: when the daemon goes away the
// viewer keeps its last state on screen and reconnects with backoff.
//
// When stdout is not a terminal the viewer prints a one-shot plain
// listing instead, so piping it into other tools still works.
package main
