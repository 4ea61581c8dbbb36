// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

// Vigil-daemon is the per-user monitoring daemon. It watches the
// session logs of tracked workspaces, computes context and plan-window
// metrics on every change, records usage history into a day-partitioned
// SQLite database, and drives the compaction policy. A CBOR Unix socket
// serves queries from the vigil CLI and a subscribe stream for the
// viewer.
//
// One daemon runs per socket path; a lock file held with flock
// guarantees that. The socket lives in a user-only runtime directory,
// which is the whole access model: anyone who can reach the path may
// issue any action.
//
// # Socket API
//
// One-shot actions (one CBOR request, one CBOR response per
// connection):
//
//   - status: uptime, tracked workspace count, event and sample
//     counters, history store stats
//   - track / untrack: start or stop watching a workspace
//   - context / usage: on-demand metrics for any workspace, tracked
//     or not
//   - workspaces: tracked workspaces with their latest metrics
//   - history: stored usage samples for a time range
//   - compact: evaluate the compaction policy now and, if it fires,
//     run the summarizer
//   - summary: the most recent compaction summary retained for a
//     workspace
//
// The subscribe action upgrades the connection to a stream: after a
// readiness ack the daemon pushes [schema.EventFrame] values (metric
// updates, waiting notices, errors, heartbeats) until the client
// disconnects. On daemon shutdown every stream receives a final
// "shutdown" frame before its connection closes.
package main
