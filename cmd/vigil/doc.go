// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

// Command vigil is the workspace monitoring CLI. It inspects context
// and plan-window usage for Claude Code workspaces, manages which
// workspaces the daemon tracks, and queries recorded usage history.
//
// Daemon-backed commands talk CBOR to the vigil-daemon Unix socket.
// The context and usage commands also work without a daemon: when the
// socket is absent they locate the active session log and compute
// metrics in-process.
package main
