// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

// Package monitor coordinates live watching of workspace session logs.
//
// One Coordinator owns all tracked workspaces. Each workspace runs a
// small state machine: while no session log exists its directory (or
// the projects root, until the directory appears) is watched for
// creation; once a log is known, its parent directory is watched so
// atomic rename replacement is not missed. Filesystem events are
// debounced on an injected clock and handled one at a time per
// workspace; each handling pass re-locates the active log, detects
// rotation by size and head fingerprint, delta-reads the tail, and on
// new content recomputes metrics and emits a context-updated event.
//
// Consumers subscribe for events; a slow subscriber loses its oldest
// pending events rather than ever blocking the coordinator.
package monitor
