// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

// Package sessionlog reads the append-only JSONL conversation logs the
// agent CLI writes under its projects directory.
//
// The package deals purely in file mechanics and row parsing: locating
// the session directory for a workspace (a pure path transform plus a
// most-recently-active scan), delta reads from a byte offset with
// truncation and rotation tolerance, head fingerprinting for
// rotation-by-replacement detection, and tolerant line-at-a-time event
// parsing. Metric computation over the parsed events lives in
// lib/contextmeter; watch orchestration lives in the monitor package.
//
// Logs are written concurrently by another process. Every reader here
// treats torn lines, missing fields, and vanished files as expected
// conditions, not errors.
package sessionlog
