// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides the SQLite connection pool used by the
// vigil daemon's history store.
//
// It wraps zombiezen.com/go/sqlite with the pragmas the daemon needs:
// WAL journal mode so the CLI and viewer can read history while the
// daemon writes samples, NORMAL synchronous for process-crash
// durability without per-commit fsync cost, and a busy timeout so a
// straggling reader never turns into an immediate SQLITE_BUSY.
//
// Callers [Pool.Take] a connection, work, and [Pool.Put] it back.
// Connections are not safe for concurrent use; each goroutine holds
// its own for the duration of its work.
//
// The package stays thin on purpose: pragmas plus a pool, with the
// zombiezen types exposed directly. The history store writes SQL, uses
// sqlitex.Execute for cached statements, and wraps multi-statement
// work in sqlitex.ImmediateTransaction.
package sqlitepool
