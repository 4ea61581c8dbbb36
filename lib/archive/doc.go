// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive reads and writes usage history archives: the files
// produced by `vigil export` and consumed by `vigil history --archive`.
//
// An archive is a single CBOR value: a small header (magic, format
// version, compression name, uncompressed payload size) wrapping a
// compressed payload, which is itself the CBOR encoding of [Archive].
// The header records the compression by name ("none", "lz4", "zstd"),
// so readers never guess the algorithm and new algorithms can be added
// without renumbering anything.
//
// Compression is best-effort: when the requested algorithm cannot make
// the payload smaller, the payload is stored uncompressed and the
// header says "none". Decompression verifies the recorded uncompressed
// size, so truncated or corrupted archives fail loudly instead of
// yielding short sample sets.
package archive
