// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema defines the wire types shared between the daemon and
// its clients: stream frames pushed on subscribe connections, usage
// history rows, and the status and listing payloads returned by socket
// actions. The CLI renders these same structs as JSON for --json
// output, so fields carry `json` tags (lib/codec reads `json` tags for
// CBOR as well); only the CBOR-only stream handshake uses `cbor` tags.
//
// These types are the contract between the daemon (writer) and the CLI
// and viewer (readers). Changing a field name here changes the wire
// format; both sides ship from this package, so a rename is safe only
// when daemon and clients are upgraded together.
//
// The package depends only on lib/contextmeter, whose metric structs
// are the payload of most frames. It pulls in none of the watcher or
// storage machinery, so clients can decode frames without linking
// against fsnotify or SQLite.
package schema
