// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Vigil's standard CBOR configuration.
//
// Vigil uses two serialization formats with a clear boundary:
//
//   - JSON is what the engine reads and what the CLI prints: the
//     agent's session logs are JSONL, workspace settings files are
//     JSON(C), and `vigil ... --json` emits JSON for scripts.
//   - CBOR is what the engine speaks and writes itself: the daemon
//     socket protocol, the subscribe event stream, and history export
//     archives.
//
// Every CBOR producer and consumer in the repo goes through this
// package so the configuration lives in one place. Buffer-oriented
// callers use Marshal/Unmarshal; stream-oriented callers (the socket)
// use NewEncoder/NewDecoder. CBOR values are self-delimiting, so the
// socket protocol needs no length framing.
//
// Struct tag rule: a type serialized only as CBOR carries `cbor` tags;
// a type that also appears in JSON output carries `json` tags only
// (fxamacker/cbor falls back to `json` tags, so one tag set serves
// both formats). Never both on one field.
package codec
