// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

// Package service implements the CBOR-over-Unix-socket protocol
// between the vigil daemon and its clients (the CLI and the viewer).
//
// The protocol has two shapes. Request-response actions open a
// connection, write one CBOR request, read one CBOR [Response], and
// close. Streaming actions keep the connection open after the request:
// the handler owns the connection and writes CBOR frames until the
// client disconnects or the daemon shuts down.
//
// Every request is a CBOR map carrying at least an "action" field;
// handlers decode their own parameters from the raw request. There is
// no authentication layer: the socket lives in a mode-0700 runtime
// directory, so reaching the path at all is the access check.
package service
