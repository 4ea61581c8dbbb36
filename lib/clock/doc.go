// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// The watch coordinator's debounce window, the compaction cooldown,
// and the daemon's maintenance tickers all run on a Clock. Production
// wiring passes Real(); tests pass Fake() and step time explicitly
// with Advance, which makes timing-sensitive paths (debounce
// coalescing, cooldown suppression, retention sweeps) deterministic
// instead of sleep-and-hope.
package clock
