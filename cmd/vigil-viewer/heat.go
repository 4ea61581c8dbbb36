// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package main

import "time"

// heatDecay is how long a list row stays tinted after its workspace
// produced an event.
const heatDecay = 3 * time.Second

// heatTickInterval drives re-renders while any row is tinted.
const heatTickInterval = 250 * time.Millisecond

// heatTracker remembers the last event time per workspace so the list
// can tint recently active rows.
type heatTracker struct {
	ignitions map[string]time.Time
}

func newHeatTracker() *heatTracker {
	return &heatTracker{ignitions: make(map[string]time.Time)}
}

// Ignite marks a workspace hot as of now.
func (tracker *heatTracker) Ignite(workspaceID string, now time.Time) {
	tracker.ignitions[workspaceID] = now
}

// Hot reports whether a workspace's tint is still burning, dropping
// the entry once it has decayed.
func (tracker *heatTracker) Hot(workspaceID string, now time.Time) bool {
	ignition, exists := tracker.ignitions[workspaceID]
	if !exists {
		return false
	}
	if now.Sub(ignition) >= heatDecay {
		delete(tracker.ignitions, workspaceID)
		return false
	}
	return true
}

// AnyHot reports whether any tint is still burning, collecting
// decayed entries as it scans.
func (tracker *heatTracker) AnyHot(now time.Time) bool {
	any := false
	for workspaceID, ignition := range tracker.ignitions {
		if now.Sub(ignition) >= heatDecay {
			delete(tracker.ignitions, workspaceID)
			continue
		}
		any = true
	}
	return any
}
