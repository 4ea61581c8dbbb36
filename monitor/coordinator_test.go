// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vigil-works/vigil/lib/clock"
	"github.com/vigil-works/vigil/lib/config"
	"github.com/vigil-works/vigil/lib/sessionlog"
	"github.com/vigil-works/vigil/lib/testutil"
)

var monitorEpoch = time.Date(2026, 2, 10, 15, 0, 0, 0, time.UTC)

const (
	logNameA = "3f1c2a94-0000-4000-8000-aaaaaaaaaaaa.jsonl"
	logNameB = "3f1c2a94-0000-4000-8000-bbbbbbbbbbbb.jsonl"

	receiveWait = 2 * time.Second
	silenceWait = 250 * time.Millisecond
)

func TestTrackExistingLogEmitsSnapshot(t *testing.T) {
	c, clk, cfg := testCoordinator(t)
	events, cancel := c.Subscribe(8)
	defer cancel()

	workspace := "/work/alpha"
	dir := sessionlog.SessionDirectory(cfg.Paths.ProjectsRoot, workspace)
	writeLog(t, dir, logNameA,
		userRow(clk.Now().Add(-2*time.Minute)),
		assistantRow("msg-1", clk.Now().Add(-time.Minute), 200),
	)

	snapshot, err := c.Track("alpha", workspace)
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if snapshot == nil {
		t.Fatal("expected an initial snapshot when a log exists")
	}
	if got, want := snapshot.Context.CurrentTokens, uint64(300); got != want {
		t.Fatalf("CurrentTokens = %d, want %d", got, want)
	}
	if got, want := snapshot.SessionID, strings.TrimSuffix(logNameA, ".jsonl"); got != want {
		t.Fatalf("SessionID = %q, want %q", got, want)
	}

	ev := testutil.RequireReceive(t, events, receiveWait, "initial snapshot event")
	if ev.Type != EventContextUpdated {
		t.Fatalf("event type = %q, want %q", ev.Type, EventContextUpdated)
	}
	if ev.WorkspaceID != "alpha" {
		t.Fatalf("event workspace = %q, want alpha", ev.WorkspaceID)
	}
	if ev.Context == nil || ev.Context.MessageCount != 2 {
		t.Fatalf("event context = %+v, want message count 2", ev.Context)
	}
}

func TestTrackMissingDirectoryWaits(t *testing.T) {
	c, _, _ := testCoordinator(t)
	events, cancel := c.Subscribe(8)
	defer cancel()

	snapshot, err := c.Track("alpha", "/work/alpha")
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if snapshot != nil {
		t.Fatalf("snapshot = %+v, want nil while no log exists", snapshot)
	}

	ev := testutil.RequireReceive(t, events, receiveWait, "waiting event")
	if ev.Type != EventContextWaiting {
		t.Fatalf("event type = %q, want %q", ev.Type, EventContextWaiting)
	}
}

func TestSessionAppearsAfterTrack(t *testing.T) {
	c, clk, cfg := testCoordinator(t)
	events, cancel := c.Subscribe(8)
	defer cancel()

	workspace := "/work/alpha"
	if _, err := c.Track("alpha", workspace); err != nil {
		t.Fatalf("Track: %v", err)
	}
	ev := testutil.RequireReceive(t, events, receiveWait, "waiting event")
	if ev.Type != EventContextWaiting {
		t.Fatalf("event type = %q, want %q", ev.Type, EventContextWaiting)
	}

	// First activity: the session directory and its log appear.
	dir := sessionlog.SessionDirectory(cfg.Paths.ProjectsRoot, workspace)
	writeLog(t, dir, logNameA, assistantRow("msg-1", clk.Now(), 500))

	clk.WaitForTimers(1)
	clk.Advance(cfg.Debounce())

	ev = testutil.RequireReceive(t, events, receiveWait, "discovery event")
	if ev.Type != EventContextUpdated {
		t.Fatalf("event type = %q, want %q", ev.Type, EventContextUpdated)
	}
	if ev.Context == nil || ev.Context.CurrentTokens != 600 {
		t.Fatalf("event context = %+v, want current tokens 600", ev.Context)
	}
	if got, want := ev.SessionID, strings.TrimSuffix(logNameA, ".jsonl"); got != want {
		t.Fatalf("SessionID = %q, want %q", got, want)
	}
}

func TestDebounceCoalescesBursts(t *testing.T) {
	c, clk, cfg := testCoordinator(t)
	events, cancel := c.Subscribe(8)
	defer cancel()

	workspace := "/work/alpha"
	dir := sessionlog.SessionDirectory(cfg.Paths.ProjectsRoot, workspace)
	logPath := writeLog(t, dir, logNameA,
		userRow(clk.Now().Add(-time.Minute)),
		assistantRow("msg-0", clk.Now().Add(-time.Minute), 100),
	)
	if _, err := c.Track("alpha", workspace); err != nil {
		t.Fatalf("Track: %v", err)
	}
	testutil.RequireReceive(t, events, receiveWait, "initial snapshot event")

	// A burst of writes lands well inside one debounce interval.
	for i := 1; i <= 5; i++ {
		appendLog(t, logPath, assistantRow(fmt.Sprintf("msg-%d", i), clk.Now(), uint64(100+i)))
	}

	clk.WaitForTimers(1)
	clk.Advance(cfg.Debounce())

	ev := testutil.RequireReceive(t, events, receiveWait, "coalesced update")
	if ev.Type != EventContextUpdated {
		t.Fatalf("event type = %q, want %q", ev.Type, EventContextUpdated)
	}
	if ev.Context == nil || ev.Context.MessageCount != 7 {
		t.Fatalf("event context = %+v, want message count 7", ev.Context)
	}
	if ev.Context.CurrentTokens != 205 {
		t.Fatalf("CurrentTokens = %d, want 205 from the final append", ev.Context.CurrentTokens)
	}
	testutil.RequireNoReceive(t, events, silenceWait, "burst must produce a single update")
}

func TestUntrackStopsEvents(t *testing.T) {
	c, clk, cfg := testCoordinator(t)
	events, cancel := c.Subscribe(8)
	defer cancel()

	workspace := "/work/alpha"
	dir := sessionlog.SessionDirectory(cfg.Paths.ProjectsRoot, workspace)
	logPath := writeLog(t, dir, logNameA, assistantRow("msg-0", clk.Now(), 100))
	if _, err := c.Track("alpha", workspace); err != nil {
		t.Fatalf("Track: %v", err)
	}
	testutil.RequireReceive(t, events, receiveWait, "initial snapshot event")

	c.Untrack("alpha")
	if got := len(c.Tracked()); got != 0 {
		t.Fatalf("Tracked() returned %d entries after Untrack, want 0", got)
	}

	appendLog(t, logPath, assistantRow("msg-1", clk.Now(), 999))
	testutil.RequireNoReceive(t, events, silenceWait, "untracked workspace must stay silent")

	// Untracking again is a no-op.
	c.Untrack("alpha")
}

func TestRotationResetsPosition(t *testing.T) {
	c, clk, cfg := testCoordinator(t)
	events, cancel := c.Subscribe(8)
	defer cancel()

	workspace := "/work/alpha"
	dir := sessionlog.SessionDirectory(cfg.Paths.ProjectsRoot, workspace)
	before := assistantRow("msg-old-1", clk.Now(), 111)
	after := assistantRow("msg-new-1", clk.Now(), 999)
	if len(before) != len(after) {
		t.Fatalf("fixture drift: rewrite must keep the byte size (%d vs %d)", len(before), len(after))
	}

	logPath := writeLog(t, dir, logNameA, before)
	if _, err := c.Track("alpha", workspace); err != nil {
		t.Fatalf("Track: %v", err)
	}
	ev := testutil.RequireReceive(t, events, receiveWait, "initial snapshot event")
	if ev.Context == nil || ev.Context.CurrentTokens != 211 {
		t.Fatalf("initial context = %+v, want current tokens 211", ev.Context)
	}

	// Same size, different bytes: only the fingerprint can tell.
	if err := os.WriteFile(logPath, []byte(after+"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	clk.WaitForTimers(1)
	clk.Advance(cfg.Debounce())

	ev = testutil.RequireReceive(t, events, receiveWait, "post-rewrite update")
	if ev.Type != EventContextUpdated {
		t.Fatalf("event type = %q, want %q", ev.Type, EventContextUpdated)
	}
	if ev.Context == nil || ev.Context.CurrentTokens != 1099 {
		t.Fatalf("event context = %+v, want current tokens 1099 from rewritten log", ev.Context)
	}
}

func TestLogDisappearsEmitsWaiting(t *testing.T) {
	c, clk, cfg := testCoordinator(t)
	events, cancel := c.Subscribe(8)
	defer cancel()

	workspace := "/work/alpha"
	dir := sessionlog.SessionDirectory(cfg.Paths.ProjectsRoot, workspace)
	logPath := writeLog(t, dir, logNameA, assistantRow("msg-0", clk.Now(), 100))
	if _, err := c.Track("alpha", workspace); err != nil {
		t.Fatalf("Track: %v", err)
	}
	testutil.RequireReceive(t, events, receiveWait, "initial snapshot event")

	if err := os.Remove(logPath); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	clk.WaitForTimers(1)
	clk.Advance(cfg.Debounce())

	ev := testutil.RequireReceive(t, events, receiveWait, "waiting event after removal")
	if ev.Type != EventContextWaiting {
		t.Fatalf("event type = %q, want %q", ev.Type, EventContextWaiting)
	}
}

func TestNewerLogTakesOver(t *testing.T) {
	c, clk, cfg := testCoordinator(t)
	events, cancel := c.Subscribe(8)
	defer cancel()

	workspace := "/work/alpha"
	dir := sessionlog.SessionDirectory(cfg.Paths.ProjectsRoot, workspace)
	pathA := writeLog(t, dir, logNameA, assistantRow("msg-a", clk.Now(), 100))
	aged := time.Now().Add(-2 * time.Minute)
	if err := os.Chtimes(pathA, aged, aged); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	if _, err := c.Track("alpha", workspace); err != nil {
		t.Fatalf("Track: %v", err)
	}
	ev := testutil.RequireReceive(t, events, receiveWait, "initial snapshot event")
	if got, want := ev.SessionID, strings.TrimSuffix(logNameA, ".jsonl"); got != want {
		t.Fatalf("SessionID = %q, want %q", got, want)
	}

	// A fresh session starts in the same workspace.
	writeLog(t, dir, logNameB, assistantRow("msg-b", clk.Now(), 700))

	clk.WaitForTimers(1)
	clk.Advance(cfg.Debounce())

	ev = testutil.RequireReceive(t, events, receiveWait, "takeover event")
	if got, want := ev.SessionID, strings.TrimSuffix(logNameB, ".jsonl"); got != want {
		t.Fatalf("SessionID = %q, want %q", got, want)
	}
	if ev.Context == nil || ev.Context.CurrentTokens != 800 {
		t.Fatalf("event context = %+v, want current tokens 800 from the new log", ev.Context)
	}
}

func TestSlowSubscriberDropsOldest(t *testing.T) {
	c, clk, cfg := testCoordinator(t)
	events, cancel := c.Subscribe(1)
	defer cancel()

	workspace := "/work/alpha"
	dir := sessionlog.SessionDirectory(cfg.Paths.ProjectsRoot, workspace)
	logPath := writeLog(t, dir, logNameA, assistantRow("msg-0", clk.Now(), 100))
	if _, err := c.Track("alpha", workspace); err != nil {
		t.Fatalf("Track: %v", err)
	}

	// The initial event fills the one-slot buffer; the next publish
	// must displace it rather than block the coordinator.
	appendLog(t, logPath,
		userRow(clk.Now()),
		assistantRow("msg-1", clk.Now(), 300),
	)
	clk.WaitForTimers(1)
	clk.Advance(cfg.Debounce())

	deadline := time.Now().Add(receiveWait)
	for {
		ev := testutil.RequireReceive(t, events, receiveWait, "latest event")
		if ev.Context != nil && ev.Context.MessageCount == 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("never observed the displaced update, last context %+v", ev.Context)
		}
	}
	testutil.RequireNoReceive(t, events, silenceWait, "only the newest event should remain")
}

func TestSnapshotOnDemand(t *testing.T) {
	c, clk, cfg := testCoordinator(t)

	workspace := "/work/alpha"
	dir := sessionlog.SessionDirectory(cfg.Paths.ProjectsRoot, workspace)
	writeLog(t, dir, logNameA,
		userRow(clk.Now().Add(-time.Minute)),
		assistantRow("msg-1", clk.Now(), 400),
	)

	snapshot, err := c.Snapshot("alpha", workspace)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snapshot.Context.CurrentTokens != 500 {
		t.Fatalf("CurrentTokens = %d, want 500", snapshot.Context.CurrentTokens)
	}
	if got, want := snapshot.SessionID, strings.TrimSuffix(logNameA, ".jsonl"); got != want {
		t.Fatalf("SessionID = %q, want %q", got, want)
	}
	if len(c.Tracked()) != 0 {
		t.Fatal("Snapshot must not register the workspace")
	}
}

func TestSnapshotNoSession(t *testing.T) {
	c, _, _ := testCoordinator(t)

	snapshot, err := c.Snapshot("ghost", "/work/ghost")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snapshot.LogPath != "" {
		t.Fatalf("LogPath = %q, want empty", snapshot.LogPath)
	}
	if snapshot.Context.CurrentTokens != 0 || snapshot.Context.MessageCount != 0 {
		t.Fatalf("context = %+v, want zero metrics", snapshot.Context)
	}
}

func TestRetrackReplaces(t *testing.T) {
	c, clk, cfg := testCoordinator(t)

	workspace := "/work/alpha"
	dir := sessionlog.SessionDirectory(cfg.Paths.ProjectsRoot, workspace)
	writeLog(t, dir, logNameA, assistantRow("msg-0", clk.Now(), 100))

	if _, err := c.Track("alpha", workspace); err != nil {
		t.Fatalf("Track: %v", err)
	}
	snapshot, err := c.Track("alpha", workspace)
	if err != nil {
		t.Fatalf("re-Track: %v", err)
	}
	if snapshot == nil || snapshot.Context.CurrentTokens != 200 {
		t.Fatalf("re-Track snapshot = %+v, want current tokens 200", snapshot)
	}
	if got := len(c.Tracked()); got != 1 {
		t.Fatalf("Tracked() returned %d entries, want 1", got)
	}
}

func TestTrackValidation(t *testing.T) {
	c, _, _ := testCoordinator(t)

	if _, err := c.Track("", "/work/alpha"); err == nil {
		t.Fatal("expected an error for an empty workspace ID")
	}
	if _, err := c.Track("alpha", ""); err == nil {
		t.Fatal("expected an error for an empty workspace path")
	}
}

func TestTrackedListing(t *testing.T) {
	c, clk, cfg := testCoordinator(t)

	workspace := "/work/alpha"
	dir := sessionlog.SessionDirectory(cfg.Paths.ProjectsRoot, workspace)
	writeLog(t, dir, logNameA, assistantRow("msg-0", clk.Now(), 150))
	if _, err := c.Track("alpha", workspace); err != nil {
		t.Fatalf("Track: %v", err)
	}

	tracked := c.Tracked()
	if len(tracked) != 1 {
		t.Fatalf("Tracked() returned %d entries, want 1", len(tracked))
	}
	entry := tracked[0]
	if entry.WorkspaceID != "alpha" || entry.WorkspacePath != workspace {
		t.Fatalf("entry identity = %q %q", entry.WorkspaceID, entry.WorkspacePath)
	}
	if got, want := entry.SessionID, strings.TrimSuffix(logNameA, ".jsonl"); got != want {
		t.Fatalf("SessionID = %q, want %q", got, want)
	}
	if entry.Context == nil || entry.Context.CurrentTokens != 250 {
		t.Fatalf("entry context = %+v, want current tokens 250", entry.Context)
	}
	if !entry.LastEventAt.Equal(monitorEpoch) {
		t.Fatalf("LastEventAt = %v, want %v", entry.LastEventAt, monitorEpoch)
	}
}

func TestCloseClosesSubscribers(t *testing.T) {
	c, clk, cfg := testCoordinator(t)
	events, _ := c.Subscribe(8)

	workspace := "/work/alpha"
	dir := sessionlog.SessionDirectory(cfg.Paths.ProjectsRoot, workspace)
	writeLog(t, dir, logNameA, assistantRow("msg-0", clk.Now(), 100))
	if _, err := c.Track("alpha", workspace); err != nil {
		t.Fatalf("Track: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	deadline := time.After(receiveWait)
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("subscriber channel never closed")
		}
	}
}

func TestSubscribeCancelIdempotent(t *testing.T) {
	c, _, _ := testCoordinator(t)

	_, cancel := c.Subscribe(1)
	cancel()
	cancel()
}

// testCoordinator builds a coordinator on a fake clock with a
// per-test projects root.
func testCoordinator(t *testing.T) (*Coordinator, *clock.FakeClock, *config.Config) {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.ProjectsRoot = filepath.Join(t.TempDir(), "projects")

	clk := clock.Fake(monitorEpoch)
	c, err := New(cfg, clk, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, clk, cfg
}

func writeLog(t *testing.T, directory, name string, rows ...string) string {
	t.Helper()
	if err := os.MkdirAll(directory, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	path := filepath.Join(directory, name)
	if err := os.WriteFile(path, []byte(strings.Join(rows, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func appendLog(t *testing.T, path string, rows ...string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(strings.Join(rows, "\n") + "\n"); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
}

func assistantRow(id string, at time.Time, output uint64) string {
	return fmt.Sprintf(`{"type":"assistant","timestamp":%q,"sessionId":"sess","message":{"id":%q,"role":"assistant","model":"claude-sonnet-4-5","content":[{"type":"text","text":"ok"}],"usage":{"input_tokens":100,"output_tokens":%d,"cache_read_input_tokens":0,"cache_creation_input_tokens":0}}}`,
		at.Format(time.RFC3339), id, output)
}

func userRow(at time.Time) string {
	return fmt.Sprintf(`{"type":"user","timestamp":%q,"sessionId":"sess","message":{"role":"user","content":"hello"}}`,
		at.Format(time.RFC3339))
}
