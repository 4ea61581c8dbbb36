// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/vigil-works/vigil/lib/clock"
	"github.com/vigil-works/vigil/lib/contextmeter"
	"github.com/vigil-works/vigil/lib/sessionlog"
)

// workspaceState is the per-workspace slot in the coordinator map.
// The channels and sessionDir are fixed at Track time; ref is owned
// by the workspace goroutine; the last* fields are guarded by the
// coordinator mutex.
type workspaceState struct {
	id            string
	workspacePath string
	sessionDir    string

	events chan struct{}
	fire   chan struct{}
	stop   chan struct{}
	done   chan struct{}

	watchedDir string

	ref *logRef

	lastLogPath   string
	lastSessionID string
	lastContext   *contextmeter.ContextMetrics
	lastUsage     *contextmeter.UsageWindowMetrics
	lastEventAt   time.Time
}

// logRef pins the session log the workspace is currently following.
// The fingerprint distinguishes append growth from in-place rewrite;
// primed records that at least one snapshot was emitted for the file.
type logRef struct {
	path        string
	sessionID   string
	offset      int64
	fingerprint sessionlog.Fingerprint
	primed      bool
}

func newLogRef(logPath string) (*logRef, error) {
	fingerprint, err := sessionlog.TakeFingerprint(logPath)
	if err != nil {
		return nil, err
	}
	return &logRef{
		path:        logPath,
		sessionID:   sessionIDFromPath(logPath),
		fingerprint: fingerprint,
	}, nil
}

// workspaceLoop debounces filesystem nudges and runs the handling
// pass. A nudge arms the debounce timer or pushes its deadline out;
// the pass runs only once the workspace has been quiet for the full
// debounce interval.
func (c *Coordinator) workspaceLoop(st *workspaceState) {
	defer close(st.done)

	debounce := c.cfg.Debounce()
	var pending *clock.Timer
	defer func() {
		if pending != nil {
			pending.Stop()
		}
	}()

	for {
		select {
		case <-st.stop:
			return
		case <-st.events:
			if pending == nil {
				pending = c.clk.AfterFunc(debounce, func() { nudge(st.fire) })
			} else {
				pending.Reset(debounce)
			}
		case <-st.fire:
			c.handle(st)
		}
	}
}

// handle is the debounced handling pass. It re-derives everything
// from the filesystem: which log is active, whether the watch sits on
// the right directory, whether the file rotated, and what grew. The
// pass is idempotent, so running it once for a burst of events or an
// extra time after a stale nudge is fine.
func (c *Coordinator) handle(st *workspaceState) {
	logPath, err := sessionlog.FindActiveLog(st.sessionDir, c.logger)
	if err != nil {
		c.publishError(st, err)
		return
	}

	if logPath == "" {
		if err := c.watchForArrival(st); err != nil {
			c.publishError(st, err)
			return
		}
		if st.ref != nil {
			// The log we were following is gone.
			st.ref = nil
			c.publish(st, Event{
				Type:        EventContextWaiting,
				WorkspaceID: st.id,
				At:          c.clk.Now(),
			})
		}
		return
	}

	moved, err := c.swapWatch(st, st.sessionDir)
	if err != nil {
		c.publishError(st, err)
		return
	}

	if err := c.refreshRef(st, logPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Lost a race with deletion; the next pass re-resolves.
			nudge(st.events)
			return
		}
		c.publishError(st, err)
		return
	}

	ref := st.ref
	lines, offset, err := c.tailer.ReadNewLines(ref.path, ref.offset)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			nudge(st.events)
			return
		}
		c.publishError(st, err)
		return
	}
	changed := offset != ref.offset || len(lines) > 0
	ref.offset = offset

	if ref.primed && !changed {
		if moved {
			nudge(st.events)
		}
		return
	}

	snapshot, err := c.snapshotFor(st.id, st.workspacePath, ref.path, ref.sessionID)
	if err != nil {
		c.publishError(st, err)
		return
	}
	ref.primed = true
	c.publish(st, Event{
		Type:        EventContextUpdated,
		WorkspaceID: st.id,
		SessionID:   ref.sessionID,
		LogPath:     ref.path,
		Context:     &snapshot.Context,
		Usage:       &snapshot.Usage,
		At:          c.clk.Now(),
	})

	if moved {
		// The watch covers this directory only from now on; re-check
		// once in case something landed during the swap.
		nudge(st.events)
	}
}

// refreshRef points st.ref at logPath, reusing the existing ref when
// it still describes the same file contents. A changed path or a
// failed fingerprint match (rewrite, truncation) resets the ref so
// the next read starts from byte zero.
func (c *Coordinator) refreshRef(st *workspaceState, logPath string) error {
	if st.ref != nil && st.ref.path == logPath {
		ok, err := st.ref.fingerprint.Matches(logPath)
		if err != nil {
			return err
		}
		if ok {
			if st.ref.fingerprint.IsZero() {
				// The file had no content when the fingerprint was
				// taken; retake it now that bytes may exist.
				fingerprint, err := sessionlog.TakeFingerprint(logPath)
				if err != nil {
					return err
				}
				st.ref.fingerprint = fingerprint
			}
			return nil
		}
		c.logger.Info("session log rewritten, resetting position",
			"workspace", st.id,
			"log", logPath)
	} else if st.ref != nil {
		c.logger.Info("active session log changed",
			"workspace", st.id,
			"previous", st.ref.path,
			"log", logPath)
	}

	ref, err := newLogRef(logPath)
	if err != nil {
		return err
	}
	st.ref = ref
	return nil
}

// watchForArrival parks the watch where the first sign of a session
// will appear: the session directory when it exists, otherwise the
// projects root so the directory's creation is seen.
func (c *Coordinator) watchForArrival(st *workspaceState) error {
	target := st.sessionDir
	if _, err := os.Stat(target); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("monitor: checking session directory: %w", err)
		}
		target = c.cfg.Paths.ProjectsRoot
	}
	moved, err := c.swapWatch(st, target)
	if err != nil {
		return err
	}
	if moved {
		nudge(st.events)
	}
	return nil
}

func (c *Coordinator) publishError(st *workspaceState, err error) {
	c.logger.Warn("workspace update failed",
		"workspace", st.id,
		"error", err)
	c.publish(st, Event{
		Type:        EventError,
		WorkspaceID: st.id,
		Message:     err.Error(),
		At:          c.clk.Now(),
	})
}
