// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/vigil-works/vigil/lib/clock"
	"github.com/vigil-works/vigil/lib/config"
	"github.com/vigil-works/vigil/lib/contextmeter"
	"github.com/vigil-works/vigil/lib/sessionlog"
)

// Coordinator owns the tracked-workspace map and the shared
// filesystem watcher. One instance per process.
type Coordinator struct {
	cfg    *config.Config
	clk    clock.Clock
	logger *slog.Logger
	calc   *contextmeter.Calculator
	tailer *sessionlog.Tailer

	watcher *fsnotify.Watcher
	runDone chan struct{}

	mu          sync.Mutex
	closed      bool
	workspaces  map[string]*workspaceState
	watchRefs   map[string]int
	subscribers map[int]chan Event
	nextSubID   int
}

// New returns a running Coordinator. A nil clock uses the system
// clock; a nil logger discards.
func New(cfg *config.Config, clk clock.Clock, logger *slog.Logger) (*Coordinator, error) {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("monitor: creating watcher: %w", err)
	}

	c := &Coordinator{
		cfg:         cfg,
		clk:         clk,
		logger:      logger,
		calc:        contextmeter.New(cfg, clk, logger),
		tailer:      sessionlog.NewTailer(logger),
		watcher:     watcher,
		runDone:     make(chan struct{}),
		workspaces:  make(map[string]*workspaceState),
		watchRefs:   make(map[string]int),
		subscribers: make(map[int]chan Event),
	}
	go c.run()
	return c, nil
}

// Track starts watching a workspace. When a session log already
// exists the initial snapshot is returned and emitted; otherwise the
// return is nil and a context-waiting event is emitted while the
// directory watch waits for first activity. Re-tracking an
// already-tracked workspace tears down its previous state first.
func (c *Coordinator) Track(workspaceID, workspacePath string) (*Snapshot, error) {
	if workspaceID == "" {
		return nil, fmt.Errorf("monitor: workspace ID is required")
	}
	if workspacePath == "" {
		return nil, fmt.Errorf("monitor: workspace path is required")
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("monitor: coordinator is closed")
	}
	previous := c.workspaces[workspaceID]
	c.mu.Unlock()
	if previous != nil {
		c.Untrack(workspaceID)
	}

	// The projects root is the fallback watch target while the
	// session directory does not exist; make sure it is watchable.
	if err := os.MkdirAll(c.cfg.Paths.ProjectsRoot, 0o755); err != nil {
		return nil, fmt.Errorf("monitor: creating projects root: %w", err)
	}

	st := &workspaceState{
		id:            workspaceID,
		workspacePath: workspacePath,
		sessionDir:    sessionlog.SessionDirectory(c.cfg.Paths.ProjectsRoot, workspacePath),
		events:        make(chan struct{}, 1),
		fire:          make(chan struct{}, 1),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("monitor: coordinator is closed")
	}
	c.workspaces[workspaceID] = st
	c.mu.Unlock()

	snapshot, err := c.establish(st)
	if err != nil {
		// Setup trouble is surfaced as an error event; the entry
		// survives so the next filesystem event or re-track retries.
		c.logger.Warn("workspace setup failed",
			"workspace", workspaceID,
			"error", err)
		c.publish(st, Event{
			Type:        EventError,
			WorkspaceID: st.id,
			Message:     err.Error(),
			At:          c.clk.Now(),
		})
	}

	go c.workspaceLoop(st)

	c.logger.Info("tracking workspace",
		"workspace", workspaceID,
		"path", workspacePath,
		"session_dir", st.sessionDir,
		"log_found", snapshot != nil)
	return snapshot, nil
}

// establish sets up the initial watch for a freshly tracked
// workspace and, when a log already exists, computes and emits the
// first snapshot.
func (c *Coordinator) establish(st *workspaceState) (*Snapshot, error) {
	logPath, err := sessionlog.FindActiveLog(st.sessionDir, c.logger)
	if err != nil {
		return nil, err
	}

	if logPath == "" {
		if err := c.watchForArrival(st); err != nil {
			return nil, err
		}
		c.publish(st, Event{
			Type:        EventContextWaiting,
			WorkspaceID: st.id,
			At:          c.clk.Now(),
		})
		return nil, nil
	}

	// The directory watch is added before the reads below, so
	// anything written after this point surfaces as an event.
	if _, err := c.swapWatch(st, st.sessionDir); err != nil {
		return nil, err
	}

	ref, err := newLogRef(logPath)
	if err != nil {
		return nil, err
	}
	if _, offset, err := c.tailer.ReadNewLines(ref.path, 0); err == nil {
		ref.offset = offset
	}
	st.ref = ref

	snapshot, err := c.snapshotFor(st.id, st.workspacePath, ref.path, ref.sessionID)
	if err != nil {
		return nil, err
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
	return snapshot, nil
}

// Untrack stops watching a workspace. Idempotent. When it returns,
// no further events for the workspace will be delivered.
func (c *Coordinator) Untrack(workspaceID string) {
	c.mu.Lock()
	st := c.workspaces[workspaceID]
	if st == nil {
		c.mu.Unlock()
		return
	}
	delete(c.workspaces, workspaceID)
	c.releaseWatchLocked(st.watchedDir)
	st.watchedDir = ""
	c.mu.Unlock()

	close(st.stop)
	<-st.done

	c.logger.Info("untracked workspace", "workspace", workspaceID)
}

// Snapshot computes on-demand metrics for a workspace without
// touching watcher state; the workspace need not be tracked.
func (c *Coordinator) Snapshot(workspaceID, workspacePath string) (*Snapshot, error) {
	if workspacePath == "" {
		return nil, fmt.Errorf("monitor: workspace path is required")
	}

	directory := sessionlog.SessionDirectory(c.cfg.Paths.ProjectsRoot, workspacePath)
	logPath, err := sessionlog.FindActiveLog(directory, c.logger)
	if err != nil {
		return nil, err
	}
	return c.snapshotFor(workspaceID, workspacePath, logPath, sessionIDFromPath(logPath))
}

func (c *Coordinator) snapshotFor(workspaceID, workspacePath, logPath, sessionID string) (*Snapshot, error) {
	context, err := c.calc.Context(logPath, workspacePath)
	if err != nil {
		return nil, err
	}
	usage, err := c.calc.UsageWindow(logPath, c.cfg.PlanWindow())
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		WorkspaceID:   workspaceID,
		WorkspacePath: workspacePath,
		LogPath:       logPath,
		SessionID:     sessionID,
		Context:       context,
		Usage:         usage,
	}, nil
}

// Tracked lists the tracked workspaces with their latest metrics.
func (c *Coordinator) Tracked() []TrackedWorkspace {
	c.mu.Lock()
	defer c.mu.Unlock()

	list := make([]TrackedWorkspace, 0, len(c.workspaces))
	for _, st := range c.workspaces {
		list = append(list, TrackedWorkspace{
			WorkspaceID:   st.id,
			WorkspacePath: st.workspacePath,
			LogPath:       st.lastLogPath,
			SessionID:     st.lastSessionID,
			Context:       st.lastContext,
			Usage:         st.lastUsage,
			LastEventAt:   st.lastEventAt,
		})
	}
	return list
}

// Subscribe registers an event consumer. The returned cancel func
// unregisters it and closes the channel. A full buffer drops the
// subscriber's oldest pending event; the coordinator never blocks on
// a slow consumer.
func (c *Coordinator) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = ch
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		if existing, ok := c.subscribers[id]; ok {
			delete(c.subscribers, id)
			close(existing)
		}
		c.mu.Unlock()
	}
	return ch, cancel
}

// Close untracks every workspace and stops the event loop.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	ids := make([]string, 0, len(c.workspaces))
	for id := range c.workspaces {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		c.Untrack(id)
	}

	err := c.watcher.Close()
	<-c.runDone

	c.mu.Lock()
	for id, ch := range c.subscribers {
		delete(c.subscribers, id)
		close(ch)
	}
	c.mu.Unlock()
	return err
}

// publish delivers an event to all subscribers and records it as the
// workspace's latest state. Events for an already-untracked workspace
// are dropped.
func (c *Coordinator) publish(st *workspaceState, event Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.workspaces[st.id] != st {
		return
	}

	st.lastEventAt = event.At
	switch event.Type {
	case EventContextUpdated:
		st.lastLogPath = event.LogPath
		st.lastSessionID = event.SessionID
		st.lastContext = event.Context
		st.lastUsage = event.Usage
	case EventContextWaiting:
		st.lastLogPath = ""
		st.lastSessionID = ""
	}

	for _, ch := range c.subscribers {
		select {
		case ch <- event:
		default:
			// Full: drop the oldest pending event to make room.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- event:
			default:
			}
		}
	}
}

// run is the fsnotify pump: it routes raw filesystem events to
// workspace channels and exits when the watcher closes.
func (c *Coordinator) run() {
	defer close(c.runDone)
	for {
		select {
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			c.route(event)
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.logger.Warn("filesystem watcher error", "error", err)
		}
	}
}

// route nudges every workspace the event may concern. The filter uses
// only fields fixed at Track time; the handling pass re-derives
// everything else itself.
func (c *Coordinator) route(event fsnotify.Event) {
	relevant := event.Has(fsnotify.Create) || event.Has(fsnotify.Write) ||
		event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove)
	if !relevant {
		return
	}

	parent := filepath.Dir(event.Name)

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, st := range c.workspaces {
		inSessionDir := parent == st.sessionDir && strings.HasSuffix(event.Name, sessionlog.LogExtension)
		isSessionDir := event.Name == st.sessionDir
		if inSessionDir || isSessionDir {
			nudge(st.events)
		}
	}
}

// nudge posts a payload-free notification without blocking; a
// pending one already says everything this one would.
func nudge(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// swapWatch moves the workspace's single directory watch to target.
// Reports whether the watch actually moved, so callers can re-check
// for activity that happened before the new watch existed.
func (c *Coordinator) swapWatch(st *workspaceState, target string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.workspaces[st.id] != st {
		return false, nil
	}
	if st.watchedDir == target {
		return false, nil
	}

	if err := c.acquireWatchLocked(target); err != nil {
		return false, err
	}
	c.releaseWatchLocked(st.watchedDir)
	st.watchedDir = target
	return true, nil
}

// acquireWatchLocked adds dir to the shared watcher, refcounted:
// workspaces waiting on the same directory share one kernel watch.
func (c *Coordinator) acquireWatchLocked(dir string) error {
	if c.watchRefs[dir] == 0 {
		if err := c.watcher.Add(dir); err != nil {
			return fmt.Errorf("monitor: watching %s: %w", dir, err)
		}
	}
	c.watchRefs[dir]++
	return nil
}

func (c *Coordinator) releaseWatchLocked(dir string) {
	if dir == "" {
		return
	}
	c.watchRefs[dir]--
	if c.watchRefs[dir] <= 0 {
		delete(c.watchRefs, dir)
		// Removal can fail if the directory is already gone; the
		// kernel dropped the watch with it.
		_ = c.watcher.Remove(dir)
	}
}

func sessionIDFromPath(logPath string) string {
	if logPath == "" {
		return ""
	}
	return strings.TrimSuffix(filepath.Base(logPath), sessionlog.LogExtension)
}
