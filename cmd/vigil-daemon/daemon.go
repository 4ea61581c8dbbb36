// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vigil-works/vigil/lib/clock"
	"github.com/vigil-works/vigil/lib/codec"
	"github.com/vigil-works/vigil/lib/compaction"
	"github.com/vigil-works/vigil/lib/config"
	"github.com/vigil-works/vigil/lib/contextmeter"
	"github.com/vigil-works/vigil/lib/schema"
	"github.com/vigil-works/vigil/lib/service"
	"github.com/vigil-works/vigil/lib/sessionlog"
	"github.com/vigil-works/vigil/lib/version"
	"github.com/vigil-works/vigil/monitor"
)

// recordTimeout bounds a single history write.
const recordTimeout = 5 * time.Second

// compactionTimeout bounds a background summarizer run. The summarizer
// shells out to an external CLI, which can hang on network trouble.
const compactionTimeout = 5 * time.Minute

// Daemon wires the watch coordinator, the history store, and the
// per-workspace compaction engines behind the socket API.
type Daemon struct {
	cfg         *config.Config
	clk         clock.Clock
	logger      *slog.Logger
	coordinator *monitor.Coordinator
	store       *Store
	calc        *contextmeter.Calculator
	startedAt   time.Time

	eventsPublished      atomic.Uint64
	samplesRecorded      atomic.Uint64
	compactionsTriggered atomic.Uint64

	// workspaceMu guards the compaction engines, the history write
	// throttle state, and the retained compaction summaries.
	workspaceMu sync.Mutex
	compactors  map[string]*compactor
	lastSample  map[string]time.Time
	summaries   map[string]schema.CompactionSummary

	// subscriberMu guards the event stream fan-out set.
	subscriberMu sync.RWMutex
	subscribers  map[*streamSubscriber]struct{}
}

// compactor pairs one workspace's compaction policy with an in-flight
// guard. Each workspace gets its own engine because the summarizer
// runs with the workspace directory as its working directory.
type compactor struct {
	workspacePath string
	policy        *compaction.Policy

	mu       sync.Mutex
	inFlight bool
}

// tryAcquire claims the engine for one summarizer run. Returns false
// when a run is already in flight.
func (c *compactor) tryAcquire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight {
		return false
	}
	c.inFlight = true
	return true
}

func (c *compactor) release() {
	c.mu.Lock()
	c.inFlight = false
	c.mu.Unlock()
}

// NewDaemon assembles the daemon around an already-running coordinator
// and an open history store.
func NewDaemon(cfg *config.Config, coordinator *monitor.Coordinator, store *Store, clk clock.Clock, logger *slog.Logger) *Daemon {
	return &Daemon{
		cfg:         cfg,
		clk:         clk,
		logger:      logger,
		coordinator: coordinator,
		store:       store,
		calc:        contextmeter.New(cfg, clk, logger),
		startedAt:   clk.Now(),
		compactors:  make(map[string]*compactor),
		lastSample:  make(map[string]time.Time),
		summaries:   make(map[string]schema.CompactionSummary),
		subscribers: make(map[*streamSubscriber]struct{}),
	}
}

// registerActions binds every socket action to its handler.
func (d *Daemon) registerActions(server *service.SocketServer) {
	server.Handle("status", d.handleStatus)
	server.Handle("track", d.handleTrack)
	server.Handle("untrack", d.handleUntrack)
	server.Handle("context", d.handleContext)
	server.Handle("usage", d.handleUsage)
	server.Handle("workspaces", d.handleWorkspaces)
	server.Handle("history", d.handleHistory)
	server.Handle("compact", d.handleCompact)
	server.Handle("summary", d.handleSummary)
	server.HandleStream("subscribe", d.handleSubscribe)
}

func (d *Daemon) handleStatus(ctx context.Context, raw []byte) (any, error) {
	stats, err := d.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading store stats: %w", err)
	}

	d.subscriberMu.RLock()
	subscribers := len(d.subscribers)
	d.subscriberMu.RUnlock()

	return schema.DaemonStatus{
		Version:              version.Info(),
		PID:                  os.Getpid(),
		StartedAt:            d.startedAt.UTC().Format(time.RFC3339),
		UptimeSeconds:        uint64(d.clk.Now().Sub(d.startedAt) / time.Second),
		TrackedWorkspaces:    len(d.coordinator.Tracked()),
		Subscribers:          subscribers,
		EventsPublished:      d.eventsPublished.Load(),
		SamplesRecorded:      d.samplesRecorded.Load(),
		CompactionsTriggered: d.compactionsTriggered.Load(),
		HistoryPath:          d.cfg.HistoryDBPath(),
		HistoryPartitions:    stats.PartitionCount,
		HistorySamples:       stats.SampleCount,
		HistorySizeBytes:     stats.SizeBytes,
	}, nil
}

func (d *Daemon) handleTrack(ctx context.Context, raw []byte) (any, error) {
	var request struct {
		WorkspaceID   string `cbor:"workspace_id"`
		WorkspacePath string `cbor:"workspace_path"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding track request: %w", err)
	}
	if request.WorkspaceID == "" {
		return nil, fmt.Errorf("missing required field: workspace_id")
	}
	if request.WorkspacePath == "" {
		return nil, fmt.Errorf("missing required field: workspace_path")
	}

	// The engine must exist before the workspace's first event reaches
	// the pump.
	d.ensureCompactor(request.WorkspaceID, request.WorkspacePath)

	snapshot, err := d.coordinator.Track(request.WorkspaceID, request.WorkspacePath)
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (d *Daemon) handleUntrack(ctx context.Context, raw []byte) (any, error) {
	var request struct {
		WorkspaceID string `cbor:"workspace_id"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding untrack request: %w", err)
	}
	if request.WorkspaceID == "" {
		return nil, fmt.Errorf("missing required field: workspace_id")
	}

	d.coordinator.Untrack(request.WorkspaceID)

	d.workspaceMu.Lock()
	delete(d.compactors, request.WorkspaceID)
	delete(d.lastSample, request.WorkspaceID)
	delete(d.summaries, request.WorkspaceID)
	d.workspaceMu.Unlock()

	return nil, nil
}

func (d *Daemon) handleContext(ctx context.Context, raw []byte) (any, error) {
	var request struct {
		WorkspaceID   string `cbor:"workspace_id"`
		WorkspacePath string `cbor:"workspace_path"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding context request: %w", err)
	}
	if request.WorkspacePath == "" {
		return nil, fmt.Errorf("missing required field: workspace_path")
	}

	snapshot, err := d.coordinator.Snapshot(request.WorkspaceID, request.WorkspacePath)
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (d *Daemon) handleUsage(ctx context.Context, raw []byte) (any, error) {
	var request struct {
		WorkspacePath string `cbor:"workspace_path"`
		WindowHours   int    `cbor:"window_hours"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding usage request: %w", err)
	}
	if request.WorkspacePath == "" {
		return nil, fmt.Errorf("missing required field: workspace_path")
	}

	window := d.cfg.PlanWindow()
	if request.WindowHours > 0 {
		window = time.Duration(request.WindowHours) * time.Hour
	}

	directory := sessionlog.SessionDirectory(d.cfg.Paths.ProjectsRoot, request.WorkspacePath)
	logPath, err := sessionlog.FindActiveLog(directory, d.logger)
	if err != nil {
		return nil, err
	}
	if logPath == "" {
		// No session yet. Zero metrics, same as an empty log.
		return contextmeter.UsageWindowMetrics{}, nil
	}

	metrics, err := d.calc.UsageWindow(logPath, window)
	if err != nil {
		return nil, err
	}
	return metrics, nil
}

func (d *Daemon) handleWorkspaces(ctx context.Context, raw []byte) (any, error) {
	tracked := d.coordinator.Tracked()
	infos := make([]schema.WorkspaceInfo, 0, len(tracked))
	for _, workspace := range tracked {
		info := schema.WorkspaceInfo{
			WorkspaceID:   workspace.WorkspaceID,
			WorkspacePath: workspace.WorkspacePath,
			SessionID:     workspace.SessionID,
			LogPath:       workspace.LogPath,
			Context:       workspace.Context,
			Usage:         workspace.Usage,
		}
		if !workspace.LastEventAt.IsZero() {
			info.LastEventAt = workspace.LastEventAt.UnixNano()
		}
		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].WorkspacePath < infos[j].WorkspacePath
	})

	return infos, nil
}

func (d *Daemon) handleHistory(ctx context.Context, raw []byte) (any, error) {
	var request struct {
		WorkspaceID string `cbor:"workspace_id"`
		FromNanos   int64  `cbor:"from_nanos"`
		ToNanos     int64  `cbor:"to_nanos"`
		Limit       int    `cbor:"limit"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding history request: %w", err)
	}

	samples, err := d.store.Samples(ctx, request.WorkspaceID, request.FromNanos, request.ToNanos, request.Limit)
	if err != nil {
		return nil, err
	}
	return samples, nil
}

// handleCompact evaluates the policy for a tracked workspace and, when
// it fires, runs the summarizer synchronously so the caller sees the
// outcome. A concurrent background run wins the in-flight guard; the
// caller gets the decision with an explanatory error instead.
func (d *Daemon) handleCompact(ctx context.Context, raw []byte) (any, error) {
	var request struct {
		WorkspaceID string `cbor:"workspace_id"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding compact request: %w", err)
	}
	if request.WorkspaceID == "" {
		return nil, fmt.Errorf("missing required field: workspace_id")
	}

	entry, tracked := d.trackedWorkspace(request.WorkspaceID)
	if !tracked {
		return nil, fmt.Errorf("workspace %q is not tracked", request.WorkspaceID)
	}
	if entry.LogPath == "" || entry.Context == nil {
		return schema.CompactResult{
			Decision: compaction.DecisionNone.String(),
			Error:    "no active session log",
		}, nil
	}

	engine := d.ensureCompactor(entry.WorkspaceID, entry.WorkspacePath)
	decision := engine.policy.Evaluate(entry.SessionID, *entry.Context)
	result := schema.CompactResult{Decision: decision.String()}
	if decision != compaction.DecisionCompact {
		return result, nil
	}
	if !engine.tryAcquire() {
		result.Error = "compaction already in flight"
		return result, nil
	}
	defer engine.release()

	messages, err := sessionlog.ReadTranscript(entry.LogPath, 0)
	if err != nil {
		result.Error = err.Error()
		return result, nil
	}

	result.Triggered = true
	d.compactionsTriggered.Add(1)
	runCtx, cancel := context.WithTimeout(ctx, compactionTimeout)
	defer cancel()
	summary, err := engine.policy.Run(runCtx, entry.SessionID, messages)
	if err != nil {
		result.Error = err.Error()
		return result, nil
	}
	result.Summary = summary
	d.retainSummary(entry.WorkspaceID, entry.SessionID, summary)
	return result, nil
}

// handleSummary returns the most recent compaction summary retained
// for a workspace. The zero value means no run has produced one yet.
func (d *Daemon) handleSummary(ctx context.Context, raw []byte) (any, error) {
	var request struct {
		WorkspaceID string `cbor:"workspace_id"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding summary request: %w", err)
	}
	if request.WorkspaceID == "" {
		return nil, fmt.Errorf("missing required field: workspace_id")
	}
	if _, tracked := d.trackedWorkspace(request.WorkspaceID); !tracked {
		return nil, fmt.Errorf("workspace %q is not tracked", request.WorkspaceID)
	}

	d.workspaceMu.Lock()
	retained, exists := d.summaries[request.WorkspaceID]
	d.workspaceMu.Unlock()
	if !exists {
		return schema.CompactionSummary{WorkspaceID: request.WorkspaceID}, nil
	}
	return retained, nil
}

// retainSummary stores a successful summarizer result for the summary
// action. Only the most recent one per workspace is kept; untrack
// discards it.
func (d *Daemon) retainSummary(workspaceID, sessionID, summary string) {
	d.workspaceMu.Lock()
	d.summaries[workspaceID] = schema.CompactionSummary{
		WorkspaceID: workspaceID,
		SessionID:   sessionID,
		Summary:     summary,
		ProducedAt:  d.clk.Now().UnixNano(),
	}
	d.workspaceMu.Unlock()
}

func (d *Daemon) trackedWorkspace(workspaceID string) (monitor.TrackedWorkspace, bool) {
	for _, workspace := range d.coordinator.Tracked() {
		if workspace.WorkspaceID == workspaceID {
			return workspace, true
		}
	}
	return monitor.TrackedWorkspace{}, false
}

// ensureCompactor returns the workspace's compaction engine, building
// it on first use. A workspace re-tracked at a different path gets a
// fresh engine so the summarizer runs in the right directory.
func (d *Daemon) ensureCompactor(workspaceID, workspacePath string) *compactor {
	d.workspaceMu.Lock()
	defer d.workspaceMu.Unlock()

	if engine, exists := d.compactors[workspaceID]; exists && engine.workspacePath == workspacePath {
		return engine
	}
	engine := &compactor{
		workspacePath: workspacePath,
		policy: compaction.New(
			d.cfg,
			compaction.NewCLISummarizer(workspacePath, d.logger),
			d.clk,
			d.logger,
		),
	}
	d.compactors[workspaceID] = engine
	return engine
}

// runEvents consumes coordinator events until the channel closes. Every
// event fans out to stream subscribers; context updates additionally
// feed the history store and the compaction engines.
func (d *Daemon) runEvents(events <-chan monitor.Event) {
	for event := range events {
		d.eventsPublished.Add(1)
		d.fanOut(frameFromEvent(event))
		if event.Type != monitor.EventContextUpdated {
			continue
		}
		d.recordSample(event)
		d.maybeCompact(event)
	}
}

func frameFromEvent(event monitor.Event) schema.EventFrame {
	return schema.EventFrame{
		Type:        string(event.Type),
		WorkspaceID: event.WorkspaceID,
		SessionID:   event.SessionID,
		LogPath:     event.LogPath,
		Context:     event.Context,
		Usage:       event.Usage,
		Message:     event.Message,
		At:          event.At.UnixNano(),
	}
}

// recordSample persists one usage row for a context update, throttled
// per workspace so bursts of log appends do not flood the store.
func (d *Daemon) recordSample(event monitor.Event) {
	if event.Context == nil || event.Usage == nil {
		return
	}

	interval := d.cfg.SampleMinInterval()
	d.workspaceMu.Lock()
	if last, seen := d.lastSample[event.WorkspaceID]; seen && event.At.Sub(last) < interval {
		d.workspaceMu.Unlock()
		return
	}
	d.lastSample[event.WorkspaceID] = event.At
	d.workspaceMu.Unlock()

	sample := schema.UsageSample{
		WorkspaceID:     event.WorkspaceID,
		Timestamp:       event.At.UnixNano(),
		CurrentTokens:   event.Context.CurrentTokens,
		WindowTokens:    event.Usage.TotalTokens,
		ContextPercent:  event.Context.Percentage,
		PlanPercent:     event.Usage.PercentageOfPlan,
		BurnRatePerHour: event.Usage.BurnRatePerHour,
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := d.store.RecordSample(ctx, sample); err != nil {
		d.logger.Error("failed to record usage sample",
			"workspace_id", event.WorkspaceID,
			"error", err,
		)
		return
	}
	d.samplesRecorded.Add(1)
}

// maybeCompact evaluates the compaction policy for a context update and
// starts a background summarizer run when it fires. The in-flight guard
// keeps runs from stacking while one is still going.
func (d *Daemon) maybeCompact(event monitor.Event) {
	if event.Context == nil || event.LogPath == "" {
		return
	}

	d.workspaceMu.Lock()
	engine := d.compactors[event.WorkspaceID]
	d.workspaceMu.Unlock()
	if engine == nil {
		return
	}

	if engine.policy.Evaluate(event.SessionID, *event.Context) != compaction.DecisionCompact {
		return
	}
	if !engine.tryAcquire() {
		return
	}
	go d.runCompaction(engine, event)
}

func (d *Daemon) runCompaction(engine *compactor, event monitor.Event) {
	defer engine.release()

	messages, err := sessionlog.ReadTranscript(event.LogPath, 0)
	if err != nil {
		d.logger.Error("failed to read transcript for compaction",
			"workspace_id", event.WorkspaceID,
			"log", event.LogPath,
			"error", err,
		)
		return
	}

	d.compactionsTriggered.Add(1)
	ctx, cancel := context.WithTimeout(context.Background(), compactionTimeout)
	defer cancel()
	summary, err := engine.policy.Run(ctx, event.SessionID, messages)
	if err != nil {
		d.logger.Error("compaction run failed",
			"workspace_id", event.WorkspaceID,
			"session_id", event.SessionID,
			"error", err,
		)
		return
	}
	d.retainSummary(event.WorkspaceID, event.SessionID, summary)
	d.logger.Info("compaction summary produced",
		"workspace_id", event.WorkspaceID,
		"session_id", event.SessionID,
		"summary_chars", len(summary),
	)
}
