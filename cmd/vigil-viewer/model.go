// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/junegunn/fzf/src/util"

	"github.com/vigil-works/vigil/lib/schema"
	"github.com/vigil-works/vigil/lib/service"
)

const (
	// chromeLines is the fixed vertical chrome: header, separator,
	// help line.
	chromeLines = 3

	// listPaneRatio is the share of the width the workspace list gets,
	// bounded so neither pane collapses on odd terminal sizes.
	listPaneRatio  = 0.42
	minListWidth   = 24
	minDetailWidth = 20

	// fetchTimeout bounds the daemon calls issued from commands.
	fetchTimeout = 10 * time.Second

	// historyWindow and historySampleLimit shape the history query for
	// the detail pane. Samples come back oldest first, so recency is
	// enforced by the window, not the limit.
	historyWindow      = 6 * time.Hour
	historySampleLimit = 2000

	// detailRefreshInterval throttles history refetches driven by live
	// frames for the selected workspace.
	detailRefreshInterval = 15 * time.Second

	// noticeDuration is how long a transient notice owns the help line.
	noticeDuration = 5 * time.Second

	// detailWheelLines is how far one wheel step scrolls the detail
	// body.
	detailWheelLines = 3
)

type focusArea int

const (
	focusList focusArea = iota
	focusDetail
	focusFilter
)

type connState int

const (
	connConnecting connState = iota
	connLive
	connDown
)

type streamEventMsg struct {
	event streamEvent
}

type workspacesMsg struct {
	infos []schema.WorkspaceInfo
	err   error
}

type detailDataMsg struct {
	workspaceID string
	samples     []schema.UsageSample
	summary     schema.CompactionSummary
	err         error
}

type heatTickMsg struct{}

// noticeExpireMsg clears the notice it was scheduled for; a newer
// notice carries a higher id and survives stale expirations.
type noticeExpireMsg struct {
	id int
}

// model is the top-level bubbletea model: a filterable workspace list
// on the left, the selected workspace's detail on the right, fed by
// the daemon subscription.
type model struct {
	client *service.Client
	logger *slog.Logger
	theme  Theme
	keys   keyMap

	streamer *streamer

	width     int
	height    int
	listWidth int
	ready     bool

	conn      connState
	connError error

	// workspaces is the authoritative daemon list; entries is the
	// filtered view the cursor moves over.
	workspaces []schema.WorkspaceInfo
	entries    []listEntry
	cursor     int
	offset     int

	filter filterModel
	slab   *util.Slab

	detail          detailPane
	lastDetailFetch map[string]time.Time

	heat        *heatTracker
	heatTicking bool

	focus focusArea

	notice   string
	noticeID int

	// preselect is the workspace path to select once the first list
	// arrives, from the --workspace flag.
	preselect string

	now time.Time
}

func newModel(client *service.Client, compactAt float64, planWindow time.Duration, preselect string, logger *slog.Logger) model {
	return model{
		client:          client,
		logger:          logger,
		theme:           DefaultTheme,
		keys:            defaultKeyMap(),
		streamer:        newStreamer(client, logger),
		slab:            newFuzzySlab(),
		detail:          newDetailPane(DefaultTheme, compactAt, planWindow),
		lastDetailFetch: make(map[string]time.Time),
		heat:            newHeatTracker(),
		conn:            connConnecting,
		preselect:       preselect,
		now:             time.Now(),
	}
}

func (m model) Init() tea.Cmd {
	m.streamer.Start()
	return tea.Batch(
		listenStream(m.streamer.Events()),
		fetchWorkspaces(m.client),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.layout()

	case tea.KeyMsg:
		cmds = append(cmds, m.handleKey(msg))

	case tea.MouseMsg:
		cmds = append(cmds, m.handleMouse(msg))

	case streamEventMsg:
		// Always rearm the listener first so no event is lost.
		cmds = append(cmds, listenStream(m.streamer.Events()))
		cmds = append(cmds, m.handleStreamEvent(msg.event))

	case workspacesMsg:
		cmds = append(cmds, m.handleWorkspaces(msg))

	case detailDataMsg:
		m.handleDetailData(msg)

	case heatTickMsg:
		m.now = time.Now()
		m.detail.SetNow(m.now)
		if m.heat.AnyHot(m.now) {
			cmds = append(cmds, heatTickCmd())
		} else {
			m.heatTicking = false
		}

	case noticeExpireMsg:
		if msg.id == m.noticeID {
			m.notice = ""
		}
	}

	return m, tea.Batch(cmds...)
}

// --- Commands ---

func listenStream(events <-chan streamEvent) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-events
		if !ok {
			return nil
		}
		return streamEventMsg{event: event}
	}
}

func fetchWorkspaces(client *service.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		var infos []schema.WorkspaceInfo
		err := client.Call(ctx, "workspaces", nil, &infos)
		return workspacesMsg{infos: infos, err: err}
	}
}

// fetchDetailData loads history and the latest compaction summary for
// one workspace. A summary failure still delivers the samples.
func fetchDetailData(client *service.Client, workspaceID string, now time.Time) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()

		var samples []schema.UsageSample
		err := client.Call(ctx, "history", map[string]any{
			"workspace_id": workspaceID,
			"from_nanos":   now.Add(-historyWindow).UnixNano(),
			"limit":        historySampleLimit,
		}, &samples)
		if err != nil {
			return detailDataMsg{workspaceID: workspaceID, err: err}
		}

		var summary schema.CompactionSummary
		if err := client.Call(ctx, "summary", map[string]any{
			"workspace_id": workspaceID,
		}, &summary); err != nil {
			return detailDataMsg{workspaceID: workspaceID, samples: samples, err: err}
		}
		return detailDataMsg{workspaceID: workspaceID, samples: samples, summary: summary}
	}
}

func heatTickCmd() tea.Cmd {
	return tea.Tick(heatTickInterval, func(time.Time) tea.Msg {
		return heatTickMsg{}
	})
}

func noticeExpireCmd(id int) tea.Cmd {
	return tea.Tick(noticeDuration, func(time.Time) tea.Msg {
		return noticeExpireMsg{id: id}
	})
}

// --- Message handling ---

func (m *model) handleStreamEvent(event streamEvent) tea.Cmd {
	m.now = time.Now()
	switch event.Kind {
	case streamConnecting:
		m.conn = connConnecting
		return nil

	case streamConnected:
		m.conn = connLive
		m.connError = nil
		cmds := []tea.Cmd{fetchWorkspaces(m.client)}
		if id := m.detail.WorkspaceID(); id != "" {
			if cmd := m.maybeFetchDetail(id, true); cmd != nil {
				cmds = append(cmds, cmd)
			}
		}
		return tea.Batch(cmds...)

	case streamDisconnected:
		m.conn = connDown
		m.connError = event.Err
		return nil

	case streamFrame:
		return m.applyFrame(event.Frame)
	}
	return nil
}

// applyFrame folds a live frame into the workspace list. Frames for a
// workspace we have never seen trigger a full list refetch.
func (m *model) applyFrame(frame schema.EventFrame) tea.Cmd {
	switch frame.Type {
	case schema.FrameShutdown:
		return m.showNotice("daemon shutting down")
	case schema.FrameError:
		return m.showNotice("daemon: " + frame.Message)
	}

	updated := false
	for index := range m.workspaces {
		if m.workspaces[index].WorkspaceID == frame.WorkspaceID {
			info := &m.workspaces[index]
			info.SessionID = frame.SessionID
			info.LogPath = frame.LogPath
			if frame.Context != nil {
				info.Context = frame.Context
			}
			if frame.Usage != nil {
				info.Usage = frame.Usage
			}
			info.LastEventAt = frame.At
			updated = true
			break
		}
	}
	if !updated {
		return fetchWorkspaces(m.client)
	}

	m.heat.Ignite(frame.WorkspaceID, m.now)
	var cmds []tea.Cmd
	if !m.heatTicking {
		m.heatTicking = true
		cmds = append(cmds, heatTickCmd())
	}
	if cmd := m.applyFilter(); cmd != nil {
		cmds = append(cmds, cmd)
	}
	if m.detail.WorkspaceID() == frame.WorkspaceID {
		if cmd := m.maybeFetchDetail(frame.WorkspaceID, false); cmd != nil {
			cmds = append(cmds, cmd)
		}
	}
	return tea.Batch(cmds...)
}

func (m *model) handleWorkspaces(msg workspacesMsg) tea.Cmd {
	m.now = time.Now()
	if msg.err != nil {
		m.logger.Debug("workspace fetch failed", "error", msg.err)
		if m.conn == connLive {
			return m.showNotice("workspace list: " + msg.err.Error())
		}
		return nil
	}

	m.workspaces = msg.infos
	cmd := m.applyFilter()

	if m.preselect != "" {
		path := m.preselect
		m.preselect = ""
		for index, entry := range m.entries {
			if entry.Info.WorkspacePath == path {
				return tea.Batch(cmd, m.setCursor(index))
			}
		}
	}
	return cmd
}

func (m *model) handleDetailData(msg detailDataMsg) {
	if msg.err != nil {
		m.logger.Debug("detail fetch failed",
			"workspace_id", msg.workspaceID,
			"error", msg.err)
		if msg.samples == nil {
			return
		}
	}
	m.detail.SetData(msg.workspaceID, msg.samples, msg.summary)
}

// --- Key handling ---

func (m *model) handleKey(msg tea.KeyMsg) tea.Cmd {
	if m.focus == focusFilter {
		return m.handleFilterKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()
	case key.Matches(msg, m.keys.FilterActivate):
		m.focus = focusFilter
		m.filter.Active = true
		return nil
	case key.Matches(msg, m.keys.FilterClear):
		m.filter.Clear()
		return m.applyFilter()
	case key.Matches(msg, m.keys.FocusToggle):
		if m.focus == focusList {
			m.focus = focusDetail
		} else {
			m.focus = focusList
		}
		return nil
	case key.Matches(msg, m.keys.Refresh):
		return fetchWorkspaces(m.client)
	}

	if m.focus == focusDetail {
		m.handleDetailKey(msg)
		return nil
	}
	return m.handleListKey(msg)
}

// handleFilterKey types into the filter. Navigation still reaches the
// list so matches can be walked without leaving the input.
func (m *model) handleFilterKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m.quit()
	case tea.KeyEsc:
		m.filter.Clear()
		m.focus = focusList
		return m.applyFilter()
	case tea.KeyEnter:
		m.filter.Active = false
		m.focus = focusList
		return nil
	case tea.KeyBackspace:
		m.filter.HandleBackspace()
		return m.applyFilter()
	case tea.KeyUp:
		return m.moveCursor(-1)
	case tea.KeyDown:
		return m.moveCursor(1)
	case tea.KeySpace:
		m.filter.HandleRune(' ')
		return m.applyFilter()
	case tea.KeyRunes:
		for _, char := range msg.Runes {
			m.filter.HandleRune(char)
		}
		return m.applyFilter()
	}
	return nil
}

func (m *model) handleListKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Up):
		return m.moveCursor(-1)
	case key.Matches(msg, m.keys.Down):
		return m.moveCursor(1)
	case key.Matches(msg, m.keys.PageUp):
		return m.moveCursor(-m.listHeight())
	case key.Matches(msg, m.keys.PageDown):
		return m.moveCursor(m.listHeight())
	case key.Matches(msg, m.keys.Home):
		return m.setCursor(0)
	case key.Matches(msg, m.keys.End):
		return m.setCursor(len(m.entries) - 1)
	}
	return nil
}

func (m *model) handleDetailKey(msg tea.KeyMsg) {
	switch {
	case key.Matches(msg, m.keys.Up):
		m.detail.ScrollUp(1)
	case key.Matches(msg, m.keys.Down):
		m.detail.ScrollDown(1)
	case key.Matches(msg, m.keys.PageUp):
		m.detail.HalfPageUp()
	case key.Matches(msg, m.keys.PageDown):
		m.detail.HalfPageDown()
	case key.Matches(msg, m.keys.Home):
		m.detail.GotoTop()
	case key.Matches(msg, m.keys.End):
		m.detail.GotoBottom()
	}
}

// handleMouse routes wheel events by pane: over the list the wheel
// moves the cursor, over the detail it scrolls the body.
func (m *model) handleMouse(msg tea.MouseMsg) tea.Cmd {
	if msg.Action != tea.MouseActionPress && msg.Action != tea.MouseActionMotion {
		return nil
	}
	overList := msg.X < m.listWidth

	switch msg.Button {
	case tea.MouseButtonWheelUp:
		if overList {
			return m.moveCursor(-1)
		}
		m.detail.ScrollUp(detailWheelLines)
	case tea.MouseButtonWheelDown:
		if overList {
			return m.moveCursor(1)
		}
		m.detail.ScrollDown(detailWheelLines)
	}
	return nil
}

func (m *model) quit() tea.Cmd {
	m.streamer.Close()
	return tea.Quit
}

// --- Selection and filtering ---

func (m *model) moveCursor(delta int) tea.Cmd {
	return m.setCursor(m.cursor + delta)
}

func (m *model) setCursor(cursor int) tea.Cmd {
	if len(m.entries) == 0 {
		m.cursor = 0
		m.offset = 0
		m.detail.ClearWorkspace()
		return nil
	}
	if cursor < 0 {
		cursor = 0
	}
	if cursor >= len(m.entries) {
		cursor = len(m.entries) - 1
	}
	m.cursor = cursor
	m.scrollIntoView()
	return m.syncSelection()
}

// applyFilter rebuilds the visible entries, keeping the cursor on the
// same workspace when it survives the filter.
func (m *model) applyFilter() tea.Cmd {
	var selectedID string
	if m.cursor < len(m.entries) {
		selectedID = m.entries[m.cursor].Info.WorkspaceID
	}

	m.entries = m.filter.Apply(m.workspaces, m.slab)

	m.cursor = 0
	for index, entry := range m.entries {
		if entry.Info.WorkspaceID == selectedID {
			m.cursor = index
			break
		}
	}
	m.clampScroll()
	return m.syncSelection()
}

// syncSelection points the detail pane at the entry under the cursor,
// fetching its history when the selection moved to a new workspace.
func (m *model) syncSelection() tea.Cmd {
	if len(m.entries) == 0 {
		m.detail.ClearWorkspace()
		return nil
	}
	info := m.entries[m.cursor].Info
	changed := info.WorkspaceID != m.detail.WorkspaceID()
	m.detail.SetNow(m.now)
	m.detail.SetWorkspace(info)
	if changed {
		return m.maybeFetchDetail(info.WorkspaceID, true)
	}
	return nil
}

// maybeFetchDetail issues a history fetch unless one ran recently.
// Selection changes force it; frame-driven refreshes are throttled.
func (m *model) maybeFetchDetail(workspaceID string, force bool) tea.Cmd {
	if m.conn != connLive {
		return nil
	}
	if !force && m.now.Sub(m.lastDetailFetch[workspaceID]) < detailRefreshInterval {
		return nil
	}
	m.lastDetailFetch[workspaceID] = m.now
	return fetchDetailData(m.client, workspaceID, m.now)
}

func (m *model) showNotice(text string) tea.Cmd {
	m.notice = text
	m.noticeID++
	return noticeExpireCmd(m.noticeID)
}

// --- Layout ---

func (m *model) layout() {
	listWidth := int(float64(m.width) * listPaneRatio)
	if listWidth < minListWidth {
		listWidth = minListWidth
	}
	if maximum := m.width - minDetailWidth; listWidth > maximum {
		listWidth = maximum
	}
	if listWidth < 1 {
		listWidth = 1
	}
	m.listWidth = listWidth

	detailWidth := m.width - listWidth - 1
	if detailWidth < 0 {
		detailWidth = 0
	}
	m.detail.SetSize(detailWidth, m.paneHeight())
	m.clampScroll()
}

func (m *model) paneHeight() int {
	height := m.height - chromeLines
	if height < 1 {
		height = 1
	}
	return height
}

func (m *model) listHeight() int {
	return m.paneHeight()
}

func (m *model) scrollIntoView() {
	height := m.listHeight()
	if height <= 0 {
		return
	}
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+height {
		m.offset = m.cursor - height + 1
	}
}

func (m *model) clampScroll() {
	maxOffset := len(m.entries) - m.listHeight()
	if maxOffset < 0 {
		maxOffset = 0
	}
	if m.offset > maxOffset {
		m.offset = maxOffset
	}
	if m.cursor >= len(m.entries) && len(m.entries) > 0 {
		m.cursor = len(m.entries) - 1
	}
	m.scrollIntoView()
}

// --- Rendering ---

func (m model) View() string {
	if !m.ready {
		return ""
	}

	var view strings.Builder
	view.WriteString(m.renderChrome())
	view.WriteString("\n")
	view.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderListPane(),
		m.renderDivider(),
		m.detail.View(),
	))
	view.WriteString("\n")
	view.WriteString(m.renderSeparator())
	view.WriteString("\n")
	view.WriteString(m.renderHelp())
	return view.String()
}

// renderChrome draws the top line: the title and connection state, or
// the filter bar while one is engaged.
func (m model) renderChrome() string {
	if bar := m.filter.View(m.theme, m.width); bar != "" {
		return bar
	}

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(m.theme.HeaderForeground).
		Render(" vigil")
	tracked := lipgloss.NewStyle().
		Foreground(m.theme.FaintText).
		Render(fmt.Sprintf("%d tracked · ", len(m.workspaces)))
	status := m.connStatus()

	gap := m.width - lipgloss.Width(title) - lipgloss.Width(tracked) - lipgloss.Width(status) - 1
	if gap < 1 {
		gap = 1
	}
	return title + strings.Repeat(" ", gap) + tracked + status + " "
}

func (m model) connStatus() string {
	style := lipgloss.NewStyle()
	switch m.conn {
	case connLive:
		return style.Foreground(m.theme.LiveColor).Render("● live")
	case connConnecting:
		return style.Foreground(m.theme.FaintText).Render("○ connecting")
	default:
		return style.Foreground(m.theme.DownColor).Render("● daemon down")
	}
}

func (m model) renderListPane() string {
	height := m.listHeight()
	rowWidth := m.listWidth - 1
	if rowWidth < 1 {
		rowWidth = 1
	}

	rows := make([]string, 0, height)
	if len(m.entries) == 0 {
		empty := lipgloss.NewStyle().
			Foreground(m.theme.FaintText).
			Render(" " + m.emptyListText())
		rows = append(rows, lipgloss.NewStyle().MaxWidth(rowWidth).Render(empty))
	}

	renderer := listRenderer{
		theme:     m.theme,
		width:     rowWidth,
		compactAt: m.detail.compactAt,
		now:       m.now,
	}
	for index := m.offset; index < len(m.entries) && index < m.offset+height; index++ {
		entry := m.entries[index]
		rows = append(rows, renderer.Render(entry,
			index == m.cursor,
			m.heat.Hot(entry.Info.WorkspaceID, m.now)))
	}
	for len(rows) < height {
		rows = append(rows, strings.Repeat(" ", rowWidth))
	}

	scrollbar := renderScrollbar(m.theme, height, len(m.entries), height, m.offset, m.focus == focusList)
	return lipgloss.JoinHorizontal(lipgloss.Top, strings.Join(rows, "\n"), scrollbar)
}

func (m model) emptyListText() string {
	switch {
	case m.filter.Input != "":
		return "no matches"
	case m.conn == connDown:
		return "daemon unreachable"
	default:
		return "no tracked workspaces"
	}
}

func (m model) renderDivider() string {
	bar := lipgloss.NewStyle().
		Foreground(m.theme.BorderColor).
		Render("│")
	lines := make([]string, m.paneHeight())
	for index := range lines {
		lines[index] = bar
	}
	return strings.Join(lines, "\n")
}

func (m model) renderSeparator() string {
	return lipgloss.NewStyle().
		Foreground(m.theme.BorderColor).
		Render(strings.Repeat("─", m.width))
}

func (m model) renderHelp() string {
	if m.notice != "" {
		return lipgloss.NewStyle().
			Foreground(m.theme.SeverityWarn).
			MaxWidth(m.width).
			Render(" " + m.notice)
	}

	var parts []string
	if m.focus == focusFilter {
		parts = []string{"type to filter", "enter keep", "esc clear"}
	} else {
		parts = []string{"↑/↓ move", "tab pane", "/ filter", "r refresh", "q quit"}
		if m.focus == focusDetail {
			if status := m.detail.ScrollStatus(); status != "" {
				parts = append(parts, status)
			}
		}
	}
	if m.filter.Input != "" {
		parts = append([]string{fmt.Sprintf("%d/%d", len(m.entries), len(m.workspaces))}, parts...)
	}

	return lipgloss.NewStyle().
		Foreground(m.theme.HelpText).
		MaxWidth(m.width).
		Render(" " + strings.Join(parts, " · "))
}
