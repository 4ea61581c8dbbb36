// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/vigil-works/vigil/lib/schema"
)

// detailHeaderLines is the fixed chrome above the scrolling body:
// workspace label, session line, separator rule.
const detailHeaderLines = 3

// detailPane renders the right-hand pane: live metrics for the
// selected workspace plus history and the latest compaction summary
// fetched from the daemon. Live metrics arrive with the workspace
// info itself; history and summary arrive later through SetData.
type detailPane struct {
	theme  Theme
	width  int
	height int

	viewport viewport.Model

	info    schema.WorkspaceInfo
	hasInfo bool

	samples []schema.UsageSample
	summary schema.CompactionSummary
	hasData bool

	// Summary markdown is cached per text and width; re-renders on
	// clock ticks would otherwise redo the full parse.
	renderedSummary      string
	renderedSummaryText  string
	renderedSummaryWidth int

	compactAt  float64
	planWindow time.Duration
	now        time.Time
}

func newDetailPane(theme Theme, compactAt float64, planWindow time.Duration) detailPane {
	return detailPane{
		theme:      theme,
		compactAt:  compactAt,
		planWindow: planWindow,
		viewport:   viewport.New(0, 0),
	}
}

// SetSize resizes the pane. Wrapping depends on the width, so a width
// change re-renders the body.
func (pane *detailPane) SetSize(width, height int) {
	widthChanged := width != pane.width
	pane.width = width
	pane.height = height
	pane.viewport.Width = width
	bodyHeight := height - detailHeaderLines
	if bodyHeight < 1 {
		bodyHeight = 1
	}
	pane.viewport.Height = bodyHeight
	if widthChanged {
		pane.refresh()
	}
}

func (pane *detailPane) SetNow(now time.Time) {
	pane.now = now
	pane.refresh()
}

// SetWorkspace installs the selected workspace. Selecting a different
// workspace discards the previous one's history and resets the scroll
// position; a fresh frame for the same workspace keeps both.
func (pane *detailPane) SetWorkspace(info schema.WorkspaceInfo) {
	if info.WorkspaceID != pane.info.WorkspaceID {
		pane.samples = nil
		pane.summary = schema.CompactionSummary{}
		pane.hasData = false
		pane.viewport.GotoTop()
	}
	pane.info = info
	pane.hasInfo = true
	pane.refresh()
}

func (pane *detailPane) ClearWorkspace() {
	pane.info = schema.WorkspaceInfo{}
	pane.hasInfo = false
	pane.samples = nil
	pane.summary = schema.CompactionSummary{}
	pane.hasData = false
	pane.viewport.SetContent("")
	pane.viewport.GotoTop()
}

// SetData installs fetched history. A response that raced a selection
// change is dropped.
func (pane *detailPane) SetData(workspaceID string, samples []schema.UsageSample, summary schema.CompactionSummary) {
	if !pane.hasInfo || workspaceID != pane.info.WorkspaceID {
		return
	}
	pane.samples = samples
	pane.summary = summary
	pane.hasData = true
	pane.refresh()
}

func (pane *detailPane) WorkspaceID() string {
	if !pane.hasInfo {
		return ""
	}
	return pane.info.WorkspaceID
}

func (pane *detailPane) ScrollUp(lines int)   { pane.viewport.LineUp(lines) }
func (pane *detailPane) ScrollDown(lines int) { pane.viewport.LineDown(lines) }
func (pane *detailPane) HalfPageUp()          { pane.viewport.HalfViewUp() }
func (pane *detailPane) HalfPageDown()        { pane.viewport.HalfViewDown() }
func (pane *detailPane) GotoTop()             { pane.viewport.GotoTop() }
func (pane *detailPane) GotoBottom()          { pane.viewport.GotoBottom() }

// ScrollStatus describes the scroll position for the help line: empty
// when the body fits, otherwise a percentage.
func (pane *detailPane) ScrollStatus() string {
	if !pane.hasInfo || pane.viewport.TotalLineCount() <= pane.viewport.Height {
		return ""
	}
	return fmt.Sprintf("%d%%", int(pane.viewport.ScrollPercent()*100))
}

func (pane *detailPane) refresh() {
	if !pane.hasInfo || pane.width <= 0 {
		return
	}
	pane.viewport.SetContent(pane.renderBody())
}

func (pane *detailPane) View() string {
	if pane.width <= 0 || pane.height <= 0 {
		return ""
	}
	if !pane.hasInfo {
		placeholder := pane.faint("no workspace selected")
		return lipgloss.Place(pane.width, pane.height, lipgloss.Center, lipgloss.Center, placeholder)
	}
	return pane.renderHeader() + "\n" + pane.viewport.View()
}

func (pane *detailPane) renderHeader() string {
	label, _ := fitLabel(workspaceLabel(pane.info), pane.width)
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(pane.theme.HeaderForeground).
		Render(label)

	session := pane.info.SessionID
	if session == "" {
		session = "-"
	}
	meta, _ := fitLabel(fmt.Sprintf("session %s · last event %s", session, formatAge(pane.info.LastEventTime(), pane.now)), pane.width)
	metaLine := pane.faint(meta)

	rule := lipgloss.NewStyle().
		Foreground(pane.theme.BorderColor).
		Render(strings.Repeat("─", pane.width))

	return title + "\n" + metaLine + "\n" + rule
}

func (pane *detailPane) renderBody() string {
	sections := []string{
		pane.contextSection(),
		pane.planSection(),
		pane.burnSection(),
		pane.summarySection(),
	}
	filled := sections[:0]
	for _, section := range sections {
		if section != "" {
			filled = append(filled, section)
		}
	}
	// Long token or model lines must not spill into the terminal's own
	// wrapping, which would shear the pane layout.
	return ansi.Wrap(strings.Join(filled, "\n\n"), pane.width, wrapBreakpoints)
}

func (pane *detailPane) contextSection() string {
	lines := []string{pane.sectionTitle("Context")}
	metrics := pane.info.Context
	if metrics == nil {
		lines = append(lines, pane.faint("no context metrics yet"))
		return strings.Join(lines, "\n")
	}
	gauge := lipgloss.NewStyle().
		Foreground(pane.theme.SeverityColor(metrics.Percentage, pane.compactAt)).
		Render(renderGauge(metrics.Percentage, pane.gaugeWidth()))
	lines = append(lines, gauge+" "+formatPercent(metrics.Percentage))

	tokens := fmt.Sprintf("%s / %s tokens", formatTokens(metrics.CurrentTokens), formatTokens(metrics.LimitTokens))
	if metrics.Model != "" {
		tokens += " · " + metrics.Model
	}
	lines = append(lines, tokens)

	counts := fmt.Sprintf("%d messages", metrics.MessageCount)
	if metrics.PrunableTokensEstimate > 0 {
		counts += fmt.Sprintf(" · ~%s prunable", formatTokens(metrics.PrunableTokensEstimate))
	}
	lines = append(lines, counts)

	lines = append(lines, "last compaction: "+formatAge(metrics.LastCompactTimestamp, pane.now))
	if metrics.ShouldCompact {
		alert := lipgloss.NewStyle().
			Foreground(pane.theme.SeverityHigh).
			Render("compaction threshold reached")
		lines = append(lines, alert)
	}
	return strings.Join(lines, "\n")
}

func (pane *detailPane) planSection() string {
	title := fmt.Sprintf("Plan window (%dh)", int(pane.planWindow/time.Hour))
	lines := []string{pane.sectionTitle(title)}
	usage := pane.info.Usage
	if usage == nil {
		lines = append(lines, pane.faint("no usage metrics yet"))
		return strings.Join(lines, "\n")
	}
	gauge := lipgloss.NewStyle().
		Foreground(pane.theme.SeverityColor(usage.PercentageOfPlan, 100)).
		Render(renderGauge(usage.PercentageOfPlan, pane.gaugeWidth()))
	lines = append(lines, gauge+" "+formatPercent(usage.PercentageOfPlan))

	tokens := fmt.Sprintf("%s / %s tokens", formatTokens(usage.TotalTokens), formatTokens(usage.PlanLimitTokens))
	if usage.PlanName != "" {
		tokens += " · " + usage.PlanName + " plan"
	}
	lines = append(lines, tokens)
	lines = append(lines, fmt.Sprintf("in %s · out %s", formatTokens(usage.InputTokens), formatTokens(usage.OutputTokens)))

	if usage.Unbounded {
		lines = append(lines, pane.faint("no recent burn"))
	} else {
		lines = append(lines, fmt.Sprintf("burn %s/h · ~%s remaining",
			formatTokens(uint64(usage.BurnRatePerHour)),
			formatMinutes(usage.EstimatedMinutesRemaining)))
	}
	return strings.Join(lines, "\n")
}

func (pane *detailPane) burnSection() string {
	title := "Burn rate"
	if span := pane.sampleSpan(); span >= time.Minute {
		title = fmt.Sprintf("Burn rate (last %s)", formatMinutes(span.Minutes()))
	}
	lines := []string{pane.sectionTitle(title)}

	if len(pane.samples) < 2 {
		if pane.hasData {
			lines = append(lines, pane.faint("not enough samples yet"))
		} else {
			lines = append(lines, pane.faint("loading history"))
		}
		return strings.Join(lines, "\n")
	}

	peak := 0.0
	for _, sample := range pane.samples {
		if sample.BurnRatePerHour > peak {
			peak = sample.BurnRatePerHour
		}
	}
	spark := lipgloss.NewStyle().
		Foreground(pane.theme.LiveColor).
		Render(renderSparkline(pane.samples, pane.gaugeWidth()))
	lines = append(lines, spark)
	lines = append(lines, pane.faint(fmt.Sprintf("peak %s/h over %d samples", formatTokens(uint64(peak)), len(pane.samples))))
	return strings.Join(lines, "\n")
}

func (pane *detailPane) summarySection() string {
	lines := []string{pane.sectionTitle("Last compaction summary")}
	if pane.summary.Summary == "" {
		if pane.hasData {
			lines = append(lines, pane.faint("none yet"))
		} else {
			lines = append(lines, pane.faint("loading"))
		}
		return strings.Join(lines, "\n")
	}
	if !pane.summary.Time().IsZero() {
		lines[0] += " " + pane.faint("· "+formatAge(pane.summary.Time(), pane.now))
	}
	markdownWidth := pane.width - 2
	if pane.summary.Summary != pane.renderedSummaryText || markdownWidth != pane.renderedSummaryWidth {
		pane.renderedSummary = renderMarkdown(pane.summary.Summary, pane.theme, markdownWidth)
		pane.renderedSummaryText = pane.summary.Summary
		pane.renderedSummaryWidth = markdownWidth
	}
	lines = append(lines, pane.renderedSummary)
	return strings.Join(lines, "\n")
}

// sampleSpan is the time covered by the fetched history, oldest to
// newest sample.
func (pane *detailPane) sampleSpan() time.Duration {
	if len(pane.samples) < 2 {
		return 0
	}
	first := pane.samples[0].Time()
	last := pane.samples[len(pane.samples)-1].Time()
	if last.Before(first) {
		first, last = last, first
	}
	return last.Sub(first)
}

func (pane *detailPane) gaugeWidth() int {
	width := pane.width - 4
	if width < 10 {
		width = 10
	}
	if width > 48 {
		width = 48
	}
	return width
}

func (pane *detailPane) sectionTitle(title string) string {
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(pane.theme.HeaderForeground).
		Render(title)
}

func (pane *detailPane) faint(text string) string {
	return lipgloss.NewStyle().Foreground(pane.theme.FaintText).Render(text)
}
