// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Fixed list cells, right to left: event age and context occupancy.
// The label takes whatever remains.
const (
	percentCell = 5
	ageCell     = 11
)

// listRenderer renders workspace rows for the list pane.
type listRenderer struct {
	theme     Theme
	width     int
	compactAt float64
	now       time.Time
}

// Render draws one list row for a tracked workspace. Filter match
// positions in the label render in the match style.
func (r listRenderer) Render(entry listEntry, selected, hot bool) string {
	background := lipgloss.Color("")
	switch {
	case selected:
		background = r.theme.SelectedBackground
	case hot:
		background = r.theme.HotBackground
	}
	cell := func(foreground lipgloss.Color) lipgloss.Style {
		style := lipgloss.NewStyle().Foreground(foreground)
		if background != "" {
			style = style.Background(background)
		}
		return style
	}

	base := cell(r.theme.NormalText)
	faint := cell(r.theme.FaintText)
	if selected {
		base = cell(r.theme.SelectedForeground)
	}
	match := lipgloss.NewStyle().
		Foreground(r.theme.NormalText).
		Background(r.theme.MatchBackground)
	if selected {
		match = base.Bold(true).Underline(true)
	}

	labelWidth := r.width - percentCell - ageCell - 4
	if labelWidth < 4 {
		labelWidth = r.width - 2
		if labelWidth < 1 {
			labelWidth = 1
		}
		label, _ := fitLabel(entry.Label, labelWidth)
		row := base.Render(" ") + highlightLabel(label, entry.Positions, base, match)
		return lipgloss.NewStyle().Width(r.width).MaxWidth(r.width).Render(row)
	}

	label, labelRunes := fitLabel(entry.Label, labelWidth)
	padding := labelWidth - labelRunes

	percentText := "    -"
	percentStyle := faint
	if entry.Info.Context != nil {
		percent := entry.Info.Context.Percentage
		percentText = fmt.Sprintf("%4.0f%%", percent)
		percentStyle = cell(r.theme.SeverityColor(percent, r.compactAt))
	}

	age := formatAge(entry.Info.LastEventTime(), r.now)
	if runes := []rune(age); len(runes) > ageCell {
		age = string(runes[:ageCell])
	}
	agePad := ageCell - len([]rune(age))

	row := base.Render(" ") +
		highlightLabel(label, entry.Positions, base, match) +
		base.Render(strings.Repeat(" ", padding+1)) +
		percentStyle.Render(percentText) +
		base.Render(strings.Repeat(" ", agePad+1)) +
		faint.Render(age) +
		base.Render(" ")
	return lipgloss.NewStyle().Width(r.width).MaxWidth(r.width).Render(row)
}

// fitLabel truncates a label to the cell width, ending with an
// ellipsis when it does not fit. Returns the display text and its
// rune count.
func fitLabel(label string, width int) (string, int) {
	runes := []rune(label)
	if len(runes) <= width {
		return label, len(runes)
	}
	if width <= 1 {
		return "…", 1
	}
	return string(runes[:width-1]) + "…", width
}

// highlightLabel renders the label with filter match positions in the
// match style, batching consecutive runes of the same style into
// single render calls. Positions index the untruncated label, so any
// beyond the display text are dropped.
func highlightLabel(display string, positions []int, baseStyle, matchStyle lipgloss.Style) string {
	if len(positions) == 0 {
		return baseStyle.Render(display)
	}
	positionSet := make(map[int]struct{}, len(positions))
	for _, position := range positions {
		positionSet[position] = struct{}{}
	}

	var out strings.Builder
	var run []rune
	var runMatched bool
	flush := func() {
		if len(run) == 0 {
			return
		}
		if runMatched {
			out.WriteString(matchStyle.Render(string(run)))
		} else {
			out.WriteString(baseStyle.Render(string(run)))
		}
		run = run[:0]
	}
	for index, char := range []rune(display) {
		_, matched := positionSet[index]
		if matched != runMatched {
			flush()
			runMatched = matched
		}
		run = append(run, char)
	}
	flush()
	return out.String()
}

// renderScrollbar draws a one-column scrollbar with a proportional
// thumb. When everything fits the thumb spans the full track.
func renderScrollbar(theme Theme, height, total, visible, offset int, focused bool) string {
	if height <= 0 {
		return ""
	}
	thumbColor := theme.BorderColor
	if focused {
		thumbColor = theme.SeverityWarn
	}
	thumb := lipgloss.NewStyle().Foreground(thumbColor).Render("┃")
	track := lipgloss.NewStyle().Foreground(theme.BorderColor).Render("│")

	lines := make([]string, height)
	if total <= visible {
		for index := range lines {
			lines[index] = thumb
		}
		return strings.Join(lines, "\n")
	}

	thumbSize := height * visible / total
	if thumbSize < 1 {
		thumbSize = 1
	}
	trackRange := height - thumbSize
	scrollable := total - visible
	thumbOffset := 0
	if scrollable > 0 {
		thumbOffset = offset * trackRange / scrollable
	}
	if thumbOffset > trackRange {
		thumbOffset = trackRange
	}
	for index := range lines {
		if index >= thumbOffset && index < thumbOffset+thumbSize {
			lines[index] = thumb
		} else {
			lines[index] = track
		}
	}
	return strings.Join(lines, "\n")
}
