// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/junegunn/fzf/src/util"

	"github.com/vigil-works/vigil/lib/schema"
)

// filterModel holds the list filter text and whether the input line
// has keyboard focus.
type filterModel struct {
	Input  string
	Active bool
}

// listEntry is one workspace row after filtering: the display label,
// the fuzzy score, and the label rune positions to highlight.
type listEntry struct {
	Info      schema.WorkspaceInfo
	Label     string
	Score     int
	Positions []int
}

// Apply scores every workspace against the filter text. An empty
// filter passes all workspaces in their given order; otherwise
// non-matching workspaces drop out and matches order best score
// first. The label is matched first so its positions can be
// highlighted; the session ID is a fallback so a pasted session UUID
// still finds its workspace.
func (filter *filterModel) Apply(infos []schema.WorkspaceInfo, slab *util.Slab) []listEntry {
	pattern := []rune(strings.TrimSpace(filter.Input))
	entries := make([]listEntry, 0, len(infos))
	for _, info := range infos {
		entry := listEntry{Info: info, Label: workspaceLabel(info)}
		if len(pattern) == 0 {
			entries = append(entries, entry)
			continue
		}
		if match := fuzzyMatch(entry.Label, pattern, slab); match.Score > 0 {
			entry.Score = match.Score
			entry.Positions = match.Positions
			entries = append(entries, entry)
			continue
		}
		if match := fuzzyMatch(info.SessionID, pattern, slab); match.Score > 0 {
			entry.Score = match.Score
			entries = append(entries, entry)
		}
	}
	if len(pattern) > 0 {
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].Score > entries[j].Score
		})
	}
	return entries
}

// HandleRune appends a typed character while the filter has focus.
func (filter *filterModel) HandleRune(char rune) {
	filter.Input += string(char)
}

// HandleBackspace removes the last rune from the filter text.
func (filter *filterModel) HandleBackspace() {
	if filter.Input == "" {
		return
	}
	runes := []rune(filter.Input)
	filter.Input = string(runes[:len(runes)-1])
}

// Clear resets the filter to its inactive, empty state.
func (filter *filterModel) Clear() {
	filter.Input = ""
	filter.Active = false
}

// View renders the filter bar. With focus it shows the input and a
// block cursor; inactive with text it shows the applied filter;
// empty and inactive renders nothing so the header takes the line.
func (filter *filterModel) View(theme Theme, width int) string {
	switch {
	case filter.Active:
		cursor := lipgloss.NewStyle().Foreground(theme.HeaderForeground).Bold(true).Render("▎")
		line := " / " + filter.Input + cursor
		return lipgloss.NewStyle().
			Foreground(theme.NormalText).
			Width(width).
			MaxWidth(width).
			Render(line)
	case filter.Input != "":
		return lipgloss.NewStyle().
			Foreground(theme.FaintText).
			Width(width).
			MaxWidth(width).
			Render(" filter: " + filter.Input)
	default:
		return ""
	}
}
