// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"io"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"

	"github.com/vigil-works/vigil/lib/contextmeter"
	"github.com/vigil-works/vigil/lib/schema"
)

var listRowNow = time.Date(2026, time.March, 20, 9, 0, 0, 0, time.UTC)

func testListRenderer(width int) listRenderer {
	return listRenderer{theme: DefaultTheme, width: width, compactAt: 85, now: listRowNow}
}

func listRowEntry(label string, percent float64, age time.Duration) listEntry {
	return listEntry{
		Label: label,
		Info: schema.WorkspaceInfo{
			WorkspaceID:   "ws-list",
			WorkspacePath: label,
			Context:       &contextmeter.ContextMetrics{Percentage: percent},
			LastEventAt:   listRowNow.Add(-age).UnixNano(),
		},
	}
}

func TestListRowLayout(t *testing.T) {
	renderer := testListRenderer(44)
	entry := listRowEntry("/work/alpha", 64.2, 5*time.Minute)

	row := ansi.Strip(renderer.Render(entry, false, false))
	want := " /work/alpha" + strings.Repeat(" ", 14) + "  64%" + strings.Repeat(" ", 6) + "5m ago "
	if row != want {
		t.Errorf("row = %q, want %q", row, want)
	}
	if got := utf8.RuneCountInString(row); got != 44 {
		t.Errorf("row width = %d, want 44", got)
	}
}

func TestListRowMissingMetrics(t *testing.T) {
	renderer := testListRenderer(44)
	entry := listEntry{
		Label: "/work/beta",
		Info:  schema.WorkspaceInfo{WorkspaceID: "ws-beta", WorkspacePath: "/work/beta"},
	}

	row := ansi.Strip(renderer.Render(entry, false, false))
	want := " /work/beta" + strings.Repeat(" ", 15) + "    -" + strings.Repeat(" ", 11) + "- "
	if row != want {
		t.Errorf("row = %q, want %q", row, want)
	}
}

// Below roughly twenty columns there is no room for the metric cells,
// so rows degrade to just the label.
func TestListRowNarrowWidthKeepsLabel(t *testing.T) {
	renderer := testListRenderer(20)
	entry := listRowEntry("/work/alpha", 64.2, 5*time.Minute)

	row := ansi.Strip(renderer.Render(entry, false, false))
	want := " /work/alpha" + strings.Repeat(" ", 8)
	if row != want {
		t.Errorf("row = %q, want %q", row, want)
	}
	if strings.Contains(row, "%") {
		t.Errorf("narrow row should drop the percent cell: %q", row)
	}
}

func TestListRowTruncatesLongLabel(t *testing.T) {
	renderer := testListRenderer(44)
	entry := listRowEntry("/home/dev/projects/context-monitor-primary", 10, time.Minute)

	row := ansi.Strip(renderer.Render(entry, false, false))
	if !strings.Contains(row, "/home/dev/projects/cont…") {
		t.Errorf("row missing truncated label: %q", row)
	}
	if strings.Contains(row, "primary") {
		t.Errorf("row kept text past the label cell: %q", row)
	}
	if got := utf8.RuneCountInString(row); got != 44 {
		t.Errorf("row width = %d, want 44", got)
	}
}

// Selection and heat only recolor a row. The text layout must not
// shift or the list would jitter as events arrive.
func TestListRowStylingPreservesText(t *testing.T) {
	renderer := testListRenderer(44)
	entry := listRowEntry("/work/alpha", 64.2, 5*time.Minute)

	plain := ansi.Strip(renderer.Render(entry, false, false))
	selected := ansi.Strip(renderer.Render(entry, true, false))
	hot := ansi.Strip(renderer.Render(entry, false, true))
	if selected != plain {
		t.Errorf("selected row text = %q, want %q", selected, plain)
	}
	if hot != plain {
		t.Errorf("hot row text = %q, want %q", hot, plain)
	}
}

func TestFitLabel(t *testing.T) {
	tests := []struct {
		label     string
		width     int
		want      string
		wantRunes int
	}{
		{"alpha", 10, "alpha", 5},
		{"abcdefgh", 8, "abcdefgh", 8},
		{"abcdefgh", 5, "abcd…", 5},
		{"abcdefgh", 1, "…", 1},
		{"", 3, "", 0},
	}
	for _, test := range tests {
		got, gotRunes := fitLabel(test.label, test.width)
		if got != test.want || gotRunes != test.wantRunes {
			t.Errorf("fitLabel(%q, %d) = (%q, %d), want (%q, %d)",
				test.label, test.width, got, gotRunes, test.want, test.wantRunes)
		}
	}
}

func TestHighlightLabelNoPositions(t *testing.T) {
	styler := lipgloss.NewRenderer(io.Discard, termenv.WithProfile(termenv.ANSI256))
	base := styler.NewStyle().Foreground(lipgloss.Color("252"))
	match := styler.NewStyle().Underline(true)

	got := highlightLabel("vigil", nil, base, match)
	if want := base.Render("vigil"); got != want {
		t.Errorf("highlightLabel = %q, want %q", got, want)
	}
}

// Consecutive runes sharing a style must render as one styled segment,
// not one escape sequence per rune.
func TestHighlightLabelBatchesRuns(t *testing.T) {
	styler := lipgloss.NewRenderer(io.Discard, termenv.WithProfile(termenv.ANSI256))
	base := styler.NewStyle().Foreground(lipgloss.Color("252"))
	match := styler.NewStyle().Underline(true)

	got := highlightLabel("vigil", []int{0, 1}, base, match)
	if stripped := ansi.Strip(got); stripped != "vigil" {
		t.Errorf("stripped = %q, want %q", stripped, "vigil")
	}
	if !strings.Contains(got, "\x1b[4m") {
		t.Errorf("output missing underline sequence: %q", got)
	}
	// One reset per segment: the matched "vi" run and the base "gil" run.
	if resets := strings.Count(got, "\x1b[0m"); resets != 2 {
		t.Errorf("got %d styled segments, want 2: %q", resets, got)
	}
}

func TestHighlightLabelAlternatingRuns(t *testing.T) {
	styler := lipgloss.NewRenderer(io.Discard, termenv.WithProfile(termenv.ANSI256))
	base := styler.NewStyle().Foreground(lipgloss.Color("252"))
	match := styler.NewStyle().Underline(true)

	got := highlightLabel("vigil", []int{0, 2, 4}, base, match)
	if stripped := ansi.Strip(got); stripped != "vigil" {
		t.Errorf("stripped = %q, want %q", stripped, "vigil")
	}
	if resets := strings.Count(got, "\x1b[0m"); resets != 5 {
		t.Errorf("got %d styled segments, want 5: %q", resets, got)
	}
}

func TestRenderScrollbarPositions(t *testing.T) {
	tests := []struct {
		name    string
		height  int
		total   int
		visible int
		offset  int
		want    string
	}{
		{"top", 4, 8, 4, 0, "┃\n┃\n│\n│"},
		{"middle", 4, 8, 4, 2, "│\n┃\n┃\n│"},
		{"bottom", 4, 8, 4, 4, "│\n│\n┃\n┃"},
		{"offset clamped", 4, 8, 4, 99, "│\n│\n┃\n┃"},
		{"minimum thumb", 5, 100, 5, 95, "│\n│\n│\n│\n┃"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := ansi.Strip(renderScrollbar(DefaultTheme, test.height, test.total, test.visible, test.offset, false))
			if got != test.want {
				t.Errorf("scrollbar = %q, want %q", got, test.want)
			}
		})
	}
}

func TestRenderScrollbarEverythingFits(t *testing.T) {
	got := ansi.Strip(renderScrollbar(DefaultTheme, 3, 2, 5, 0, false))
	if want := "┃\n┃\n┃"; got != want {
		t.Errorf("scrollbar = %q, want %q", got, want)
	}
}

func TestRenderScrollbarZeroHeight(t *testing.T) {
	if got := renderScrollbar(DefaultTheme, 0, 8, 4, 0, false); got != "" {
		t.Errorf("scrollbar = %q, want empty", got)
	}
}

func TestRenderScrollbarFocusKeepsGlyphs(t *testing.T) {
	unfocused := ansi.Strip(renderScrollbar(DefaultTheme, 4, 8, 4, 0, false))
	focused := ansi.Strip(renderScrollbar(DefaultTheme, 4, 8, 4, 0, true))
	if focused != unfocused {
		t.Errorf("focused glyphs = %q, want %q", focused, unfocused)
	}
}
