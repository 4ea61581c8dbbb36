// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package main

import "github.com/charmbracelet/lipgloss"

// Theme collects the ANSI-256 palette the viewer renders with.
type Theme struct {
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	SelectedBackground lipgloss.Color
	SelectedForeground lipgloss.Color

	HeaderForeground lipgloss.Color
	BorderColor      lipgloss.Color
	HelpText         lipgloss.Color

	// Severity colors for occupancy gauges: calm, approaching the
	// compaction threshold, and at or past it.
	SeverityOK   lipgloss.Color
	SeverityWarn lipgloss.Color
	SeverityHigh lipgloss.Color

	// HotBackground tints list rows whose workspace produced an event
	// within the last few seconds.
	HotBackground lipgloss.Color

	// MatchBackground marks fuzzy-filter match positions in the list.
	MatchBackground lipgloss.Color

	// LiveColor and DownColor drive the stream state indicator in the
	// header.
	LiveColor lipgloss.Color
	DownColor lipgloss.Color
}

// DefaultTheme targets dark terminals.
var DefaultTheme = Theme{
	NormalText:         lipgloss.Color("252"),
	FaintText:          lipgloss.Color("245"),
	SelectedBackground: lipgloss.Color("236"),
	SelectedForeground: lipgloss.Color("255"),
	HeaderForeground:   lipgloss.Color("255"),
	BorderColor:        lipgloss.Color("240"),
	HelpText:           lipgloss.Color("241"),
	SeverityOK:         lipgloss.Color("114"),
	SeverityWarn:       lipgloss.Color("220"),
	SeverityHigh:       lipgloss.Color("196"),
	HotBackground:      lipgloss.Color("58"),
	MatchBackground:    lipgloss.Color("58"),
	LiveColor:          lipgloss.Color("114"),
	DownColor:          lipgloss.Color("196"),
}

// SeverityColor picks the gauge color for an occupancy percentage.
// criticalAt is where the reading turns urgent: the compaction
// threshold for context occupancy, 100 for plan usage.
func (theme Theme) SeverityColor(percent, criticalAt float64) lipgloss.Color {
	switch {
	case percent >= criticalAt:
		return theme.SeverityHigh
	case percent >= criticalAt*0.75:
		return theme.SeverityWarn
	default:
		return theme.SeverityOK
	}
}
