// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"strings"

	"github.com/vigil-works/vigil/lib/schema"
)

// sparkGlyphs maps normalized magnitude onto eighth-block glyphs.
var sparkGlyphs = []rune("▁▂▃▄▅▆▇█")

// renderSparkline draws burn rates as one row of block glyphs, one
// glyph per sample, oldest on the left. With fewer samples than width
// the row is left-padded so the newest sample stays in the rightmost
// cell; with more, only the newest samples show. Levels scale against
// the highest visible rate, and an all-zero series renders as a flat
// baseline.
func renderSparkline(samples []schema.UsageSample, width int) string {
	if width <= 0 {
		return ""
	}
	visible := samples
	if len(visible) > width {
		visible = visible[len(visible)-width:]
	}

	var peak float64
	for _, sample := range visible {
		if sample.BurnRatePerHour > peak {
			peak = sample.BurnRatePerHour
		}
	}

	var row strings.Builder
	row.WriteString(strings.Repeat(" ", width-len(visible)))
	for _, sample := range visible {
		row.WriteRune(sparkGlyph(sample.BurnRatePerHour, peak))
	}
	return row.String()
}

func sparkGlyph(value, peak float64) rune {
	if peak <= 0 || value <= 0 {
		return sparkGlyphs[0]
	}
	level := int(value/peak*float64(len(sparkGlyphs)-1) + 0.5)
	if level < 0 {
		level = 0
	}
	if level >= len(sparkGlyphs) {
		level = len(sparkGlyphs) - 1
	}
	return sparkGlyphs[level]
}

// renderGauge draws a fixed-width occupancy bar. Any positive
// percentage fills at least one cell so low usage stays visible.
func renderGauge(percent float64, width int) string {
	if width <= 0 {
		return ""
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := int(percent/100*float64(width) + 0.5)
	if percent > 0 && filled == 0 {
		filled = 1
	}
	if filled > width {
		filled = width
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
