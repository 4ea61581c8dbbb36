// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"sort"
	"unicode"

	"github.com/junegunn/fzf/src/algo"
	"github.com/junegunn/fzf/src/util"
)

// Slab sizes match fzf's own defaults. One slab is reused across all
// match calls on the UI goroutine to avoid per-keystroke allocation.
const (
	slab16Size = 100 * 1024
	slab32Size = 2048
)

func newFuzzySlab() *util.Slab {
	return util.MakeSlab(slab16Size, slab32Size)
}

// fuzzyResult is one scored match. Score zero means no match;
// Positions are rune indices into the matched text, sorted ascending.
type fuzzyResult struct {
	Score     int
	Positions []int
}

// fuzzyMatch scores pattern against text with fzf's V2 algorithm.
// Matching is case-insensitive: the algorithm folds the text, and the
// pattern is folded here. A nil slab is allowed; the algorithm then
// allocates its own scratch space.
func fuzzyMatch(text string, pattern []rune, slab *util.Slab) fuzzyResult {
	if len(pattern) == 0 || text == "" {
		return fuzzyResult{}
	}
	folded := make([]rune, len(pattern))
	for index, char := range pattern {
		folded[index] = unicode.ToLower(char)
	}
	chars := util.ToChars([]byte(text))
	match, positions := algo.FuzzyMatchV2(false, true, true, &chars, folded, true, slab)
	if match.Score <= 0 {
		return fuzzyResult{}
	}
	result := fuzzyResult{Score: match.Score}
	if positions != nil {
		result.Positions = *positions
		sort.Ints(result.Positions)
	}
	return result
}
