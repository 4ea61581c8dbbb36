// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package contextmeter

// Token estimation from text size. The ratio of characters to tokens
// varies with content (prose vs code vs JSON), so the estimator
// starts from a conventional 4 chars/token and calibrates itself
// against observed pairs of output text size and billed output tokens
// as it walks the log.
const (
	defaultCharsPerToken = 4.0
	calibrationWeight    = 0.3
	minCharsPerToken     = 1.0
	maxCharsPerToken     = 16.0
)

type tokenEstimator struct {
	charsPerToken float64
}

func newTokenEstimator() *tokenEstimator {
	return &tokenEstimator{charsPerToken: defaultCharsPerToken}
}

// calibrate folds one observed (chars, tokens) pair into the ratio as
// an exponential moving average. Degenerate observations are ignored.
func (e *tokenEstimator) calibrate(chars int, tokens uint64) {
	if chars <= 0 || tokens == 0 {
		return
	}
	observed := float64(chars) / float64(tokens)
	if observed < minCharsPerToken || observed > maxCharsPerToken {
		return
	}
	e.charsPerToken = (1-calibrationWeight)*e.charsPerToken + calibrationWeight*observed
}

// tokens estimates the token cost of a text of the given size.
func (e *tokenEstimator) tokens(chars int) uint64 {
	if chars <= 0 {
		return 0
	}
	return uint64(float64(chars)/e.charsPerToken + 0.5)
}
