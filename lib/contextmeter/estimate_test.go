// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package contextmeter

import "testing"

func TestEstimatorDefaultRatio(t *testing.T) {
	est := newTokenEstimator()
	if got := est.tokens(400); got != 100 {
		t.Errorf("tokens(400) = %d, want 100 at the default ratio", got)
	}
	if got := est.tokens(0); got != 0 {
		t.Errorf("tokens(0) = %d, want 0", got)
	}
}

func TestEstimatorCalibrates(t *testing.T) {
	est := newTokenEstimator()

	// Observed text runs denser than the default: 2 chars per token.
	for i := 0; i < 20; i++ {
		est.calibrate(2000, 1000)
	}

	if est.charsPerToken > 2.1 {
		t.Errorf("charsPerToken = %v, should converge toward 2", est.charsPerToken)
	}
	if got := est.tokens(2000); got < 900 || got > 1100 {
		t.Errorf("tokens(2000) = %d, want near 1000 after calibration", got)
	}
}

func TestEstimatorIgnoresDegenerateObservations(t *testing.T) {
	est := newTokenEstimator()
	before := est.charsPerToken

	est.calibrate(0, 100)
	est.calibrate(100, 0)
	// 1000 chars per token is outside any plausible tokenizer.
	est.calibrate(100000, 100)
	// Below one char per token likewise.
	est.calibrate(10, 1000)

	if est.charsPerToken != before {
		t.Errorf("charsPerToken = %v, degenerate observations should not move it", est.charsPerToken)
	}
}
