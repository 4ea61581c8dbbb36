// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package contextmeter

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/vigil-works/vigil/lib/clock"
	"github.com/vigil-works/vigil/lib/config"
	"github.com/vigil-works/vigil/lib/sessionlog"
)

// Calculator computes metrics from a session log. Safe for concurrent
// use; all state lives in the configuration.
type Calculator struct {
	cfg    *config.Config
	clk    clock.Clock
	logger *slog.Logger
}

// New returns a Calculator. A nil clock uses the system clock; a nil
// logger discards.
func New(cfg *config.Config, clk clock.Clock, logger *slog.Logger) *Calculator {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Calculator{cfg: cfg, clk: clk, logger: logger}
}

// Context computes context-window occupancy from the log at logPath.
// workspacePath locates per-workspace settings overrides and may be
// empty. An absent or empty log yields zero metrics and no error.
func (c *Calculator) Context(logPath, workspacePath string) (ContextMetrics, error) {
	events, err := c.usableEvents(logPath)
	if err != nil {
		return ContextMetrics{}, err
	}

	var metrics ContextMetrics
	estimator := newTokenEstimator()
	var retainedChars []int

	for _, event := range events {
		switch event.Kind {
		case sessionlog.KindUser, sessionlog.KindAssistant:
			metrics.MessageCount++
			retainedChars = append(retainedChars, event.ContentChars)
		default:
			continue
		}

		if event.IsCompactSummary && event.Timestamp.After(metrics.LastCompactTimestamp) {
			metrics.LastCompactTimestamp = event.Timestamp
		}

		if event.Kind == sessionlog.KindAssistant {
			if event.Model != "" {
				metrics.Model = event.Model
			}
			if event.Usage != nil {
				metrics.CurrentTokens = event.Usage.ContextFootprint()
				estimator.calibrate(event.ContentChars, event.Usage.OutputTokens)
			}
		}
	}

	settings := c.loadWorkspaceSettings(workspacePath)
	if settings.Model != "" {
		metrics.Model = settings.Model
	}
	metrics.LimitTokens = settings.ContextWindow
	if metrics.LimitTokens == 0 {
		metrics.LimitTokens = c.cfg.ContextLimit(metrics.Model)
	}

	if metrics.LimitTokens > 0 {
		metrics.Percentage = float64(metrics.CurrentTokens) / float64(metrics.LimitTokens) * 100
	}
	metrics.ShouldCompact = metrics.Percentage >= c.cfg.Thresholds.CompactPercent && metrics.CurrentTokens > 0

	metrics.PrunableTokensEstimate = c.prunableEstimate(estimator, metrics.CurrentTokens, retainedChars)

	return metrics, nil
}

// prunableEstimate approximates the tokens a compaction would free:
// the current footprint minus the estimated cost of the tail that
// compaction keeps verbatim.
func (c *Calculator) prunableEstimate(estimator *tokenEstimator, currentTokens uint64, messageChars []int) uint64 {
	if currentTokens == 0 {
		return 0
	}

	retained := c.cfg.Compaction.RetainedMessages
	if retained > len(messageChars) {
		retained = len(messageChars)
	}
	var retainedTokens uint64
	for _, chars := range messageChars[len(messageChars)-retained:] {
		retainedTokens += estimator.tokens(chars)
	}

	if retainedTokens >= currentTokens {
		return 0
	}
	return currentTokens - retainedTokens
}

// UsageWindow computes rolling-window plan usage from the log at
// logPath. The window is the trailing period ending now; events with
// timestamps slightly in the future (writer clock skew) still count.
func (c *Calculator) UsageWindow(logPath string, window time.Duration) (UsageWindowMetrics, error) {
	events, err := c.usableEvents(logPath)
	if err != nil {
		return UsageWindowMetrics{}, err
	}

	samples := billableSamples(events)

	now := c.clk.Now()
	var metrics UsageWindowMetrics
	windowStart := now.Add(-window)
	for _, sample := range samples {
		if sample.at.Before(windowStart) {
			continue
		}
		metrics.InputTokens += sample.input
		metrics.OutputTokens += sample.output
	}
	metrics.TotalTokens = metrics.InputTokens + metrics.OutputTokens

	plan := c.inferPlan(samples)
	metrics.PlanName = plan.Name
	metrics.PlanLimitTokens = plan.WindowLimitTokens
	if metrics.PlanLimitTokens > 0 {
		metrics.PercentageOfPlan = float64(metrics.TotalTokens) / float64(metrics.PlanLimitTokens) * 100
	}

	burnStart := now.Add(-c.cfg.BurnWindow())
	var burned uint64
	for _, sample := range samples {
		if sample.at.Before(burnStart) {
			continue
		}
		burned += sample.input + sample.output
	}
	metrics.BurnRatePerHour = float64(burned) / c.cfg.BurnWindow().Hours()

	if metrics.BurnRatePerHour <= 0 {
		metrics.Unbounded = true
	} else if metrics.PlanLimitTokens > metrics.TotalTokens {
		remaining := float64(metrics.PlanLimitTokens - metrics.TotalTokens)
		metrics.EstimatedMinutesRemaining = remaining / metrics.BurnRatePerHour * 60
	}

	return metrics, nil
}

// inferPlan guesses the subscription tier from the historical peak of
// any plan-window span in the log: the smallest tier that accommodates
// the peak, or the largest tier when none does.
func (c *Calculator) inferPlan(samples []usageSample) config.PlanTier {
	plans := c.cfg.SortedPlans()
	if len(plans) == 0 {
		return config.PlanTier{}
	}

	peak := peakWindowTotal(samples, c.cfg.PlanWindow())
	for _, plan := range plans {
		if peak <= plan.WindowLimitTokens {
			return plan
		}
	}
	return plans[len(plans)-1]
}

type usageSample struct {
	at     time.Time
	input  uint64
	output uint64
}

// billableSamples extracts timestamped billable usage, sorted by time.
func billableSamples(events []sessionlog.LogEvent) []usageSample {
	var samples []usageSample
	for _, event := range events {
		if event.Usage == nil || event.Timestamp.IsZero() {
			continue
		}
		samples = append(samples, usageSample{
			at:     event.Timestamp,
			input:  event.Usage.InputTokens,
			output: event.Usage.OutputTokens,
		})
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].at.Before(samples[j].at) })
	return samples
}

// peakWindowTotal finds the largest billable total of any span of the
// given width, by sliding a two-pointer window over the sorted samples.
func peakWindowTotal(samples []usageSample, window time.Duration) uint64 {
	var peak, running uint64
	left := 0
	for right := range samples {
		running += samples[right].input + samples[right].output
		for samples[right].at.Sub(samples[left].at) > window {
			running -= samples[left].input + samples[left].output
			left++
		}
		if running > peak {
			peak = running
		}
	}
	return peak
}

// usableEvents reads and filters the log: parse failures are already
// skipped at the line level, subagent sidechains and failed API calls
// are excluded, and streamed duplicates collapse by message ID. A
// missing log is the empty session.
func (c *Calculator) usableEvents(logPath string) ([]sessionlog.LogEvent, error) {
	if logPath == "" {
		return nil, nil
	}
	events, err := sessionlog.ReadEvents(logPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("contextmeter: %w", err)
	}

	filtered := events[:0]
	for _, event := range events {
		if event.IsSidechain || event.IsAPIError {
			continue
		}
		filtered = append(filtered, event)
	}
	return sessionlog.Deduplicate(filtered), nil
}
