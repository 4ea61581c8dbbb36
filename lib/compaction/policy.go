// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package compaction

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vigil-works/vigil/lib/clock"
	"github.com/vigil-works/vigil/lib/config"
	"github.com/vigil-works/vigil/lib/contextmeter"
	"github.com/vigil-works/vigil/lib/sessionlog"
)

// Decision is the outcome of evaluating one metrics update.
type Decision int

const (
	// DecisionNone: context pressure is below the threshold.
	DecisionNone Decision = iota

	// DecisionWarn: the threshold is crossed but a gate held the
	// trigger back (conversation too short, cooldown active, or no
	// conversation identity). Surfaced so a UI can show a banner.
	DecisionWarn

	// DecisionCompact: all gates passed; the session should be
	// compacted now.
	DecisionCompact
)

func (d Decision) String() string {
	switch d {
	case DecisionNone:
		return "none"
	case DecisionWarn:
		return "warn"
	case DecisionCompact:
		return "compact"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Summarizer produces a compaction summary from a transcript. The
// engine consumes it as a collaborator; implementations live with
// their transport (CLI subprocess in this package).
type Summarizer interface {
	Summarize(ctx context.Context, messages []sessionlog.TranscriptMessage) (string, error)
}

// Policy gates compaction per conversation. Safe for concurrent use.
type Policy struct {
	minMessages int
	cooldown    time.Duration
	clk         clock.Clock
	logger      *slog.Logger
	summarizer  Summarizer

	mu            sync.Mutex
	lastTriggered map[string]time.Time
}

// New returns a Policy using the configured gates. A nil clock uses
// the system clock; a nil logger discards.
func New(cfg *config.Config, summarizer Summarizer, clk clock.Clock, logger *slog.Logger) *Policy {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Policy{
		minMessages:   cfg.Compaction.MinMessages,
		cooldown:      cfg.Cooldown(),
		clk:           clk,
		logger:        logger,
		summarizer:    summarizer,
		lastTriggered: make(map[string]time.Time),
	}
}

// Evaluate maps a metrics update to a decision. It never mutates the
// trigger record: re-evaluating unchanged inputs inside the cooldown
// stays safe.
func (p *Policy) Evaluate(conversationID string, metrics contextmeter.ContextMetrics) Decision {
	if !metrics.ShouldCompact {
		return DecisionNone
	}
	if conversationID == "" {
		return DecisionWarn
	}
	if metrics.MessageCount < p.minMessages {
		return DecisionWarn
	}

	p.mu.Lock()
	last, triggered := p.lastTriggered[conversationID]
	p.mu.Unlock()
	if triggered && p.clk.Now().Sub(last) < p.cooldown {
		return DecisionWarn
	}
	return DecisionCompact
}

// Run performs one compaction attempt: it stamps the conversation's
// trigger record, then invokes the summarizer. The stamp lands before
// the outcome is known, so failures wait out the cooldown too.
func (p *Policy) Run(ctx context.Context, conversationID string, messages []sessionlog.TranscriptMessage) (string, error) {
	if p.summarizer == nil {
		return "", fmt.Errorf("compaction: no summarizer configured")
	}

	p.mu.Lock()
	p.lastTriggered[conversationID] = p.clk.Now()
	p.mu.Unlock()

	p.logger.Info("running compaction",
		"conversation", conversationID,
		"messages", len(messages))

	summary, err := p.summarizer.Summarize(ctx, messages)
	if err != nil {
		p.logger.Warn("compaction attempt failed",
			"conversation", conversationID,
			"error", err)
		return "", fmt.Errorf("compaction: %w", err)
	}
	return summary, nil
}

// Forget drops the trigger record for a conversation, typically when
// its workspace is untracked.
func (p *Policy) Forget(conversationID string) {
	p.mu.Lock()
	delete(p.lastTriggered, conversationID)
	p.mu.Unlock()
}

// LastTriggered reports when the conversation last attempted a
// compaction; ok is false when it never has.
func (p *Policy) LastTriggered(conversationID string) (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	last, ok := p.lastTriggered[conversationID]
	return last, ok
}
