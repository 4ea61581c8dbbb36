// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package compaction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vigil-works/vigil/lib/clock"
	"github.com/vigil-works/vigil/lib/config"
	"github.com/vigil-works/vigil/lib/contextmeter"
	"github.com/vigil-works/vigil/lib/sessionlog"
)

type stubSummarizer struct {
	summary string
	err     error
	calls   int
	got     []sessionlog.TranscriptMessage
}

func (s *stubSummarizer) Summarize(ctx context.Context, messages []sessionlog.TranscriptMessage) (string, error) {
	s.calls++
	s.got = messages
	return s.summary, s.err
}

var policyEpoch = time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

func testPolicy(t *testing.T, summarizer Summarizer) (*Policy, *clock.FakeClock) {
	t.Helper()
	fake := clock.Fake(policyEpoch)
	return New(config.Default(), summarizer, fake, nil), fake
}

func overThreshold(messageCount int) contextmeter.ContextMetrics {
	return contextmeter.ContextMetrics{
		CurrentTokens: 180000,
		LimitTokens:   200000,
		Percentage:    90,
		MessageCount:  messageCount,
		ShouldCompact: true,
	}
}

func TestEvaluateBelowThreshold(t *testing.T) {
	policy, _ := testPolicy(t, &stubSummarizer{})

	metrics := overThreshold(50)
	metrics.ShouldCompact = false

	if got := policy.Evaluate("conv-1", metrics); got != DecisionNone {
		t.Errorf("Evaluate = %v, want none below threshold", got)
	}
}

func TestEvaluateTriggers(t *testing.T) {
	policy, _ := testPolicy(t, &stubSummarizer{})

	if got := policy.Evaluate("conv-1", overThreshold(50)); got != DecisionCompact {
		t.Errorf("Evaluate = %v, want compact", got)
	}
}

func TestEvaluateShortConversationNeverTriggers(t *testing.T) {
	policy, _ := testPolicy(t, &stubSummarizer{})

	// Even at full pressure, a conversation below the minimum length
	// only warns.
	for _, count := range []int{0, 1, 19} {
		if got := policy.Evaluate("conv-1", overThreshold(count)); got != DecisionWarn {
			t.Errorf("Evaluate with %d messages = %v, want warn", count, got)
		}
	}
	if got := policy.Evaluate("conv-1", overThreshold(20)); got != DecisionCompact {
		t.Errorf("Evaluate with 20 messages = %v, want compact", got)
	}
}

func TestEvaluateWithoutConversationID(t *testing.T) {
	policy, _ := testPolicy(t, &stubSummarizer{})

	if got := policy.Evaluate("", overThreshold(50)); got != DecisionWarn {
		t.Errorf("Evaluate without conversation ID = %v, want warn", got)
	}
}

func TestCooldownSuppressesRetrigger(t *testing.T) {
	stub := &stubSummarizer{summary: "condensed"}
	policy, fake := testPolicy(t, stub)

	if got := policy.Evaluate("conv-1", overThreshold(50)); got != DecisionCompact {
		t.Fatalf("first Evaluate = %v, want compact", got)
	}
	if _, err := policy.Run(context.Background(), "conv-1", nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Inside the cooldown the same pressure only warns.
	fake.Advance(4 * time.Minute)
	if got := policy.Evaluate("conv-1", overThreshold(50)); got != DecisionWarn {
		t.Errorf("Evaluate inside cooldown = %v, want warn", got)
	}

	// Past the cooldown it triggers again.
	fake.Advance(time.Minute)
	if got := policy.Evaluate("conv-1", overThreshold(50)); got != DecisionCompact {
		t.Errorf("Evaluate after cooldown = %v, want compact", got)
	}
}

func TestEvaluateDoesNotStamp(t *testing.T) {
	policy, _ := testPolicy(t, &stubSummarizer{})

	// Evaluating repeatedly without running must not start a cooldown.
	for i := 0; i < 3; i++ {
		if got := policy.Evaluate("conv-1", overThreshold(50)); got != DecisionCompact {
			t.Fatalf("Evaluate #%d = %v, want compact", i, got)
		}
	}
	if _, ok := policy.LastTriggered("conv-1"); ok {
		t.Error("Evaluate alone should not record a trigger")
	}
}

func TestCooldownAdvancesOnFailure(t *testing.T) {
	stub := &stubSummarizer{err: errors.New("subprocess exploded")}
	policy, fake := testPolicy(t, stub)

	_, err := policy.Run(context.Background(), "conv-1", nil)
	if err == nil {
		t.Fatal("Run should surface the summarizer failure")
	}

	// The failed attempt still counts against the cooldown, so the
	// next update cannot immediately re-trigger.
	fake.Advance(time.Second)
	if got := policy.Evaluate("conv-1", overThreshold(50)); got != DecisionWarn {
		t.Errorf("Evaluate after failed attempt = %v, want warn", got)
	}
}

func TestRunPassesTranscript(t *testing.T) {
	stub := &stubSummarizer{summary: "condensed"}
	policy, _ := testPolicy(t, stub)

	messages := []sessionlog.TranscriptMessage{
		{Role: "user", Text: "refactor the watcher"},
		{Role: "assistant", Text: "done"},
	}
	summary, err := policy.Run(context.Background(), "conv-1", messages)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary != "condensed" {
		t.Errorf("summary = %q", summary)
	}
	if stub.calls != 1 || len(stub.got) != 2 {
		t.Errorf("summarizer calls = %d, messages = %d", stub.calls, len(stub.got))
	}
}

func TestForgetClearsCooldown(t *testing.T) {
	stub := &stubSummarizer{summary: "condensed"}
	policy, fake := testPolicy(t, stub)

	if _, err := policy.Run(context.Background(), "conv-1", nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	fake.Advance(time.Second)
	if got := policy.Evaluate("conv-1", overThreshold(50)); got != DecisionWarn {
		t.Fatalf("Evaluate inside cooldown = %v, want warn", got)
	}

	policy.Forget("conv-1")
	if got := policy.Evaluate("conv-1", overThreshold(50)); got != DecisionCompact {
		t.Errorf("Evaluate after Forget = %v, want compact", got)
	}
}

func TestConversationsAreIndependent(t *testing.T) {
	stub := &stubSummarizer{summary: "condensed"}
	policy, fake := testPolicy(t, stub)

	if _, err := policy.Run(context.Background(), "conv-1", nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	fake.Advance(time.Second)

	if got := policy.Evaluate("conv-2", overThreshold(50)); got != DecisionCompact {
		t.Errorf("Evaluate for a different conversation = %v, want compact", got)
	}
}

func TestDecisionString(t *testing.T) {
	if DecisionNone.String() != "none" || DecisionWarn.String() != "warn" || DecisionCompact.String() != "compact" {
		t.Error("Decision.String mismatch")
	}
}
