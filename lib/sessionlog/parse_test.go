// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package sessionlog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseLineAssistant(t *testing.T) {
	line := `{"type":"assistant","timestamp":"2026-02-10T09:15:30.123Z","sessionId":"s-1",` +
		`"message":{"id":"msg_01","role":"assistant","model":"claude-sonnet-4-5",` +
		`"content":[{"type":"text","text":"done"}],"usage":{"input_tokens":12,"output_tokens":340,` +
		`"cache_creation_input_tokens":2048,"cache_read_input_tokens":55000}}}`

	event, ok := ParseLine([]byte(line))
	if !ok {
		t.Fatal("ParseLine rejected a valid assistant row")
	}
	if event.Kind != KindAssistant {
		t.Errorf("Kind = %q, want %q", event.Kind, KindAssistant)
	}
	if event.SessionID != "s-1" {
		t.Errorf("SessionID = %q, want s-1", event.SessionID)
	}
	if event.MessageID != "msg_01" {
		t.Errorf("MessageID = %q, want msg_01", event.MessageID)
	}
	if event.Model != "claude-sonnet-4-5" {
		t.Errorf("Model = %q, want claude-sonnet-4-5", event.Model)
	}
	if event.ContentChars != len(`[{"type":"text","text":"done"}]`) {
		t.Errorf("ContentChars = %d", event.ContentChars)
	}
	want := time.Date(2026, 2, 10, 9, 15, 30, 123000000, time.UTC)
	if !event.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", event.Timestamp, want)
	}
	if event.Usage == nil {
		t.Fatal("Usage missing")
	}
	if event.Usage.InputTokens != 12 || event.Usage.OutputTokens != 340 {
		t.Errorf("usage = %+v", *event.Usage)
	}
	if event.Usage.CacheCreationTokens != 2048 || event.Usage.CacheReadTokens != 55000 {
		t.Errorf("cache usage = %+v", *event.Usage)
	}
	if got := event.Usage.Billable(); got != 352 {
		t.Errorf("Billable = %d, want 352", got)
	}
	if got := event.Usage.ContextFootprint(); got != 57400 {
		t.Errorf("ContextFootprint = %d, want 57400", got)
	}
}

func TestParseLineFlags(t *testing.T) {
	tests := []struct {
		name string
		line string
		test func(t *testing.T, event LogEvent)
	}{
		{
			"sidechain",
			`{"type":"assistant","timestamp":"2026-02-10T09:00:00Z","isSidechain":true}`,
			func(t *testing.T, event LogEvent) {
				if !event.IsSidechain {
					t.Error("IsSidechain not set")
				}
			},
		},
		{
			"api error",
			`{"type":"assistant","timestamp":"2026-02-10T09:00:00Z","isApiErrorMessage":true}`,
			func(t *testing.T, event LogEvent) {
				if !event.IsAPIError {
					t.Error("IsAPIError not set")
				}
			},
		},
		{
			"compact summary",
			`{"type":"user","timestamp":"2026-02-10T09:00:00Z","isCompactSummary":true}`,
			func(t *testing.T, event LogEvent) {
				if !event.IsCompactSummary {
					t.Error("IsCompactSummary not set")
				}
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			event, ok := ParseLine([]byte(test.line))
			if !ok {
				t.Fatal("ParseLine rejected row")
			}
			test.test(t, event)
		})
	}
}

func TestParseLineSummaryWithoutTimestamp(t *testing.T) {
	// Session-index summary rows carry no timestamp. They still parse;
	// the zero time marks them as unanchored.
	event, ok := ParseLine([]byte(`{"type":"summary","summary":"Fixing the tail reader"}`))
	if !ok {
		t.Fatal("ParseLine rejected summary row")
	}
	if event.Kind != KindSummary {
		t.Errorf("Kind = %q, want %q", event.Kind, KindSummary)
	}
	if !event.Timestamp.IsZero() {
		t.Errorf("Timestamp = %v, want zero", event.Timestamp)
	}
}

func TestParseLineSecondsPrecision(t *testing.T) {
	event, ok := ParseLine([]byte(`{"type":"user","timestamp":"2026-02-10T09:00:00Z"}`))
	if !ok {
		t.Fatal("ParseLine rejected row with seconds-precision timestamp")
	}
	want := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	if !event.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", event.Timestamp, want)
	}
}

func TestParseLineRejects(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"torn json", `{"type":"assistant","time`},
		{"not json", "garbage"},
		{"missing type", `{"timestamp":"2026-02-10T09:00:00Z"}`},
		{"bad timestamp", `{"type":"user","timestamp":"yesterday"}`},
		{"empty", ""},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, ok := ParseLine([]byte(test.line)); ok {
				t.Errorf("ParseLine(%q) should reject", test.line)
			}
		})
	}
}

func TestReadEventsSkipsBadRows(t *testing.T) {
	content := `{"type":"user","timestamp":"2026-02-10T09:00:00Z"}
not json at all
{"type":"assistant","timestamp":"2026-02-10T09:00:05Z","message":{"id":"msg_02","usage":{"input_tokens":5,"output_tokens":7}}}
`
	path := filepath.Join(t.TempDir(), "session.jsonl")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	events, err := ReadEvents(path)
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if events[0].Kind != KindUser || events[1].Kind != KindAssistant {
		t.Errorf("kinds = %q, %q", events[0].Kind, events[1].Kind)
	}
	if events[1].Usage == nil || events[1].Usage.OutputTokens != 7 {
		t.Errorf("second event usage = %+v", events[1].Usage)
	}
}

func TestReadEventsMissingFile(t *testing.T) {
	_, err := ReadEvents(filepath.Join(t.TempDir(), "absent.jsonl"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("ReadEvents error = %v, want wrapped os.ErrNotExist", err)
	}
}

func TestDeduplicateLastWins(t *testing.T) {
	// Streamed responses journal one row per chunk, same message ID,
	// cumulative usage. The final row's payload replaces the earlier
	// ones in the first row's position.
	events := []LogEvent{
		{Kind: KindUser, MessageID: ""},
		{Kind: KindAssistant, MessageID: "msg_01", Usage: &TokenUsage{OutputTokens: 10}},
		{Kind: KindAssistant, MessageID: "msg_02", Usage: &TokenUsage{OutputTokens: 1}},
		{Kind: KindAssistant, MessageID: "msg_01", Usage: &TokenUsage{OutputTokens: 450}},
	}

	got := Deduplicate(events)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].Kind != KindUser {
		t.Errorf("got[0].Kind = %q, want user", got[0].Kind)
	}
	if got[1].MessageID != "msg_01" || got[1].Usage.OutputTokens != 450 {
		t.Errorf("got[1] = %+v, want final msg_01 payload in original position", got[1])
	}
	if got[2].MessageID != "msg_02" {
		t.Errorf("got[2].MessageID = %q, want msg_02", got[2].MessageID)
	}
}

func TestDeduplicateNoIDs(t *testing.T) {
	events := []LogEvent{{Kind: KindUser}, {Kind: KindUser}, {Kind: KindSummary}}
	got := Deduplicate(events)
	if len(got) != 3 {
		t.Errorf("len = %d, want 3 (rows without IDs pass through)", len(got))
	}
}

func TestDeduplicateEmpty(t *testing.T) {
	if got := Deduplicate(nil); len(got) != 0 {
		t.Errorf("Deduplicate(nil) = %v, want empty", got)
	}
}
