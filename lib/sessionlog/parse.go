// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package sessionlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Event kinds observed in session logs. Other kinds (system, progress,
// file-history-snapshot) pass through with their literal type string;
// consumers filter on what they understand.
const (
	KindUser      = "user"
	KindAssistant = "assistant"
	KindSummary   = "summary"
)

// Scanner sizing for log rows. Tool results embed whole files, so
// individual lines run far past bufio's default 64 KiB.
const (
	scanInitialBuffer = 1024 * 1024
	scanMaxLine       = 10 * 1024 * 1024
)

// TokenUsage is the token accounting block of one API exchange.
type TokenUsage struct {
	InputTokens         uint64
	OutputTokens        uint64
	CacheReadTokens     uint64
	CacheCreationTokens uint64
}

// Billable returns the tokens that count against plan-window usage.
// Cache reads and cache writes are billed separately by the provider
// and stay out of the plan gauge.
func (u TokenUsage) Billable() uint64 {
	return u.InputTokens + u.OutputTokens
}

// ContextFootprint returns the full context-window occupancy of the
// exchange: prompt, cache hits, cache writes, and the reply.
func (u TokenUsage) ContextFootprint() uint64 {
	return u.InputTokens + u.CacheReadTokens + u.CacheCreationTokens + u.OutputTokens
}

// LogEvent is one parsed session log row. Fields absent from the row
// are zero; nothing here is required except Kind. ContentChars is the
// byte length of the raw message content, a cheap proxy for text size
// used by token estimation.
type LogEvent struct {
	Kind             string
	Timestamp        time.Time
	SessionID        string
	MessageID        string
	Role             string
	Model            string
	Usage            *TokenUsage
	ContentChars     int
	IsSidechain      bool
	IsAPIError       bool
	IsCompactSummary bool
}

// Wire shapes of a session log row. Only the fields the engine uses
// are declared; everything else in the row is ignored.
type logLine struct {
	Type             string      `json:"type"`
	Timestamp        string      `json:"timestamp"`
	SessionID        string      `json:"sessionId"`
	IsSidechain      bool        `json:"isSidechain"`
	IsAPIError       bool        `json:"isApiErrorMessage"`
	IsCompactSummary bool        `json:"isCompactSummary"`
	Message          *logMessage `json:"message"`
}

type logMessage struct {
	ID      string          `json:"id"`
	Role    string          `json:"role"`
	Model   string          `json:"model"`
	Content json.RawMessage `json:"content"`
	Usage   *logUsage       `json:"usage"`
}

type logUsage struct {
	InputTokens         uint64 `json:"input_tokens"`
	OutputTokens        uint64 `json:"output_tokens"`
	CacheCreationInput  uint64 `json:"cache_creation_input_tokens"`
	CacheReadInput      uint64 `json:"cache_read_input_tokens"`
}

// ParseLine parses one log row. The second return is false for rows
// the engine cannot use: invalid JSON or a missing type. Torn lines
// from a concurrent writer land here routinely, so the failure mode is
// a silent skip, never an error.
func ParseLine(line []byte) (LogEvent, bool) {
	var row logLine
	if err := json.Unmarshal(line, &row); err != nil || row.Type == "" {
		return LogEvent{}, false
	}

	event := LogEvent{
		Kind:             row.Type,
		SessionID:        row.SessionID,
		IsSidechain:      row.IsSidechain,
		IsAPIError:       row.IsAPIError,
		IsCompactSummary: row.IsCompactSummary,
	}

	if row.Timestamp != "" {
		ts, err := parseTimestamp(row.Timestamp)
		if err != nil {
			return LogEvent{}, false
		}
		event.Timestamp = ts
	}

	if row.Message != nil {
		event.MessageID = row.Message.ID
		event.Role = row.Message.Role
		event.Model = row.Message.Model
		event.ContentChars = len(row.Message.Content)
		if row.Message.Usage != nil {
			event.Usage = &TokenUsage{
				InputTokens:         row.Message.Usage.InputTokens,
				OutputTokens:        row.Message.Usage.OutputTokens,
				CacheReadTokens:     row.Message.Usage.CacheReadInput,
				CacheCreationTokens: row.Message.Usage.CacheCreationInput,
			}
		}
	}
	return event, true
}

// parseTimestamp accepts the two timestamp forms seen in the wild:
// RFC 3339 with and without fractional seconds.
func parseTimestamp(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339, s)
}

// ReadEvents parses every usable row of the log at path, skipping rows
// ParseLine rejects. A missing file is returned as a wrapped
// os.ErrNotExist so callers can treat absence as the empty session.
func ReadEvents(path string) ([]LogEvent, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sessionlog: opening %s: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, scanInitialBuffer), scanMaxLine)

	var events []LogEvent
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if event, ok := ParseLine(line); ok {
			events = append(events, event)
		}
	}
	if err := scanner.Err(); err != nil {
		return events, fmt.Errorf("sessionlog: scanning %s: %w", path, err)
	}
	return events, nil
}

// Deduplicate collapses rows sharing a message ID: streamed responses
// are journaled once per chunk, all carrying the same ID with
// cumulative usage, so the last row wins. Events without an ID pass
// through. Order follows each message's first appearance.
func Deduplicate(events []LogEvent) []LogEvent {
	byID := make(map[string]int)
	result := make([]LogEvent, 0, len(events))
	for _, event := range events {
		if event.MessageID == "" {
			result = append(result, event)
			continue
		}
		if i, seen := byID[event.MessageID]; seen {
			result[i] = event
			continue
		}
		byID[event.MessageID] = len(result)
		result = append(result, event)
	}
	return result
}
