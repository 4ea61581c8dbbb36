// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package sessionlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// TranscriptMessage is one conversation turn's readable text, for
// consumers that need content rather than token accounting.
type TranscriptMessage struct {
	Role string
	Text string
}

// Wire shape of a row when extracting text. Content is either a plain
// string or a list of typed blocks; only text blocks are kept.
type transcriptLine struct {
	Type        string `json:"type"`
	IsSidechain bool   `json:"isSidechain"`
	Message     *struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"message"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ReadTranscript extracts the readable conversation from the log at
// path: user and assistant turns, sidechains excluded, tool traffic
// and empty turns dropped. A positive limit keeps only the most
// recent turns.
func ReadTranscript(path string, limit int) ([]TranscriptMessage, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sessionlog: opening %s: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, scanInitialBuffer), scanMaxLine)

	var messages []TranscriptMessage
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var row transcriptLine
		if err := json.Unmarshal(line, &row); err != nil {
			continue
		}
		if row.IsSidechain || row.Message == nil {
			continue
		}
		if row.Type != KindUser && row.Type != KindAssistant {
			continue
		}

		text := contentText(row.Message.Content)
		if text == "" {
			continue
		}
		messages = append(messages, TranscriptMessage{
			Role: row.Message.Role,
			Text: text,
		})
	}
	if err := scanner.Err(); err != nil {
		return messages, fmt.Errorf("sessionlog: scanning %s: %w", path, err)
	}

	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}

// contentText flattens a content field to plain text. Tool-use and
// tool-result blocks carry no conversational text and contribute
// nothing.
func contentText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return plain
	}

	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return ""
	}

	var parts []string
	for _, block := range blocks {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}
