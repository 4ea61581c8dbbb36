// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package compaction

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/vigil-works/vigil/lib/sessionlog"
)

// BinaryEnvVar overrides the summarizer binary path.
const BinaryEnvVar = "VIGIL_CLAUDE_BINARY"

const (
	// Per-message cap keeps a pathological transcript from blowing up
	// the argv prompt.
	maxMessageChars = 4000
	stderrExcerpt   = 512
)

const summaryInstruction = "Summarize the following coding-session transcript. " +
	"Preserve the task intent, decisions made, file paths touched, and any unresolved problems. " +
	"Reply with only the summary.\n\n"

// CLISummarizer produces summaries by shelling out to the Claude CLI
// in print mode: the prompt carries the transcript, stdout is the
// summary.
type CLISummarizer struct {
	binary           string
	workingDirectory string
	logger           *slog.Logger
}

// NewCLISummarizer returns a summarizer running in workingDirectory.
// The binary comes from VIGIL_CLAUDE_BINARY, defaulting to "claude"
// on PATH. A nil logger discards.
func NewCLISummarizer(workingDirectory string, logger *slog.Logger) *CLISummarizer {
	binary := os.Getenv(BinaryEnvVar)
	if binary == "" {
		binary = "claude"
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &CLISummarizer{
		binary:           binary,
		workingDirectory: workingDirectory,
		logger:           logger,
	}
}

// Summarize runs the CLI once and returns its stdout. Non-zero exit,
// empty output, and context cancellation are errors.
func (s *CLISummarizer) Summarize(ctx context.Context, messages []sessionlog.TranscriptMessage) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("summarizer: empty transcript")
	}

	command := exec.CommandContext(ctx, s.binary, "--print", buildPrompt(messages))
	command.Dir = s.workingDirectory

	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	s.logger.Debug("invoking summarizer",
		"binary", s.binary,
		"messages", len(messages))

	if err := command.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("summarizer: %w", ctx.Err())
		}
		detail := strings.TrimSpace(stderr.String())
		if len(detail) > stderrExcerpt {
			detail = detail[:stderrExcerpt]
		}
		if detail != "" {
			return "", fmt.Errorf("summarizer: %s: %w (%s)", s.binary, err, detail)
		}
		return "", fmt.Errorf("summarizer: %s: %w", s.binary, err)
	}

	summary := strings.TrimSpace(stdout.String())
	if summary == "" {
		return "", fmt.Errorf("summarizer: %s produced no output", s.binary)
	}
	return summary, nil
}

func buildPrompt(messages []sessionlog.TranscriptMessage) string {
	var prompt strings.Builder
	prompt.WriteString(summaryInstruction)
	for _, message := range messages {
		text := message.Text
		if len(text) > maxMessageChars {
			text = text[:maxMessageChars] + " […]"
		}
		prompt.WriteString(message.Role)
		prompt.WriteString(": ")
		prompt.WriteString(text)
		prompt.WriteString("\n\n")
	}
	return prompt.String()
}
