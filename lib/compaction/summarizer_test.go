// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package compaction

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vigil-works/vigil/lib/sessionlog"
)

// fakeCLI writes a stand-in for the claude binary: a shell script
// that records its arguments and prints the given stdout.
func fakeCLI(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "claude")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

var transcript = []sessionlog.TranscriptMessage{
	{Role: "user", Text: "please fix the flaky watcher test"},
	{Role: "assistant", Text: "The debounce timer was firing twice."},
}

func TestCLISummarizer(t *testing.T) {
	capture := filepath.Join(t.TempDir(), "args")
	t.Setenv(BinaryEnvVar, fakeCLI(t, `printf '%s\n' "$@" > `+capture+`
echo "  the summary  "`))

	summarizer := NewCLISummarizer(t.TempDir(), nil)
	summary, err := summarizer.Summarize(context.Background(), transcript)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if summary != "the summary" {
		t.Errorf("summary = %q, want trimmed stdout", summary)
	}

	args, err := os.ReadFile(capture)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.HasPrefix(string(args), "--print\n") {
		t.Errorf("args should start with --print, got %q", args)
	}
	if !strings.Contains(string(args), "flaky watcher test") {
		t.Error("prompt should embed the transcript")
	}
}

func TestCLISummarizerNonZeroExit(t *testing.T) {
	t.Setenv(BinaryEnvVar, fakeCLI(t, `echo "rate limited" >&2
exit 1`))

	summarizer := NewCLISummarizer(t.TempDir(), nil)
	_, err := summarizer.Summarize(context.Background(), transcript)
	if err == nil {
		t.Fatal("Summarize should fail on non-zero exit")
	}
	if !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("error should carry the stderr excerpt, got %v", err)
	}
}

func TestCLISummarizerEmptyOutput(t *testing.T) {
	t.Setenv(BinaryEnvVar, fakeCLI(t, `exit 0`))

	summarizer := NewCLISummarizer(t.TempDir(), nil)
	_, err := summarizer.Summarize(context.Background(), transcript)
	if err == nil {
		t.Fatal("Summarize should fail on empty output")
	}
}

func TestCLISummarizerCancellation(t *testing.T) {
	t.Setenv(BinaryEnvVar, fakeCLI(t, `sleep 30`))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	summarizer := NewCLISummarizer(t.TempDir(), nil)
	_, err := summarizer.Summarize(ctx, transcript)
	if err == nil {
		t.Fatal("Summarize should fail when the context expires")
	}
}

func TestCLISummarizerEmptyTranscript(t *testing.T) {
	summarizer := NewCLISummarizer(t.TempDir(), nil)
	if _, err := summarizer.Summarize(context.Background(), nil); err == nil {
		t.Fatal("Summarize should reject an empty transcript")
	}
}

func TestBuildPromptTruncatesLongMessages(t *testing.T) {
	messages := []sessionlog.TranscriptMessage{
		{Role: "user", Text: strings.Repeat("x", maxMessageChars+500)},
	}
	prompt := buildPrompt(messages)
	if len(prompt) > len(summaryInstruction)+maxMessageChars+100 {
		t.Errorf("prompt length = %d, long messages should be capped", len(prompt))
	}
	if !strings.Contains(prompt, "[…]") {
		t.Error("truncated message should be marked")
	}
}
