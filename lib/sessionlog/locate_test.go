// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package sessionlog

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSessionDirectory(t *testing.T) {
	tests := []struct {
		name      string
		workspace string
		want      string
	}{
		{"unix path", "/home/dev/projects/vigil", "-home-dev-projects-vigil"},
		{"dots collapse", "/home/dev/my.project", "-home-dev-my-project"},
		{"windows separators", `C:\Users\dev\work`, "C:-Users-dev-work"},
		{"root", "/", "-"},
		{"trailing slash", "/home/dev/", "-home-dev-"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := SessionDirectory("/projects", test.workspace)
			want := filepath.Join("/projects", test.want)
			if got != want {
				t.Errorf("SessionDirectory(%q) = %q, want %q", test.workspace, got, want)
			}
		})
	}
}

func TestFindActiveLogMissingDirectory(t *testing.T) {
	path, err := FindActiveLog(filepath.Join(t.TempDir(), "absent"), nil)
	if err != nil {
		t.Fatalf("FindActiveLog: %v", err)
	}
	if path != "" {
		t.Errorf("FindActiveLog = %q, want empty for missing directory", path)
	}
}

func TestFindActiveLogEmptyDirectory(t *testing.T) {
	path, err := FindActiveLog(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("FindActiveLog: %v", err)
	}
	if path != "" {
		t.Errorf("FindActiveLog = %q, want empty for empty directory", path)
	}
}

func TestFindActiveLogNewestWins(t *testing.T) {
	directory := t.TempDir()
	old := writeLogFile(t, directory, "agent-old.jsonl", time.Now().Add(-time.Hour))
	recent := writeLogFile(t, directory, "agent-new.jsonl", time.Now().Add(-time.Minute))

	path, err := FindActiveLog(directory, nil)
	if err != nil {
		t.Fatalf("FindActiveLog: %v", err)
	}
	if path != recent {
		t.Errorf("FindActiveLog = %q, want %q (not %q)", path, recent, old)
	}
}

func TestFindActiveLogPrimaryBonus(t *testing.T) {
	// A primary session log modified slightly before a subagent log
	// still wins: the subagent's rows feed the primary transcript, so
	// the primary is the session of record.
	directory := t.TempDir()
	now := time.Now()
	primary := writeLogFile(t, directory, "0b54e326-1937-4a88-b0f2-2a61e5c7a3de.jsonl", now.Add(-10*time.Second))
	writeLogFile(t, directory, "agent-helper.jsonl", now)

	path, err := FindActiveLog(directory, nil)
	if err != nil {
		t.Fatalf("FindActiveLog: %v", err)
	}
	if path != primary {
		t.Errorf("FindActiveLog = %q, want primary %q", path, primary)
	}
}

func TestFindActiveLogPrimaryBonusBounded(t *testing.T) {
	// The tiebreak does not resurrect a stale primary when the
	// subagent log is clearly the active one.
	directory := t.TempDir()
	now := time.Now()
	writeLogFile(t, directory, "0b54e326-1937-4a88-b0f2-2a61e5c7a3de.jsonl", now.Add(-5*time.Minute))
	agent := writeLogFile(t, directory, "agent-helper.jsonl", now)

	path, err := FindActiveLog(directory, nil)
	if err != nil {
		t.Fatalf("FindActiveLog: %v", err)
	}
	if path != agent {
		t.Errorf("FindActiveLog = %q, want %q", path, agent)
	}
}

func TestFindActiveLogIgnoresOtherFiles(t *testing.T) {
	directory := t.TempDir()
	log := writeLogFile(t, directory, "agent-a.jsonl", time.Now().Add(-time.Hour))
	writeLogFile(t, directory, "notes.txt", time.Now())
	writeLogFile(t, directory, "state.json", time.Now())
	if err := os.Mkdir(filepath.Join(directory, "nested.jsonl"), 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}

	path, err := FindActiveLog(directory, nil)
	if err != nil {
		t.Fatalf("FindActiveLog: %v", err)
	}
	if path != log {
		t.Errorf("FindActiveLog = %q, want %q", path, log)
	}
}

func TestIsPrimaryLog(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"0b54e326-1937-4a88-b0f2-2a61e5c7a3de.jsonl", true},
		{"0B54E326-1937-4A88-B0F2-2A61E5C7A3DE.jsonl", true},
		{"agent-0b54e326.jsonl", false},
		{"0b54e326-1937-4a88-b0f2-2a61e5c7a3de.json", false},
		{"0b54e326.jsonl", false},
		{"", false},
	}

	for _, test := range tests {
		if got := IsPrimaryLog(test.name); got != test.want {
			t.Errorf("IsPrimaryLog(%q) = %v, want %v", test.name, got, test.want)
		}
	}
}

func writeLogFile(t *testing.T, directory, name string, modified time.Time) string {
	t.Helper()
	path := filepath.Join(directory, name)
	if err := os.WriteFile(path, []byte("{}\n"), 0o644); err != nil {
		t.Fatalf("WriteFile %s: %v", name, err)
	}
	if err := os.Chtimes(path, modified, modified); err != nil {
		t.Fatalf("Chtimes %s: %v", name, err)
	}
	return path
}
