// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package sessionlog

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Tailer performs delta reads over a growing log file. It is
// stateless: the caller owns the byte offset and passes it in per
// call, so one Tailer serves any number of files.
type Tailer struct {
	logger *slog.Logger
}

// NewTailer returns a Tailer. A nil logger discards the truncation
// warnings.
func NewTailer(logger *slog.Logger) *Tailer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Tailer{logger: logger}
}

// ReadNewLines returns the complete lines appended to path since
// offset, plus the offset to use for the next call.
//
//   - Size equal to offset: nil lines, offset unchanged.
//   - Size below offset: the file was truncated or rotated in place; a
//     warning is logged and this call reads from position zero.
//   - Otherwise the span [offset, size) is read, split on newlines,
//     and returned without blank lines. A trailing partial line is
//     held back: the returned offset stops at the last newline, so the
//     partial line is delivered whole on a later call once its
//     terminator arrives.
//
// The file is opened and closed within the call. Long-lived watches
// never pin a descriptor between filesystem events.
func (t *Tailer) ReadNewLines(path string, offset int64) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, offset, fmt.Errorf("sessionlog: opening %s: %w", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, offset, fmt.Errorf("sessionlog: stat %s: %w", path, err)
	}
	size := info.Size()

	if size == offset {
		return nil, offset, nil
	}
	if size < offset {
		t.logger.Warn("log shrank below read offset, rereading from start",
			"path", path,
			"offset", offset,
			"size", size,
		)
		offset = 0
	}

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, fmt.Errorf("sessionlog: seek %s: %w", path, err)
	}

	// Bound the read to the size observed above so a concurrent writer
	// appending mid-read cannot extend this pass indefinitely.
	delta, err := io.ReadAll(io.LimitReader(file, size-offset))
	if err != nil {
		return nil, offset, fmt.Errorf("sessionlog: reading %s: %w", path, err)
	}

	lastNewline := bytes.LastIndexByte(delta, '\n')
	if lastNewline < 0 {
		// Nothing but a partial line so far. Leave the offset where it
		// is; the line is returned once completed.
		return nil, offset, nil
	}

	var lines []string
	for _, raw := range bytes.Split(delta[:lastNewline], []byte{'\n'}) {
		line := strings.TrimSuffix(string(raw), "\r")
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines, offset + int64(lastNewline) + 1, nil
}
