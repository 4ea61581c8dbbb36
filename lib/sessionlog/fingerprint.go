// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package sessionlog

import (
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// fingerprintSpan is the maximum number of leading bytes hashed into a
// fingerprint. Session logs start with a session-unique row, so the
// head identifies the file generation.
const fingerprintSpan = 4096

// Fingerprint identifies a log file generation by the BLAKE3 hash of
// its first Length bytes. Size comparison alone cannot distinguish
// "the same log grew" from "the log was replaced by a different,
// larger one"; the head hash can.
//
// Length is the hashed prefix length at capture time, so a later
// Matches call hashes exactly the same span and stays stable while
// the file grows by appends.
type Fingerprint struct {
	Length int64
	Sum    [32]byte
}

// IsZero reports whether the fingerprint was never captured.
func (f Fingerprint) IsZero() bool {
	return f.Length == 0
}

// TakeFingerprint hashes the first min(size, fingerprintSpan) bytes of
// path. An empty file yields a zero fingerprint, which matches any
// future content (there was nothing to identify yet).
func TakeFingerprint(path string) (Fingerprint, error) {
	file, err := os.Open(path)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("sessionlog: opening %s: %w", path, err)
	}
	defer file.Close()

	head := make([]byte, fingerprintSpan)
	n, err := io.ReadFull(file, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return Fingerprint{}, fmt.Errorf("sessionlog: reading head of %s: %w", path, err)
	}
	if n == 0 {
		return Fingerprint{}, nil
	}
	return Fingerprint{
		Length: int64(n),
		Sum:    blake3.Sum256(head[:n]),
	}, nil
}

// Matches reports whether path still begins with the fingerprinted
// bytes. False means the file was replaced (or rewritten) and any
// stored read offset is void. A zero fingerprint matches everything.
func (f Fingerprint) Matches(path string) (bool, error) {
	if f.IsZero() {
		return true, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("sessionlog: opening %s: %w", path, err)
	}
	defer file.Close()

	head := make([]byte, f.Length)
	if _, err := io.ReadFull(file, head); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			// Shorter than the fingerprinted span: cannot be the same
			// generation.
			return false, nil
		}
		return false, fmt.Errorf("sessionlog: reading head of %s: %w", path, err)
	}
	return blake3.Sum256(head) == f.Sum, nil
}
