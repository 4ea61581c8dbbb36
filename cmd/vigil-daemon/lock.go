// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// processLock is an advisory flock on the daemon lock file. The lock is
// held for the lifetime of the process and released by the kernel if the
// daemon dies without cleaning up, so a stale lock file never blocks a
// restart.
type processLock struct {
	path string
	file *os.File
}

// acquireLock takes an exclusive non-blocking flock on path and writes
// the daemon PID into the file for operator inspection. A held lock
// means another vigil-daemon owns this state directory.
func acquireLock(path string) (*processLock, error) {
	fd, err := unix.Open(path, unix.O_CREAT|unix.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("lock: open %s: %w", path, err)
	}
	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		unix.Close(fd)
		if err == unix.EWOULDBLOCK {
			return nil, fmt.Errorf("lock: %s is held, another vigil-daemon is running", path)
		}
		return nil, fmt.Errorf("lock: flock %s: %w", path, err)
	}

	file := os.NewFile(uintptr(fd), path)
	if err := file.Truncate(0); err != nil {
		file.Close()
		return nil, fmt.Errorf("lock: truncate %s: %w", path, err)
	}
	if _, err := file.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0); err != nil {
		file.Close()
		return nil, fmt.Errorf("lock: write pid to %s: %w", path, err)
	}
	return &processLock{path: path, file: file}, nil
}

// Release drops the flock and removes the lock file. Safe to call once;
// the kernel releases the flock when the descriptor closes.
func (l *processLock) Release() error {
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("lock: close %s: %w", l.path, err)
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("lock: remove %s: %w", l.path, err)
	}
	return nil
}
