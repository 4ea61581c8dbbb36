// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package main

import "fmt"

// exitError signals a non-zero exit code without printing an extra
// error message. When a command returns an exitError, main exits with
// the specified code without printing the error string; the command is
// expected to have already written its own output.
//
// This is for commands where a non-zero exit is a valid outcome (like
// "status" against a stopped daemon) rather than an unexpected error.
type exitError struct {
	Code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns the exit code. main checks for this interface on
// returned errors to distinguish "handled non-zero exit" from
// "unexpected error to display".
func (e *exitError) ExitCode() int {
	return e.Code
}
