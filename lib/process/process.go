// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the entrypoint helpers shared by Vigil
// binaries: the one sanctioned raw-stderr path for errors that occur
// before the structured logger exists.
package process

import (
	"fmt"
	"os"
)

// Fatal writes "error: err" to stderr and exits 1. Use it in main()
// for errors bubbling out of run(), where no logger is guaranteed.
func Fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
