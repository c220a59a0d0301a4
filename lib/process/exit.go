// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// Silent marks an error whose message has already been reported.
type Silent interface {
	Silent() bool
}

// ExitCode returns the status a binary exits with for err: 0 for nil,
// the error's own ExitCode() when it has one, else 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var coded interface{ ExitCode() int }
	if errors.As(err, &coded) {
		return coded.ExitCode()
	}
	return 1
}

// Report writes "error: err" to w unless err is nil or marked Silent.
func Report(w io.Writer, err error) {
	if err == nil {
		return
	}
	var silent Silent
	if errors.As(err, &silent) && silent.Silent() {
		return
	}
	fmt.Fprintf(w, "error: %v\n", err)
}

// Fatal reports err on stderr and exits with ExitCode(err).
func Fatal(err error) {
	Report(os.Stderr, err)
	os.Exit(ExitCode(err))
}
