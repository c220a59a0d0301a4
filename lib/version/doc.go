// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports the build of the shockpay binaries.
//
// Release builds stamp [Version] and [GitCommit] with -ldflags:
//
//	go build -ldflags "-X github.com/shockpay/shockpay/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// Unstamped builds fall back to the VCS settings the Go toolchain
// embeds in the binary.
package version
