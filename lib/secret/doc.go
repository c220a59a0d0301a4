// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds credentials outside the Go heap: the identity
// file passphrase, the lnd macaroon, and the seed provider token.
//
// A [Buffer] is an anonymous mmap region, mlocked against swap and
// excluded from core dumps. Close zeroes and unmaps it; any access after
// Close panics. [ReadFromPath] is the usual way in: it reads a file (or
// stdin for "-"), trims whitespace, and zeroes the heap copy.
package secret
