// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec fixes the CBOR configuration used for everything this
// module writes to disk: ledger records (whose bytes feed the BLAKE3
// hash chain, so encoding must be deterministic), sealed identity
// files, and store snapshots.
//
// Wire messages written to the shared graph stay JSON. Types that are
// only ever persisted locally carry `cbor` struct tags; types that
// cross both boundaries carry `json` tags, which fxamacker/cbor reads
// as a fallback.
package codec
