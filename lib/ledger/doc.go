// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ledger is the local, append-only audit record of completed
// transfers.
//
// Each [Record] stores its [Entry] as deterministic CBOR together with a
// BLAKE3 hash over the previous record's hash and that encoding, so an
// edited or deleted row breaks the chain. [Ledger.Verify] walks the
// chain and reports the first broken link.
package ledger
