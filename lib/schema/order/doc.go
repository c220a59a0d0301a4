// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package order defines the messages exchanged by the payment order
// protocol and their structural validation.
//
// An [Order] is appended by a requester into the target peer's mailbox.
// The target answers with a [Response] keyed by the order's append id:
// an invoice, an error, or (for flows whose [TargetType] requires one)
// a later acknowledgement written under the response's AckNode.
//
// Amount, Memo and Response payloads travel encrypted with the shared
// secret of the two peers; this package sees them only as opaque
// strings. Validation here is shape-only: [ParseOrder] and
// [ParseResponse] reject documents that cannot be protocol messages.
//
// This package depends only on lib/graph for the value type.
package order
