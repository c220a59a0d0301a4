// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package graph is the client contract for the shared, eventually
// consistent graph store that peers use as a message bus.
//
// A graph is a tree of JSON values addressed by [Path]. Any party may
// read any path and append to any collection; owner-scoped subtrees are
// rooted at "~<public key>" by convention. The contract the order
// protocol relies on is defined once, by [Store]:
//
//   - Put merges a value into a path. Objects merge field by field with
//     last write winning per field; any other value replaces.
//   - Append writes to a fresh child of a collection and returns the id.
//   - Read is a one-shot read that may race with concurrent writers.
//   - Subscribe and SubscribeChildren replay current values and then
//     deliver live writes, at least once, with no ordering across paths.
//
// Deliveries for one subscription arrive in order on a single goroutine
// owned by the store. Callbacks must not block for long; they may run
// briefly after Stop returns.
//
// Two implementations are provided. [Memory] is an in-process store
// with push delivery. [SQLite] is a local replica file shared by every
// process on a host; its subscriptions poll a write sequence on the
// injected clock.
package graph
