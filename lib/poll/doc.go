// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package poll waits for a value to show up in an eventually consistent
// store: the first value a predicate accepts wins, and the wait is
// bounded by a caller-supplied budget.
//
// Two drivers share one contract:
//
//   - [Subscribe] is push-driven. The caller registers a store
//     subscription; every delivered value is tested as it arrives and
//     nothing runs between deliveries.
//   - [Read] is pull-driven for sources that only offer one-shot reads.
//     Attempts are spaced by exponential backoff (cenkalti/backoff) on
//     the injected clock, so there is no busy loop.
//
// Both return a [*TimeoutError] (matching [ErrTimeout]) when the budget
// runs out, and both release their subscription or timers on every exit
// path so repeated calls do not leak listeners.
package poll
