// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock is the injectable time source used by the poller, the
// SQLite store's change feed, the listener, and the requester.
//
// Production code takes a [Clock] and is given [Real]. Tests hand in a
// [FakeClock] from [Fake] and drive it with Advance. Because goroutines
// register timers asynchronously, tests call WaitForTimers before
// Advance so the timer they mean to fire actually exists:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go requester.SendPayment(ctx, ...)
//	fake.WaitForTimers(1)
//	fake.Advance(20 * time.Second) // response budget expires
//
// Clock also satisfies backoff.Clock from cenkalti/backoff, so the same
// value can be handed to an ExponentialBackOff.
package clock
