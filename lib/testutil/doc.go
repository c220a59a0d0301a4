// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil collects helpers shared by the package tests.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// safety valve so tests never hang on a missing delivery. Code whose
// timing a test asserts runs on a clock.FakeClock. [RequireNoReceive]
// checks that nothing arrives within a short window.
package testutil
