// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the small command framework behind the shockpay
// binary: a [Command] tree dispatched by the first positional
// argument, pflag flag sets, generated help with "did you mean"
// suggestions, and helpers for JSON output, logging, and passphrase
// entry.
package cli
