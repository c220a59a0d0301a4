// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the entrypoint helpers the shockpay binaries
// share: reporting an error from run() before or after the structured
// logger exists, and mapping it to an exit status.
package process
