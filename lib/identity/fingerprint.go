// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Fingerprint returns a short, stable tag for a public key, for logs.
func Fingerprint(pub string) string {
	sum := blake3.Sum256([]byte(pub))
	return hex.EncodeToString(sum[:8])
}
