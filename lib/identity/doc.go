// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity holds a peer's keypair and the symmetric channel two
// peers derive from each other's published keys.
//
// A [Keypair] pairs an Ed25519 signing key, whose public half is the
// peer's identity in the shared graph, with an X25519 key used only for
// key agreement. [DeriveSecret] runs X25519 against the other party's
// published encryption key and stretches the result with HKDF-SHA256;
// both sides arrive at the same [SharedSecret]. [Encrypt] and [Decrypt]
// seal short text fields under that secret with XChaCha20-Poly1305.
//
// Keypairs are stored on disk as age files sealed with a passphrase
// (see [Save] and [Load]). Every cryptographic failure wraps
// [ErrCrypto].
package identity
