// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
)

// ErrCrypto is wrapped by every key agreement, encryption, and
// decryption failure.
var ErrCrypto = errors.New("identity: crypto failure")

// Keypair is one peer's long-lived keys.
type Keypair struct {
	SigningKey    ed25519.PrivateKey
	EncryptionKey [curve25519.ScalarSize]byte
}

// Generate creates a fresh keypair from crypto/rand.
func Generate() (*Keypair, error) {
	return generate(rand.Reader)
}

func generate(random io.Reader) (*Keypair, error) {
	_, signing, err := ed25519.GenerateKey(random)
	if err != nil {
		return nil, fmt.Errorf("identity: generating signing key: %w", err)
	}
	keypair := &Keypair{SigningKey: signing}
	if _, err := io.ReadFull(random, keypair.EncryptionKey[:]); err != nil {
		return nil, fmt.Errorf("identity: generating encryption key: %w", err)
	}
	return keypair, nil
}

// Pub returns the public identity: the Ed25519 public key, unpadded
// base64url.
func (k *Keypair) Pub() string {
	public := k.SigningKey.Public().(ed25519.PublicKey)
	return base64.RawURLEncoding.EncodeToString(public)
}

// EncryptionPub returns the X25519 public key peers use with
// DeriveSecret, unpadded base64url.
func (k *Keypair) EncryptionPub() string {
	public, err := curve25519.X25519(k.EncryptionKey[:], curve25519.Basepoint)
	if err != nil {
		// Only possible for a scalar producing the all-zero point, which
		// clamping rules out.
		panic(fmt.Sprintf("identity: deriving encryption public key: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(public)
}

// Sign signs message with the signing key.
func (k *Keypair) Sign(message []byte) string {
	return base64.RawURLEncoding.EncodeToString(ed25519.Sign(k.SigningKey, message))
}

// Verify checks a signature produced by Sign against a public identity.
func Verify(pub string, message []byte, signature string) error {
	public, err := decodeKey(pub, ed25519.PublicKeySize)
	if err != nil {
		return err
	}
	raw, err := base64.RawURLEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("%w: decoding signature: %v", ErrCrypto, err)
	}
	if !ed25519.Verify(public, message, raw) {
		return fmt.Errorf("%w: signature does not verify", ErrCrypto)
	}
	return nil
}

// ValidatePub reports whether pub is a well-formed public identity.
func ValidatePub(pub string) error {
	_, err := decodeKey(pub, ed25519.PublicKeySize)
	return err
}

func decodeKey(encoded string, size int) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding key: %v", ErrCrypto, err)
	}
	if len(raw) != size {
		return nil, fmt.Errorf("%w: key is %d bytes, want %d", ErrCrypto, len(raw), size)
	}
	return raw, nil
}
