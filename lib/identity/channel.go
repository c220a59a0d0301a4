// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// SharedSecret is the symmetric key two peers derive for their order
// traffic.
type SharedSecret [chacha20poly1305.KeySize]byte

// sealedVersion prefixes every ciphertext and is authenticated as AAD.
const sealedVersion byte = 0x01

const sealedOverhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

// Changing this invalidates every ciphertext in flight.
var hkdfInfoOrderChannel = []byte("shockpay.order.channel.v1")

// DeriveSecret computes the secret shared with the owner of
// theirEncryptionPub. Both parties get the same value.
func DeriveSecret(theirEncryptionPub string, own *Keypair) (SharedSecret, error) {
	var secret SharedSecret
	if own == nil {
		return secret, fmt.Errorf("%w: no local keypair", ErrCrypto)
	}
	point, err := decodeKey(theirEncryptionPub, curve25519.PointSize)
	if err != nil {
		return secret, err
	}
	shared, err := curve25519.X25519(own.EncryptionKey[:], point)
	if err != nil {
		return secret, fmt.Errorf("%w: key agreement: %v", ErrCrypto, err)
	}
	reader := hkdf.New(sha256.New, shared, nil, hkdfInfoOrderChannel)
	if _, err := io.ReadFull(reader, secret[:]); err != nil {
		return secret, fmt.Errorf("%w: expanding shared key: %v", ErrCrypto, err)
	}
	return secret, nil
}

// Encrypt seals plaintext under secret and returns base64 text:
//
//	base64(version || nonce || ciphertext+tag)
func Encrypt(plaintext string, secret SharedSecret) (string, error) {
	aead, err := chacha20poly1305.NewX(secret[:])
	if err != nil {
		return "", fmt.Errorf("%w: creating cipher: %v", ErrCrypto, err)
	}

	output := make([]byte, 1+chacha20poly1305.NonceSizeX, sealedOverhead+len(plaintext))
	output[0] = sealedVersion
	nonce := output[1 : 1+chacha20poly1305.NonceSizeX]
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("%w: generating nonce: %v", ErrCrypto, err)
	}
	output = aead.Seal(output, nonce, []byte(plaintext), output[:1])
	return base64.StdEncoding.EncodeToString(output), nil
}

// Decrypt opens a ciphertext produced by Encrypt.
func Decrypt(ciphertext string, secret SharedSecret) (string, error) {
	blob, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: decoding ciphertext: %v", ErrCrypto, err)
	}
	if len(blob) < sealedOverhead {
		return "", fmt.Errorf("%w: ciphertext is %d bytes, minimum is %d", ErrCrypto, len(blob), sealedOverhead)
	}
	if blob[0] != sealedVersion {
		return "", fmt.Errorf("%w: ciphertext version %d is not supported", ErrCrypto, blob[0])
	}

	aead, err := chacha20poly1305.NewX(secret[:])
	if err != nil {
		return "", fmt.Errorf("%w: creating cipher: %v", ErrCrypto, err)
	}
	nonce := blob[1 : 1+chacha20poly1305.NonceSizeX]
	plaintext, err := aead.Open(nil, nonce, blob[1+chacha20poly1305.NonceSizeX:], blob[:1])
	if err != nil {
		return "", fmt.Errorf("%w: wrong key or tampered ciphertext", ErrCrypto)
	}
	return string(plaintext), nil
}
