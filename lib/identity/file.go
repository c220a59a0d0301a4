// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"bytes"
	"crypto/ed25519"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"filippo.io/age"

	"github.com/shockpay/shockpay/lib/codec"
	"github.com/shockpay/shockpay/lib/secret"
)

const keyFileVersion = 1

// scryptWorkFactor is age's default (2^18 iterations).
var scryptWorkFactor = 18

type keyFile struct {
	Version    int    `cbor:"version"`
	Seed       []byte `cbor:"seed"`
	Encryption []byte `cbor:"encryption"`
}

// Save seals keypair with passphrase and writes it to path with mode
// 0600. An existing file is replaced atomically.
func Save(path string, keypair *Keypair, passphrase *secret.Buffer) error {
	recipient, err := age.NewScryptRecipient(passphrase.String())
	if err != nil {
		return fmt.Errorf("identity: %w", err)
	}
	recipient.SetWorkFactor(scryptWorkFactor)

	body, err := codec.Marshal(keyFile{
		Version:    keyFileVersion,
		Seed:       keypair.SigningKey.Seed(),
		Encryption: keypair.EncryptionKey[:],
	})
	if err != nil {
		return fmt.Errorf("identity: encoding key file: %w", err)
	}
	defer secret.Zero(body)

	var sealed bytes.Buffer
	writer, err := age.Encrypt(&sealed, recipient)
	if err != nil {
		return fmt.Errorf("identity: creating age encryptor: %w", err)
	}
	if _, err := writer.Write(body); err != nil {
		return fmt.Errorf("identity: sealing key file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("identity: finalizing key file: %w", err)
	}

	temporary, err := os.CreateTemp(filepath.Dir(path), ".identity-*")
	if err != nil {
		return fmt.Errorf("identity: %w", err)
	}
	defer os.Remove(temporary.Name())
	if err := temporary.Chmod(0o600); err != nil {
		temporary.Close()
		return fmt.Errorf("identity: %w", err)
	}
	if _, err := temporary.Write(sealed.Bytes()); err != nil {
		temporary.Close()
		return fmt.Errorf("identity: writing %s: %w", path, err)
	}
	if err := temporary.Close(); err != nil {
		return fmt.Errorf("identity: writing %s: %w", path, err)
	}
	if err := os.Rename(temporary.Name(), path); err != nil {
		return fmt.Errorf("identity: %w", err)
	}
	return nil
}

// Load reads and unseals a keypair written by Save.
func Load(path string, passphrase *secret.Buffer) (*Keypair, error) {
	sealed, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("identity: %w", err)
	}
	ageIdentity, err := age.NewScryptIdentity(passphrase.String())
	if err != nil {
		return nil, fmt.Errorf("identity: %w", err)
	}
	reader, err := age.Decrypt(bytes.NewReader(sealed), ageIdentity)
	if err != nil {
		return nil, fmt.Errorf("identity: unsealing %s: %w", path, err)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("identity: reading %s: %w", path, err)
	}
	defer secret.Zero(body)

	var file keyFile
	if err := codec.Unmarshal(body, &file); err != nil {
		return nil, fmt.Errorf("identity: decoding %s: %w", path, err)
	}
	defer secret.Zero(file.Seed)
	defer secret.Zero(file.Encryption)

	if file.Version != keyFileVersion {
		return nil, fmt.Errorf("identity: %s has unsupported version %d", path, file.Version)
	}
	if len(file.Seed) != ed25519.SeedSize || len(file.Encryption) != len(Keypair{}.EncryptionKey) {
		return nil, fmt.Errorf("identity: %s has malformed key material", path)
	}

	keypair := &Keypair{SigningKey: ed25519.NewKeyFromSeed(file.Seed)}
	copy(keypair.EncryptionKey[:], file.Encryption)
	return keypair, nil
}
