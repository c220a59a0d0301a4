// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package orders

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shockpay/shockpay/lib/graph"
	"github.com/shockpay/shockpay/lib/identity"
)

// Mailbox manages the local peer's published profile and inbound
// addresses, and resolves other peers' published values.
type Mailbox struct {
	store   graph.Store
	keypair *identity.Keypair
	logger  *slog.Logger
}

// NewMailbox returns a Mailbox for keypair. A nil keypair still
// resolves peers but fails every write with ErrNotAuthenticated.
func NewMailbox(store graph.Store, keypair *identity.Keypair, logger *slog.Logger) *Mailbox {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Mailbox{store: store, keypair: keypair, logger: logger}
}

// PublishProfile writes the local encryption public key so peers can
// derive the shared secret.
func (m *Mailbox) PublishProfile(ctx context.Context) error {
	if m.keypair == nil {
		return ErrNotAuthenticated
	}
	path, err := ownerPath(m.keypair.Pub(), keyEncryptionPub)
	if err != nil {
		return err
	}
	value, err := graph.Marshal(m.keypair.EncryptionPub())
	if err != nil {
		return err
	}
	return m.store.Put(ctx, path, value)
}

// GenerateAddress creates a fresh order address, points the local
// profile at it, and publishes a placeholder at the address. Calling
// it again rotates the address.
func (m *Mailbox) GenerateAddress(ctx context.Context) (Address, error) {
	return m.generate(ctx, keyCurrentOrderAddress, keyOrderNodes)
}

// Rotate replaces the current order address.
func (m *Mailbox) Rotate(ctx context.Context) (Address, error) {
	return m.GenerateAddress(ctx)
}

// GenerateHandshakeAddress does for the handshake collection what
// GenerateAddress does for orders.
func (m *Mailbox) GenerateHandshakeAddress(ctx context.Context) (Address, error) {
	return m.generate(ctx, keyCurrentHandshakeAddress, keyHandshakeNodes)
}

func (m *Mailbox) generate(ctx context.Context, pointerKey, nodesKey string) (Address, error) {
	if m.keypair == nil {
		return "", ErrNotAuthenticated
	}
	address := Address(graph.NewID())

	pointer, err := ownerPath(m.keypair.Pub(), pointerKey)
	if err != nil {
		return "", err
	}
	value, err := graph.Marshal(string(address))
	if err != nil {
		return "", err
	}
	if err := m.store.Put(ctx, pointer, value); err != nil {
		return "", err
	}

	node, err := graph.Join(nodesKey, string(address))
	if err != nil {
		return "", err
	}
	if err := m.store.Put(ctx, node, placeholder); err != nil {
		return "", err
	}
	m.logger.Info("address generated", "key", pointerKey, "address", address)
	return address, nil
}

// CurrentAddress reads peer's current order address. Callers must not
// cache it beyond one order.
func (m *Mailbox) CurrentAddress(ctx context.Context, peer string) (Address, error) {
	return m.readAddress(ctx, peer, keyCurrentOrderAddress)
}

// CurrentHandshakeAddress reads peer's current handshake address.
func (m *Mailbox) CurrentHandshakeAddress(ctx context.Context, peer string) (Address, error) {
	return m.readAddress(ctx, peer, keyCurrentHandshakeAddress)
}

func (m *Mailbox) readAddress(ctx context.Context, peer, pointerKey string) (Address, error) {
	path, err := ownerPath(peer, pointerKey)
	if err != nil {
		return "", err
	}
	value, found, err := m.store.Read(ctx, path)
	if err != nil {
		return "", fmt.Errorf("orders: reading %s: %w", path, err)
	}
	if !found {
		return "", fmt.Errorf("%w: %s", ErrNoAddress, identity.Fingerprint(peer))
	}
	text, err := decodeString(value)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", fmt.Errorf("%w: %s", ErrNoAddress, identity.Fingerprint(peer))
	}
	return Address(text), nil
}

// EncryptionKey reads the encryption public key peer published.
func (m *Mailbox) EncryptionKey(ctx context.Context, peer string) (string, error) {
	path, err := ownerPath(peer, keyEncryptionPub)
	if err != nil {
		return "", err
	}
	value, found, err := m.store.Read(ctx, path)
	if err != nil {
		return "", fmt.Errorf("orders: reading %s: %w", path, err)
	}
	if !found {
		return "", fmt.Errorf("%w: %s", ErrNoProfile, identity.Fingerprint(peer))
	}
	return decodeString(value)
}

// sharedSecret derives the channel secret with peer.
func (m *Mailbox) sharedSecret(ctx context.Context, peer string) (identity.SharedSecret, error) {
	if m.keypair == nil {
		return identity.SharedSecret{}, ErrNotAuthenticated
	}
	epub, err := m.EncryptionKey(ctx, peer)
	if err != nil {
		return identity.SharedSecret{}, err
	}
	return identity.DeriveSecret(epub, m.keypair)
}
