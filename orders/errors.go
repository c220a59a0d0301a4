// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package orders

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthenticated is returned when an operation needs the
	// local identity and none is loaded.
	ErrNotAuthenticated = errors.New("orders: no authenticated identity")

	// ErrInvalidAmount is returned for amounts below one satoshi or
	// amounts that do not parse as a whole positive number.
	ErrInvalidAmount = errors.New("orders: invalid amount")

	// ErrValidation is wrapped when a peer's message has the wrong
	// shape for the protocol step that received it.
	ErrValidation = errors.New("orders: unexpected message")

	// ErrNoAddress is returned when a peer has not published an order
	// address.
	ErrNoAddress = errors.New("orders: peer has no order address")

	// ErrNoProfile is returned when a peer has not published its
	// encryption key.
	ErrNoProfile = errors.New("orders: peer has no published encryption key")

	// ErrNoPayment is returned by SendPayment when the order was
	// served without paying.
	ErrNoPayment = errors.New("orders: no payment was made")

	// ErrSeedUnavailable is returned when a torrent seed is requested
	// and no local seed service is configured.
	ErrSeedUnavailable = errors.New("orders: torrentSeed service not available")
)

// RemoteError is an "err" response written by the responder.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "orders: responder reported: " + e.Message
}

// AmountMismatchError reports an invoice whose decoded amount differs
// from the requested one. The invoice is never paid.
type AmountMismatchError struct {
	Requested int64
	Invoiced  int64
}

func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf("orders: invoice amount mismatch: got %d, expected %d", e.Invoiced, e.Requested)
}

// MemoMismatchError reports an invoice whose description differs from
// the memo sent with the order. The invoice is never paid.
type MemoMismatchError struct {
	Requested string
	Invoiced  string
}

func (e *MemoMismatchError) Error() string {
	return fmt.Sprintf("orders: invoice memo mismatch: got %q, expected %q", e.Invoiced, e.Requested)
}

// AckError reports a failed acknowledgement phase. The payment it
// follows has already settled.
type AckError struct {
	OrderID string
	Err     error
}

func (e *AckError) Error() string {
	return fmt.Sprintf("orders: order %s paid but acknowledgement failed: %v", e.OrderID, e.Err)
}

func (e *AckError) Unwrap() error { return e.Err }
