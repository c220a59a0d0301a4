// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lnd

import "context"

// Gateway is the payment node surface used by order processing.
type Gateway interface {
	// AddInvoice mints an invoice and returns its payment request
	// string.
	AddInvoice(ctx context.Context, request InvoiceRequest) (string, error)

	// DecodePayReq decodes a payment request without paying it.
	DecodePayReq(ctx context.Context, paymentRequest string) (PayReq, error)

	// PayInvoice pays a payment request and blocks until the payment
	// succeeds or fails.
	PayInvoice(ctx context.Context, request PaymentRequest) (Payment, error)
}

// InvoiceLookup reads back invoices the node issued.
type InvoiceLookup interface {
	LookupInvoice(ctx context.Context, paymentHash string) (Invoice, error)
}

// InvoiceRequest describes an invoice to mint.
type InvoiceRequest struct {
	// Expiry is in seconds.
	Expiry  int64
	Memo    string
	Value   int64
	Private bool
}

// PayReq is a decoded payment request.
type PayReq struct {
	Destination string
	PaymentHash string
	NumSatoshis int64
	Timestamp   int64
	Expiry      int64
	Description string
}

// PaymentRequest is a pay call.
type PaymentRequest struct {
	PayReq string

	// FeeLimit is the routing fee ceiling in satoshis.
	FeeLimit int64

	// TimeoutSeconds bounds lnd's route search. Default: 60.
	TimeoutSeconds int32
}

// Payment is a settled payment.
type Payment struct {
	PaymentHash  string
	PaymentIndex uint64
	Preimage     string
	ValueSat     int64
	FeeSat       int64
}

// Invoice is the issuer's view of an invoice.
type Invoice struct {
	PaymentHash string
	Memo        string
	Value       int64
	Settled     bool
	State       string
	AmtPaidSat  int64
}

// Info is the subset of getinfo the daemon logs and records.
type Info struct {
	IdentityPubkey string `json:"identity_pubkey"`
	Alias          string `json:"alias"`
	SyncedToChain  bool   `json:"synced_to_chain"`
	BlockHeight    int64  `json:"block_height"`
}
