// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package lnd is the payment node gateway: the three calls the order
// protocol makes against a Lightning node, plus the node's identity.
//
// [Gateway] is the interface the orders package consumes. [Client]
// implements it against lnd's REST listener, authenticating with a
// macaroon sent in the Grpc-Metadata-macaroon header and trusting only
// the node's tls.cert. Every failure, transport or remote, is an
// [*Error].
package lnd
