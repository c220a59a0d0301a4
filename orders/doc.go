// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package orders implements the peer-to-peer payment order protocol
// over a shared graph store.
//
// Three roles share this package:
//
//   - [Mailbox] publishes a peer's profile and rotates the address of
//     its inbound order collection. Rotation abandons the previous
//     address; nothing revokes it.
//   - [Listener] is the responder. It follows its own current address
//     pointer, and for each order appended to the mailbox at that
//     address it decrypts the amount and memo, mints an invoice, and
//     writes an encrypted [order.Response] keyed by the order id. Any
//     failure after an order is accepted becomes an "err" response so
//     the requester learns of it.
//   - [Requester] is the payer. It appends an encrypted order to the
//     target's current mailbox, waits for the response, checks the
//     decoded invoice against what it asked for, pays, optionally
//     waits for an acknowledgement, and records the transfer.
//
// The store is eventually consistent and multi-writer: deliveries may
// repeat, arrive late, or arrive for an address that has since been
// rotated. The listener drops stale deliveries by comparing the
// address a callback was bound for with the latest pointer value, and
// drops repeats with an in-process set of handled ids backed by a
// check for an existing response. Response writes are first-write-wins
// on stores that implement [graph.ConditionalPutter].
package orders
