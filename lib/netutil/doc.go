// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil holds the HTTP plumbing shared by the payment node and
// seed service clients.
//
// Response helpers ([ReadResponse], [DecodeResponse], [ErrorBody]) bound
// body reads at [MaxResponseSize]. They are for JSON API responses; the
// payment stream of lnd's router is decoded incrementally instead.
//
// [PinnedClient] builds an http.Client that trusts exactly one
// certificate, the way lnd's self-signed tls.cert is meant to be used.
package netutil
