// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net/http"
	"os"
	"time"
)

// PinnedClient returns an http.Client whose only trusted root is the PEM
// certificate certPEM. A zero timeout means no overall request timeout,
// which streaming endpoints need.
func PinnedClient(certPEM []byte, timeout time.Duration) (*http.Client, error) {
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(certPEM) {
		return nil, errors.New("netutil: no PEM certificate found")
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{
		RootCAs:    pool,
		MinVersion: tls.VersionTLS12,
	}
	return &http.Client{Transport: transport, Timeout: timeout}, nil
}

// PinnedClientFromFile is PinnedClient with the certificate read from
// path.
func PinnedClientFromFile(path string, timeout time.Duration) (*http.Client, error) {
	certPEM, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return PinnedClient(certPEM, timeout)
}
