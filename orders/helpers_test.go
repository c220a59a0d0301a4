// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package orders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/shockpay/shockpay/lib/graph"
	"github.com/shockpay/shockpay/lib/identity"
	"github.com/shockpay/shockpay/lib/ledger"
	"github.com/shockpay/shockpay/lib/lnd"
	"github.com/shockpay/shockpay/lib/poll"
	"github.com/shockpay/shockpay/lib/schema/order"
	"github.com/shockpay/shockpay/lib/seed"
)

const testTimeout = 5 * time.Second

type fakeInvoice struct {
	amount  int64
	memo    string
	hash    string
	settled bool
}

// fakeGateway is one in-memory payment node shared by both peers.
type fakeGateway struct {
	mu       sync.Mutex
	invoices map[string]*fakeInvoice
	byHash   map[string]*fakeInvoice
	added    int
	paid     []string

	// inflate is added to every decoded amount; memo, when set,
	// replaces every decoded description.
	inflate int64
	memo    string
	addErr  error
}

var (
	_ lnd.Gateway       = (*fakeGateway)(nil)
	_ lnd.InvoiceLookup = (*fakeGateway)(nil)
)

func newFakeGateway() *fakeGateway {
	return &fakeGateway{invoices: make(map[string]*fakeInvoice), byHash: make(map[string]*fakeInvoice)}
}

func (g *fakeGateway) AddInvoice(ctx context.Context, request lnd.InvoiceRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.addErr != nil {
		return "", g.addErr
	}
	if request.Expiry <= 0 || !request.Private {
		return "", fmt.Errorf("unexpected invoice request %+v", request)
	}
	g.added++
	invoice := &fakeInvoice{amount: request.Value, memo: request.Memo, hash: fmt.Sprintf("%064x", g.added)}
	payReq := fmt.Sprintf("lnbcfake%d", g.added)
	g.invoices[payReq] = invoice
	g.byHash[invoice.hash] = invoice
	return payReq, nil
}

func (g *fakeGateway) DecodePayReq(ctx context.Context, payReq string) (lnd.PayReq, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	invoice, ok := g.invoices[payReq]
	if !ok {
		return lnd.PayReq{}, &lnd.Error{StatusCode: 500, Message: "invalid payment request"}
	}
	description := invoice.memo
	if g.memo != "" {
		description = g.memo
	}
	return lnd.PayReq{PaymentHash: invoice.hash, NumSatoshis: invoice.amount + g.inflate, Description: description}, nil
}

func (g *fakeGateway) PayInvoice(ctx context.Context, request lnd.PaymentRequest) (lnd.Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	invoice, ok := g.invoices[request.PayReq]
	if !ok {
		return lnd.Payment{}, &lnd.Error{Message: "payment failed: unknown invoice"}
	}
	g.paid = append(g.paid, request.PayReq)
	invoice.settled = true
	return lnd.Payment{
		PaymentHash:  invoice.hash,
		PaymentIndex: uint64(len(g.paid)),
		Preimage:     "preimage-" + invoice.hash[60:],
		ValueSat:     invoice.amount,
	}, nil
}

func (g *fakeGateway) LookupInvoice(ctx context.Context, hash string) (lnd.Invoice, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	invoice, ok := g.byHash[hash]
	if !ok {
		return lnd.Invoice{}, &lnd.Error{StatusCode: 404, Message: "unable to locate invoice"}
	}
	return lnd.Invoice{PaymentHash: hash, Value: invoice.amount, Settled: invoice.settled}, nil
}

func (g *fakeGateway) counts() (added, paid int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.added, len(g.paid)
}

type fakeLedger struct {
	mu      sync.Mutex
	entries []ledger.Entry
}

func (l *fakeLedger) Append(ctx context.Context, entry ledger.Entry) (ledger.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return ledger.Record{Seq: int64(len(l.entries)), Entry: entry}, nil
}

func (l *fakeLedger) recorded() []ledger.Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ledger.Entry(nil), l.entries...)
}

// fakeSeed issues predictable tokens. A zero URL reports no self
// token.
type fakeSeed struct {
	url       string
	mu        sync.Mutex
	requested []int
}

func (s *fakeSeed) SelfToken() (seed.Info, bool) {
	if s.url == "" {
		return seed.Info{}, false
	}
	return seed.Info{URL: s.url, Token: "seed-token"}, true
}

func (s *fakeSeed) EnrollTokens(ctx context.Context, n int, info seed.Info) ([]string, error) {
	if info.Token != "seed-token" {
		return nil, errors.New("wrong seed token")
	}
	s.mu.Lock()
	s.requested = append(s.requested, n)
	s.mu.Unlock()
	tokens := make([]string, n)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("token-%d", i)
	}
	return tokens, nil
}

// peer is one identity with a published profile.
type peer struct {
	keypair *identity.Keypair
	mailbox *Mailbox
}

func newPeer(t *testing.T, store graph.Store) *peer {
	t.Helper()
	keypair, err := identity.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	mailbox := NewMailbox(store, keypair, nil)
	if err := mailbox.PublishProfile(context.Background()); err != nil {
		t.Fatalf("PublishProfile: %v", err)
	}
	return &peer{keypair: keypair, mailbox: mailbox}
}

func (p *peer) pub() string { return p.keypair.Pub() }

// startListener binds a running listener for p and waits until it is
// following a fresh address.
func startListener(t *testing.T, store graph.Store, p *peer, config ListenerConfig) (*Listener, Address) {
	t.Helper()
	config.Store = store
	config.Keypair = p.keypair
	listener, err := NewListener(config)
	if err != nil {
		t.Fatalf("NewListener: %v", err)
	}
	address, err := p.mailbox.GenerateAddress(context.Background())
	if err != nil {
		t.Fatalf("GenerateAddress: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := listener.Run(ctx); err != nil {
			t.Errorf("Run: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	waitFor(t, "listener bound to address", func() bool { return listener.Address() == address })
	return listener, address
}

// waitFor polls cond until it holds.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	_, err := poll.Read(context.Background(), poll.Config{
		Timeout:         testTimeout,
		InitialInterval: 2 * time.Millisecond,
		MaxInterval:     20 * time.Millisecond,
	}, func(context.Context) (bool, error) {
		return cond(), nil
	}, func(ok bool) bool { return !ok })
	if err != nil {
		t.Fatalf("waiting for %s: %v", what, err)
	}
}

func newRequester(t *testing.T, store graph.Store, p *peer, config RequesterConfig) *Requester {
	t.Helper()
	config.Store = store
	config.Keypair = p.keypair
	if config.ResponseTimeout == 0 {
		config.ResponseTimeout = testTimeout
	}
	if config.AckTimeout == 0 {
		config.AckTimeout = testTimeout
	}
	requester, err := NewRequester(config)
	if err != nil {
		t.Fatalf("NewRequester: %v", err)
	}
	return requester
}

// readResponse returns the response written for key in owner's graph.
func readResponse(t *testing.T, store graph.Store, owner, key string) (order.Response, bool) {
	t.Helper()
	path, err := responsePath(owner, key)
	if err != nil {
		t.Fatalf("responsePath: %v", err)
	}
	value, found, err := store.Read(context.Background(), path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !found {
		return order.Response{}, false
	}
	response, err := order.ParseResponse(value)
	if err != nil {
		t.Fatalf("ParseResponse(%s): %v", value, err)
	}
	return response, true
}

// encryptedOrder builds the stored form of an order from sender to
// receiver.
func encryptedOrder(t *testing.T, sender, receiver *peer, amount, memo string, targetType order.TargetType) graph.Value {
	t.Helper()
	secret, err := identity.DeriveSecret(receiver.keypair.EncryptionPub(), sender.keypair)
	if err != nil {
		t.Fatalf("DeriveSecret: %v", err)
	}
	encryptedAmount, err := identity.Encrypt(amount, secret)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	encryptedMemo, err := identity.Encrypt(memo, secret)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	value, err := graph.Marshal(order.Order{
		Amount:     encryptedAmount,
		From:       sender.pub(),
		Memo:       encryptedMemo,
		Timestamp:  time.Now().UnixMilli(),
		TargetType: targetType,
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	return value
}

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	registry := prometheus.NewRegistry()
	metrics, err := NewMetrics(registry)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return metrics, registry
}

// counterValue returns the value of counter name with a label equal to
// labelValue, or 0 when absent.
func counterValue(t *testing.T, registry *prometheus.Registry, name, labelValue string) float64 {
	t.Helper()
	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if hasLabelValue(metric, labelValue) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func hasLabelValue(metric *dto.Metric, value string) bool {
	for _, pair := range metric.GetLabel() {
		if pair.GetValue() == value {
			return true
		}
	}
	return false
}
