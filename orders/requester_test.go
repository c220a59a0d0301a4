// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package orders

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shockpay/shockpay/lib/clock"
	"github.com/shockpay/shockpay/lib/graph"
	"github.com/shockpay/shockpay/lib/identity"
	"github.com/shockpay/shockpay/lib/poll"
	"github.com/shockpay/shockpay/lib/schema/order"
)

// echoFulfiller acks every order immediately with body.
type echoFulfiller struct {
	body any
}

func (f echoFulfiller) Fulfill(ctx context.Context, fulfillment *Fulfillment) {
	fulfillment.Ack(ctx, f.body)
}

func TestSpontaneousPayment(t *testing.T) {
	store := graph.NewMemory(nil)
	gateway := newFakeGateway()
	metrics, registry := newTestMetrics(t)
	responder := newPeer(t, store)
	requester := newPeer(t, store)
	startListener(t, store, responder, ListenerConfig{Gateway: gateway, Metrics: metrics})

	book := &fakeLedger{}
	driver := newRequester(t, store, requester, RequesterConfig{Gateway: gateway, Ledger: book, LndPub: "02node"})

	result, err := driver.SendSpontaneousPayment(context.Background(), responder.pub(), 1000, "coffee", 10, Options{TargetType: order.SpontaneousPayment})
	if err != nil {
		t.Fatalf("SendSpontaneousPayment: %v", err)
	}
	if result.Payment == nil || result.Payment.ValueSat != 1000 {
		t.Fatalf("Payment = %+v, want 1000 sat", result.Payment)
	}
	if result.OrderAck != nil {
		t.Errorf("OrderAck = %+v, want none", result.OrderAck)
	}
	if added, paid := gateway.counts(); added != 1 || paid != 1 {
		t.Errorf("gateway added %d invoices and paid %d, want 1 and 1", added, paid)
	}

	entries := book.recorded()
	if len(entries) != 1 {
		t.Fatalf("ledger has %d entries, want 1", len(entries))
	}
	entry := entries[0]
	if entry.Amount != 1000 || entry.Memo != "coffee" || entry.Type != "spontaneousPayment" {
		t.Errorf("entry = %+v", entry)
	}
	if entry.FromPub != requester.pub() || entry.ToPub != responder.pub() || entry.FromLndPub != "02node" {
		t.Errorf("entry counterparties = %+v", entry)
	}
	if entry.CoordinateHash != result.Payment.PaymentHash || entry.CoordinateIndex != result.Payment.PaymentIndex {
		t.Errorf("entry coordinates = %s/%d, payment = %s/%d",
			entry.CoordinateHash, entry.CoordinateIndex, result.Payment.PaymentHash, result.Payment.PaymentIndex)
	}
	if entry.Inbound || entry.Metadata != "" {
		t.Errorf("entry inbound/metadata = %v/%q", entry.Inbound, entry.Metadata)
	}

	waitFor(t, "invoiced outcome", func() bool {
		return counterValue(t, registry, "shockpay_orders_total", outcomeInvoiced) == 1
	})
}

func TestSendPaymentReturnsPreimage(t *testing.T) {
	store := graph.NewMemory(nil)
	gateway := newFakeGateway()
	responder := newPeer(t, store)
	requester := newPeer(t, store)
	startListener(t, store, responder, ListenerConfig{Gateway: gateway})

	driver := newRequester(t, store, requester, RequesterConfig{Gateway: gateway})
	preimage, err := driver.SendPayment(context.Background(), responder.pub(), 21, "", 10)
	if err != nil {
		t.Fatalf("SendPayment: %v", err)
	}
	if !strings.HasPrefix(preimage, "preimage-") {
		t.Errorf("preimage = %q", preimage)
	}
	// An empty memo is sent as the default.
	payReq, _ := gateway.DecodePayReq(context.Background(), "lnbcfake1")
	if payReq.Description != defaultMemo {
		t.Errorf("invoice memo = %q, want %q", payReq.Description, defaultMemo)
	}
}

func TestAmountMismatchIsNeverPaid(t *testing.T) {
	store := graph.NewMemory(nil)
	gateway := newFakeGateway()
	gateway.inflate = 500
	responder := newPeer(t, store)
	requester := newPeer(t, store)
	startListener(t, store, responder, ListenerConfig{Gateway: gateway})

	book := &fakeLedger{}
	driver := newRequester(t, store, requester, RequesterConfig{Gateway: gateway, Ledger: book})
	_, err := driver.SendSpontaneousPayment(context.Background(), responder.pub(), 1000, "coffee", 10, Options{})

	var mismatch *AmountMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("error = %v, want *AmountMismatchError", err)
	}
	if mismatch.Requested != 1000 || mismatch.Invoiced != 1500 {
		t.Errorf("mismatch = %+v", mismatch)
	}
	if _, paid := gateway.counts(); paid != 0 {
		t.Errorf("paid %d invoices after a mismatch", paid)
	}
	if len(book.recorded()) != 0 {
		t.Error("ledger recorded an unpaid order")
	}
}

func TestMemoMismatchIsNeverPaid(t *testing.T) {
	store := graph.NewMemory(nil)
	gateway := newFakeGateway()
	gateway.memo = "donation"
	responder := newPeer(t, store)
	requester := newPeer(t, store)
	startListener(t, store, responder, ListenerConfig{Gateway: gateway})

	driver := newRequester(t, store, requester, RequesterConfig{Gateway: gateway})
	_, err := driver.SendSpontaneousPayment(context.Background(), responder.pub(), 1000, "coffee", 10, Options{})

	var mismatch *MemoMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("error = %v, want *MemoMismatchError", err)
	}
	if mismatch.Requested != "coffee" || mismatch.Invoiced != "donation" {
		t.Errorf("mismatch = %+v", mismatch)
	}
	if _, paid := gateway.counts(); paid != 0 {
		t.Errorf("paid %d invoices after a mismatch", paid)
	}
}

func TestServiceOrderReturnsAck(t *testing.T) {
	store := graph.NewMemory(nil)
	gateway := newFakeGateway()
	metrics, registry := newTestMetrics(t)
	responder := newPeer(t, store)
	requester := newPeer(t, store)
	startListener(t, store, responder, ListenerConfig{
		Gateway:    gateway,
		Metrics:    metrics,
		Fulfillers: map[order.TargetType]Fulfiller{order.Service: echoFulfiller{body: map[string]string{"code": "XYZ"}}},
	})

	book := &fakeLedger{}
	driver := newRequester(t, store, requester, RequesterConfig{Gateway: gateway, Ledger: book})
	result, err := driver.SendSpontaneousPayment(context.Background(), responder.pub(), 500, "haircut", 10, Options{TargetType: order.Service})
	if err != nil {
		t.Fatalf("SendSpontaneousPayment: %v", err)
	}
	if result.Payment == nil {
		t.Fatal("no payment")
	}
	if result.OrderAck == nil {
		t.Fatal("no ack")
	}
	if result.OrderAck.Type != order.TypeOrderAck {
		t.Errorf("ack type = %q", result.OrderAck.Type)
	}
	var body map[string]string
	if err := json.Unmarshal(result.OrderAck.Response, &body); err != nil || body["code"] != "XYZ" {
		t.Errorf("ack body = %s (%v)", result.OrderAck.Response, err)
	}

	entries := book.recorded()
	if len(entries) != 1 {
		t.Fatalf("ledger has %d entries, want 1", len(entries))
	}
	wantMetadata, _ := json.Marshal(result.OrderAck)
	if entries[0].Metadata != string(wantMetadata) {
		t.Errorf("metadata = %s, want %s", entries[0].Metadata, wantMetadata)
	}
	if entries[0].Type != "service" {
		t.Errorf("entry type = %q", entries[0].Type)
	}
	waitFor(t, "ack counted", func() bool {
		return counterValue(t, registry, "shockpay_acks_total", string(order.TypeOrderAck)) == 1
	})
}

func TestAckTypeWithoutFulfillerSkipsAck(t *testing.T) {
	store := graph.NewMemory(nil)
	gateway := newFakeGateway()
	responder := newPeer(t, store)
	requester := newPeer(t, store)
	startListener(t, store, responder, ListenerConfig{Gateway: gateway})

	driver := newRequester(t, store, requester, RequesterConfig{Gateway: gateway})
	result, err := driver.SendSpontaneousPayment(context.Background(), responder.pub(), 500, "tee", 10, Options{TargetType: order.Product})
	if err != nil {
		t.Fatalf("SendSpontaneousPayment: %v", err)
	}
	if result.Payment == nil || result.OrderAck != nil {
		t.Errorf("result = %+v, want a payment and no ack", result)
	}
}

func TestSelfSeedSkipsProtocol(t *testing.T) {
	store := graph.NewMemory(nil)
	gateway := newFakeGateway()
	self := newPeer(t, store)
	seeds := &fakeSeed{url: "https://seed.example"}
	book := &fakeLedger{}
	driver := newRequester(t, store, self, RequesterConfig{Gateway: gateway, Seed: seeds, Ledger: book})

	result, err := driver.SendSpontaneousPayment(context.Background(), self.pub(), 100, "", 10, Options{TargetType: order.TorrentSeed, AckInfo: "3"})
	if err != nil {
		t.Fatalf("SendSpontaneousPayment: %v", err)
	}
	if result.Payment != nil {
		t.Errorf("Payment = %+v, want nil", result.Payment)
	}
	if result.OrderAck == nil || result.OrderAck.Type != order.TypeOrderAck {
		t.Fatalf("OrderAck = %+v", result.OrderAck)
	}
	var body seedAck
	if err := json.Unmarshal(result.OrderAck.Response, &body); err != nil {
		t.Fatalf("ack body: %v", err)
	}
	if body.SeedURL != "https://seed.example" || len(body.Tokens) != 3 {
		t.Errorf("ack body = %+v", body)
	}

	entries, err := store.Dump(context.Background())
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(string(entry.Path), keyOrderNodes+"/") {
			t.Errorf("order written at %s", entry.Path)
		}
	}
	if added, paid := gateway.counts(); added != 0 || paid != 0 {
		t.Errorf("gateway used: added %d, paid %d", added, paid)
	}
	if len(book.recorded()) != 0 {
		t.Error("ledger recorded a self delivery")
	}

	_, err = newRequester(t, store, self, RequesterConfig{Gateway: gateway}).
		SendSpontaneousPayment(context.Background(), self.pub(), 100, "", 10, Options{TargetType: order.TorrentSeed, AckInfo: "1"})
	if !errors.Is(err, ErrSeedUnavailable) {
		t.Errorf("without seed service: error = %v, want ErrSeedUnavailable", err)
	}
}

func TestRemoteErrorIsSurfaced(t *testing.T) {
	store := graph.NewMemory(nil)
	gateway := newFakeGateway()
	gateway.addErr = errors.New("node offline")
	responder := newPeer(t, store)
	requester := newPeer(t, store)
	startListener(t, store, responder, ListenerConfig{Gateway: gateway})

	driver := newRequester(t, store, requester, RequesterConfig{Gateway: gateway})
	_, err := driver.SendSpontaneousPayment(context.Background(), responder.pub(), 1000, "coffee", 10, Options{})
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("error = %v, want *RemoteError", err)
	}
	if !strings.Contains(remote.Message, "node offline") {
		t.Errorf("message = %q", remote.Message)
	}
}

func TestResponseTimeoutPaysNothing(t *testing.T) {
	store := graph.NewMemory(nil)
	gateway := newFakeGateway()
	responder := newPeer(t, store)
	requester := newPeer(t, store)
	if _, err := responder.mailbox.GenerateAddress(context.Background()); err != nil {
		t.Fatalf("GenerateAddress: %v", err)
	}

	fake := clock.Fake(time.Unix(1_700_000_000, 0))
	driver := newRequester(t, store, requester, RequesterConfig{Gateway: gateway, Clock: fake, ResponseTimeout: 20 * time.Second})

	errs := make(chan error, 1)
	go func() {
		_, err := driver.SendSpontaneousPayment(context.Background(), responder.pub(), 1000, "coffee", 10, Options{})
		errs <- err
	}()
	fake.WaitForTimers(1)
	fake.Advance(20 * time.Second)

	select {
	case err := <-errs:
		if !errors.Is(err, poll.ErrTimeout) {
			t.Fatalf("error = %v, want poll.ErrTimeout", err)
		}
	case <-time.After(testTimeout):
		t.Fatal("SendSpontaneousPayment did not time out")
	}
	if _, paid := gateway.counts(); paid != 0 {
		t.Errorf("paid %d invoices after a timeout", paid)
	}
}

func TestRequesterPreconditions(t *testing.T) {
	store := graph.NewMemory(nil)
	gateway := newFakeGateway()
	requester := newPeer(t, store)
	driver := newRequester(t, store, requester, RequesterConfig{Gateway: gateway})
	ctx := context.Background()

	if _, err := driver.SendSpontaneousPayment(ctx, "someone", 0, "", 10, Options{}); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("zero amount: error = %v, want ErrInvalidAmount", err)
	}
	if _, err := driver.SendSpontaneousPayment(ctx, "someone", 5, "", 10, Options{TargetType: "gift"}); !errors.Is(err, order.ErrInvalidOrder) {
		t.Errorf("unknown type: error = %v, want ErrInvalidOrder", err)
	}

	silent, err := identity.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := driver.SendSpontaneousPayment(ctx, silent.Pub(), 5, "", 10, Options{}); !errors.Is(err, ErrNoProfile) {
		t.Errorf("unpublished peer: error = %v, want ErrNoProfile", err)
	}

	responder := newPeer(t, store)
	if _, err := driver.SendSpontaneousPayment(ctx, responder.pub(), 5, "", 10, Options{}); !errors.Is(err, ErrNoAddress) {
		t.Errorf("peer without address: error = %v, want ErrNoAddress", err)
	}

	if _, err := NewRequester(RequesterConfig{Store: store, Gateway: gateway}); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("NewRequester without identity: error = %v, want ErrNotAuthenticated", err)
	}
}

func TestOrderReadsCurrentAddress(t *testing.T) {
	store := graph.NewMemory(nil)
	gateway := newFakeGateway()
	responder := newPeer(t, store)
	requester := newPeer(t, store)
	listener, first := startListener(t, store, responder, ListenerConfig{Gateway: gateway})

	second, err := responder.mailbox.Rotate(context.Background())
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if second == first {
		t.Fatal("Rotate returned the same address")
	}
	waitFor(t, "listener rebound", func() bool { return listener.Address() == second })

	driver := newRequester(t, store, requester, RequesterConfig{Gateway: gateway})
	if _, err := driver.SendSpontaneousPayment(context.Background(), responder.pub(), 42, "tip", 10, Options{}); err != nil {
		t.Fatalf("SendSpontaneousPayment after rotation: %v", err)
	}
}
