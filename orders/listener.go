// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shockpay/shockpay/lib/clock"
	"github.com/shockpay/shockpay/lib/graph"
	"github.com/shockpay/shockpay/lib/identity"
	"github.com/shockpay/shockpay/lib/lnd"
	"github.com/shockpay/shockpay/lib/schema/order"
)

// DefaultInvoiceExpiry is how long minted invoices stay payable.
const DefaultInvoiceExpiry = 10 * time.Hour

// ListenerConfig holds the parameters for NewListener.
type ListenerConfig struct {
	Store   graph.Store
	Keypair *identity.Keypair
	Gateway lnd.Gateway

	// Fulfillers serve the acknowledgement phase for target types
	// that require one. An invoice for a type with no fulfiller
	// carries no ack node.
	Fulfillers map[order.TargetType]Fulfiller

	// InvoiceExpiry defaults to DefaultInvoiceExpiry.
	InvoiceExpiry time.Duration

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *Metrics
}

// Listener answers orders sent to the local peer's current address.
type Listener struct {
	store      graph.Store
	keypair    *identity.Keypair
	gateway    lnd.Gateway
	fulfillers map[order.TargetType]Fulfiller
	expiry     time.Duration
	clock      clock.Clock
	logger     *slog.Logger
	metrics    *Metrics
	mailbox    *Mailbox

	mu       sync.Mutex
	current  Address
	binding  graph.Subscription
	stopping bool

	// fulfillCtx is Run's context. Fulfillments end with it; order
	// processing up to the response write does not.
	fulfillCtx context.Context

	processedMu sync.Mutex
	processed   map[string]struct{}

	// inflight tracks per-order work and fulfillments.
	inflight sync.WaitGroup
}

// NewListener validates config and returns an idle Listener.
func NewListener(config ListenerConfig) (*Listener, error) {
	if config.Keypair == nil {
		return nil, ErrNotAuthenticated
	}
	if config.Store == nil {
		return nil, errors.New("orders: listener requires a Store")
	}
	if config.Gateway == nil {
		return nil, errors.New("orders: listener requires a Gateway")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	expiry := config.InvoiceExpiry
	if expiry <= 0 {
		expiry = DefaultInvoiceExpiry
	}
	logger = logger.With("owner", identity.Fingerprint(config.Keypair.Pub()))
	return &Listener{
		store:      config.Store,
		keypair:    config.Keypair,
		gateway:    config.Gateway,
		fulfillers: config.Fulfillers,
		expiry:     expiry,
		clock:      clk,
		logger:     logger,
		metrics:    config.Metrics,
		mailbox:    NewMailbox(config.Store, config.Keypair, logger),
		processed:  make(map[string]struct{}),
		fulfillCtx: context.Background(),
	}, nil
}

// Run follows the current address pointer until ctx is done, then
// waits for orders already accepted to be answered. Pending
// fulfillments are cancelled with ctx.
func (l *Listener) Run(ctx context.Context) error {
	pointer, err := ownerPath(l.keypair.Pub(), keyCurrentOrderAddress)
	if err != nil {
		return err
	}
	work := context.WithoutCancel(ctx)
	l.mu.Lock()
	l.fulfillCtx = ctx
	l.mu.Unlock()
	subscription, err := l.store.Subscribe(ctx, pointer, func(value graph.Value) {
		l.rebind(ctx, work, value)
	})
	if err != nil {
		return fmt.Errorf("orders: subscribing to %s: %w", pointer, err)
	}
	l.logger.Info("listener started")

	<-ctx.Done()
	subscription.Stop()

	l.mu.Lock()
	l.stopping = true
	if l.binding != nil {
		l.binding.Stop()
		l.binding = nil
	}
	l.mu.Unlock()

	l.inflight.Wait()
	l.logger.Info("listener stopped")
	return nil
}

// Address returns the address the listener is bound to, or "" before
// the first pointer value arrives.
func (l *Listener) Address() Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// rebind moves the child subscription to the address in value.
func (l *Listener) rebind(ctx, work context.Context, value graph.Value) {
	text, err := decodeString(value)
	if err != nil || text == "" {
		l.logger.Error("current order address is not a string", "value", string(value))
		return
	}
	address := Address(text)
	collection, err := orderNodesPath(address)
	if err != nil {
		l.logger.Error("current order address is not a valid key", "address", address, "error", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopping || (address == l.current && l.binding != nil) {
		return
	}
	previous := l.current
	l.current = address
	if l.binding != nil {
		l.binding.Stop()
		l.binding = nil
	}
	binding, err := l.store.SubscribeChildren(ctx, collection, func(id string, value graph.Value) {
		l.handle(work, address, id, value)
	})
	if err != nil {
		l.logger.Error("subscribing to order address failed", "address", address, "error", err)
		return
	}
	l.binding = binding
	l.logger.Info("listening to order address", "address", address, "previous", previous)
}

// handle runs the synchronous checks for one delivery and hands
// accepted orders to process.
func (l *Listener) handle(ctx context.Context, address Address, id string, value graph.Value) {
	logger := l.logger.With("order_id", id, "address", address)

	current := l.Address()
	if address != current {
		logger.Info("order address invalidated", "current", current)
		l.metrics.outcome(outcomeStale)
		return
	}

	received, err := order.ParseOrder(value)
	if err != nil {
		logger.Info("ignoring entry that is not an order", "error", err)
		l.metrics.outcome(outcomeInvalid)
		return
	}

	if !l.markProcessed(id) {
		logger.Warn("skipping already processed order")
		l.metrics.outcome(outcomeDuplicate)
		return
	}

	l.mu.Lock()
	if l.stopping {
		l.mu.Unlock()
		logger.Info("listener stopping, order left unanswered")
		return
	}
	l.inflight.Add(1)
	l.mu.Unlock()

	go func() {
		defer l.inflight.Done()
		l.process(ctx, logger, id, received)
	}()
}

// markProcessed adds id to the processed set and reports whether it
// was new.
func (l *Listener) markProcessed(id string) bool {
	l.processedMu.Lock()
	defer l.processedMu.Unlock()
	if _, seen := l.processed[id]; seen {
		return false
	}
	l.processed[id] = struct{}{}
	return true
}

// process answers one accepted order. It runs to a response write
// regardless of cancellation.
func (l *Listener) process(ctx context.Context, logger *slog.Logger, id string, received order.Order) {
	start := l.clock.Now()
	path, err := responsePath(l.keypair.Pub(), id)
	if err != nil {
		logger.Error("order id is not a valid key", "error", err)
		l.metrics.outcome(outcomeInvalid)
		return
	}

	_, answered, err := l.store.Read(ctx, path)
	if err == nil && answered {
		logger.Info("order already answered")
		l.metrics.outcome(outcomeAnswered)
		return
	}

	var response order.Response
	var fulfillment *Fulfillment
	if err == nil {
		response, fulfillment, err = l.answer(ctx, logger, id, received)
	} else {
		err = fmt.Errorf("orders: checking for an existing response: %w", err)
	}
	outcome := outcomeInvoiced
	if err != nil {
		logger.Error("order failed", "from", identity.Fingerprint(received.From), "error", err)
		response = order.Response{Type: order.TypeError, Response: err.Error()}
		fulfillment = nil
		outcome = outcomeErrored
	}

	written, err := writeResponse(ctx, l.store, path, response)
	if err != nil {
		logger.Error("writing order response failed", "error", err)
		l.metrics.outcome(outcomeErrored)
		return
	}
	if !written {
		logger.Warn("another response was written first")
		l.metrics.outcome(outcomeAnswered)
		return
	}
	l.metrics.outcome(outcome)
	l.metrics.observeDuration(l.clock.Now().Sub(start))
	logger.Info("order answered", "type", response.Type, "elapsed", l.clock.Now().Sub(start))

	if fulfillment != nil {
		l.fulfill(fulfillment)
	}
}

// answer decrypts the order, mints the invoice, and returns the
// encrypted response.
func (l *Listener) answer(ctx context.Context, logger *slog.Logger, id string, received order.Order) (order.Response, *Fulfillment, error) {
	secret, err := l.mailbox.sharedSecret(ctx, received.From)
	if err != nil {
		return order.Response{}, nil, err
	}

	var decryptedAmount, memo string
	var group errgroup.Group
	group.Go(func() (err error) {
		decryptedAmount, err = identity.Decrypt(received.Amount, secret)
		return err
	})
	group.Go(func() (err error) {
		memo, err = identity.Decrypt(received.Memo, secret)
		return err
	})
	if err := group.Wait(); err != nil {
		return order.Response{}, nil, err
	}

	amount, err := parseAmount(decryptedAmount)
	if err != nil {
		return order.Response{}, nil, err
	}

	logger.Info("creating invoice", "amount", amount, "target_type", received.TargetType)
	invoice, err := l.gateway.AddInvoice(ctx, lnd.InvoiceRequest{
		Expiry:  int64(l.expiry / time.Second),
		Memo:    memo,
		Value:   amount,
		Private: true,
	})
	if err != nil {
		return order.Response{}, nil, err
	}
	encrypted, err := identity.Encrypt(invoice, secret)
	if err != nil {
		return order.Response{}, nil, err
	}

	response := order.Response{Type: order.TypeInvoice, Response: encrypted}
	var fulfillment *Fulfillment
	if fulfiller, ok := l.fulfillers[received.TargetType]; ok && received.TargetType.RequiresAck() {
		response.AckNode = graph.NewID()
		fulfillment = &Fulfillment{
			OrderID:   id,
			AckNode:   response.AckNode,
			Order:     received,
			Amount:    amount,
			Memo:      memo,
			Invoice:   invoice,
			fulfiller: fulfiller,
			secret:    secret,
		}
	}
	return response, fulfillment, nil
}

// parseAmount accepts a decimal string naming a whole, finite,
// positive number of satoshis.
func parseAmount(text string) (int64, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: could not parse %q as a number", ErrInvalidAmount, text)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("%w: %q is not finite", ErrInvalidAmount, text)
	}
	if value < 1 {
		return 0, fmt.Errorf("%w: %q is below one satoshi", ErrInvalidAmount, text)
	}
	if value != math.Trunc(value) || value >= math.MaxInt64 {
		return 0, fmt.Errorf("%w: %q is not a whole number of satoshis", ErrInvalidAmount, text)
	}
	return int64(value), nil
}

// writeResponse writes response at path, first-write-wins when the
// store supports it. written is false when a response already existed.
func writeResponse(ctx context.Context, store graph.Store, path graph.Path, response order.Response) (written bool, err error) {
	value, err := graph.Marshal(response)
	if err != nil {
		return false, err
	}
	if conditional, ok := store.(graph.ConditionalPutter); ok {
		return conditional.PutIfAbsent(ctx, path, value)
	}
	if err := store.Put(ctx, path, value); err != nil {
		return false, err
	}
	return true, nil
}
