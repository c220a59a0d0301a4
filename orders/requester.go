// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shockpay/shockpay/lib/clock"
	"github.com/shockpay/shockpay/lib/graph"
	"github.com/shockpay/shockpay/lib/identity"
	"github.com/shockpay/shockpay/lib/ledger"
	"github.com/shockpay/shockpay/lib/lnd"
	"github.com/shockpay/shockpay/lib/poll"
	"github.com/shockpay/shockpay/lib/schema/order"
)

// DefaultTimeout is the default wait for a response and for an ack.
const DefaultTimeout = 20 * time.Second

const defaultMemo = "no memo"

// Recorder appends completed transfers to the audit ledger.
type Recorder interface {
	Append(ctx context.Context, entry ledger.Entry) (ledger.Record, error)
}

// RequesterConfig holds the parameters for NewRequester.
type RequesterConfig struct {
	Store   graph.Store
	Keypair *identity.Keypair
	Gateway lnd.Gateway

	// Ledger records each payment. Nil skips recording.
	Ledger Recorder

	// Seed serves torrent seed orders addressed to oneself. Nil
	// makes such orders fail with ErrSeedUnavailable.
	Seed SeedProvider

	// LndPub is the paying node's public key, recorded in the ledger
	// when set.
	LndPub string

	// ResponseTimeout and AckTimeout default to DefaultTimeout.
	ResponseTimeout time.Duration
	AckTimeout      time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// Requester places orders with other peers and pays their invoices.
// It is safe for concurrent use; each call is an independent order.
type Requester struct {
	store           graph.Store
	keypair         *identity.Keypair
	gateway         lnd.Gateway
	ledger          Recorder
	seed            SeedProvider
	lndPub          string
	responseTimeout time.Duration
	ackTimeout      time.Duration
	clock           clock.Clock
	logger          *slog.Logger
	mailbox         *Mailbox
}

// NewRequester validates config and returns a Requester.
func NewRequester(config RequesterConfig) (*Requester, error) {
	if config.Keypair == nil {
		return nil, ErrNotAuthenticated
	}
	if config.Store == nil {
		return nil, errors.New("orders: requester requires a Store")
	}
	if config.Gateway == nil {
		return nil, errors.New("orders: requester requires a Gateway")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	requester := &Requester{
		store:           config.Store,
		keypair:         config.Keypair,
		gateway:         config.Gateway,
		ledger:          config.Ledger,
		seed:            config.Seed,
		lndPub:          config.LndPub,
		responseTimeout: config.ResponseTimeout,
		ackTimeout:      config.AckTimeout,
		clock:           clk,
		logger:          logger,
		mailbox:         NewMailbox(config.Store, config.Keypair, logger),
	}
	if requester.responseTimeout <= 0 {
		requester.responseTimeout = DefaultTimeout
	}
	if requester.ackTimeout <= 0 {
		requester.ackTimeout = DefaultTimeout
	}
	return requester, nil
}

// Options select what an order pays for.
type Options struct {
	// TargetType defaults to order.SpontaneousPayment.
	TargetType order.TargetType

	// AckInfo is passed to the responder untouched. For torrent seed
	// orders it is the number of tokens.
	AckInfo string
}

// Result is the outcome of an order. Payment is nil when the order
// was served locally; OrderAck is nil for flows without an ack.
type Result struct {
	Payment  *lnd.Payment
	OrderAck *order.Ack
}

// SendSpontaneousPayment orders amount satoshis from peer to and pays
// the returned invoice after checking it matches the order.
//
// When the ack phase fails after payment, the returned Result still
// carries the payment alongside an *AckError.
func (r *Requester) SendSpontaneousPayment(ctx context.Context, to string, amount int64, memo string, feeLimit int64, options Options) (Result, error) {
	targetType := options.TargetType
	if targetType == "" {
		targetType = order.SpontaneousPayment
	}
	if !targetType.Valid() {
		return Result{}, fmt.Errorf("%w: unknown target type %q", order.ErrInvalidOrder, targetType)
	}
	logger := r.logger.With("to", identity.Fingerprint(to), "target_type", targetType)

	if to == r.keypair.Pub() && targetType.SupportsSelfDelivery() {
		if n, ok := tokenCount(options.AckInfo); ok {
			return r.deliverSelf(ctx, logger, n)
		}
	}

	if amount < 1 {
		return Result{}, fmt.Errorf("%w: amount must be at least 1 sat, got %d", ErrInvalidAmount, amount)
	}
	if memo == "" {
		memo = defaultMemo
	}

	secret, err := r.mailbox.sharedSecret(ctx, to)
	if err != nil {
		return Result{}, err
	}
	address, err := r.mailbox.CurrentAddress(ctx, to)
	if err != nil {
		return Result{}, err
	}

	orderID, err := r.placeOrder(ctx, address, secret, order.Order{
		Amount:     strconv.FormatInt(amount, 10),
		From:       r.keypair.Pub(),
		Memo:       memo,
		TargetType: targetType,
		AckInfo:    options.AckInfo,
	})
	if err != nil {
		return Result{}, err
	}
	logger = logger.With("order_id", orderID)
	logger.Info("order placed", "address", address, "amount", amount)

	response, err := r.await(ctx, to, orderID, r.responseTimeout)
	if err != nil {
		return Result{}, fmt.Errorf("orders: waiting for response to order %s: %w", orderID, err)
	}
	if response.Type != order.TypeInvoice {
		return Result{}, fmt.Errorf("%w: expected an invoice for order %s, got %s", ErrValidation, orderID, response.Type)
	}
	invoice, err := identity.Decrypt(response.Response, secret)
	if err != nil {
		return Result{}, err
	}

	if err := r.checkInvoice(ctx, invoice, amount, memo); err != nil {
		logger.Error("refusing to pay invoice", "error", err)
		return Result{}, err
	}

	payment, err := r.gateway.PayInvoice(ctx, lnd.PaymentRequest{PayReq: invoice, FeeLimit: feeLimit})
	if err != nil {
		return Result{}, err
	}
	result := Result{Payment: &payment}
	logger.Info("invoice paid", "payment_hash", payment.PaymentHash, "value_sat", payment.ValueSat)

	var ackErr error
	if targetType.RequiresAck() && response.AckNode != "" {
		ack, err := r.awaitAck(ctx, to, response.AckNode, secret)
		if err != nil {
			ackErr = &AckError{OrderID: orderID, Err: err}
			logger.Error("acknowledgement failed after payment", "error", err)
		} else {
			result.OrderAck = ack
		}
	}

	if err := r.record(ctx, to, targetType, memo, payment, result.OrderAck); err != nil {
		return result, errors.Join(ackErr, err)
	}
	return result, ackErr
}

// SendPayment is SendSpontaneousPayment for a plain payment, returning
// the preimage.
func (r *Requester) SendPayment(ctx context.Context, to string, amount int64, memo string, feeLimit int64) (string, error) {
	result, err := r.SendSpontaneousPayment(ctx, to, amount, memo, feeLimit, Options{TargetType: order.SpontaneousPayment})
	if err != nil {
		return "", err
	}
	if result.Payment == nil {
		return "", ErrNoPayment
	}
	return result.Payment.Preimage, nil
}

// deliverSelf serves a torrent seed order to oneself from the local
// seed service.
func (r *Requester) deliverSelf(ctx context.Context, logger *slog.Logger, n int) (Result, error) {
	if r.seed == nil {
		return Result{}, ErrSeedUnavailable
	}
	info, ok := r.seed.SelfToken()
	if !ok {
		return Result{}, ErrSeedUnavailable
	}
	tokens, err := r.seed.EnrollTokens(ctx, n, info)
	if err != nil {
		return Result{}, err
	}
	body, err := json.Marshal(seedAck{SeedURL: info.URL, Tokens: tokens})
	if err != nil {
		return Result{}, fmt.Errorf("orders: encoding seed ack: %w", err)
	}
	logger.Info("seed tokens issued locally", "count", len(tokens))
	return Result{OrderAck: &order.Ack{Response: body, Type: order.TypeOrderAck}}, nil
}

// placeOrder encrypts amount and memo, stamps the order, and appends
// it to the mailbox at address.
func (r *Requester) placeOrder(ctx context.Context, address Address, secret identity.SharedSecret, plain order.Order) (string, error) {
	encrypted := plain
	var group errgroup.Group
	group.Go(func() (err error) {
		encrypted.Amount, err = identity.Encrypt(plain.Amount, secret)
		return err
	})
	group.Go(func() (err error) {
		encrypted.Memo, err = identity.Encrypt(plain.Memo, secret)
		return err
	})
	if err := group.Wait(); err != nil {
		return "", err
	}
	encrypted.Timestamp = r.clock.Now().UnixMilli()

	collection, err := orderNodesPath(address)
	if err != nil {
		return "", err
	}
	value, err := graph.Marshal(encrypted)
	if err != nil {
		return "", err
	}
	return r.store.Append(ctx, collection, value)
}

// await waits for a well-formed response at the peer's key. An "err"
// response becomes a *RemoteError.
func (r *Requester) await(ctx context.Context, peer, key string, timeout time.Duration) (order.Response, error) {
	path, err := responsePath(peer, key)
	if err != nil {
		return order.Response{}, err
	}
	subscribe := func(deliver func(graph.Value)) (func(), error) {
		subscription, err := r.store.Subscribe(ctx, path, deliver)
		if err != nil {
			return nil, err
		}
		return subscription.Stop, nil
	}
	value, err := poll.Subscribe(ctx, poll.Config{Timeout: timeout, Clock: r.clock}, subscribe, func(value graph.Value) bool {
		_, err := order.ParseResponse(value)
		return err != nil
	})
	if err != nil {
		return order.Response{}, err
	}
	response, err := order.ParseResponse(value)
	if err != nil {
		return order.Response{}, err
	}
	if response.Type == order.TypeError {
		return order.Response{}, &RemoteError{Message: response.Response}
	}
	return response, nil
}

// checkInvoice decodes invoice and refuses it unless it asks for
// exactly amount. A reported description must equal memo.
func (r *Requester) checkInvoice(ctx context.Context, invoice string, amount int64, memo string) error {
	decoded, err := r.gateway.DecodePayReq(ctx, invoice)
	if err != nil {
		return err
	}
	if decoded.NumSatoshis != amount {
		return &AmountMismatchError{Requested: amount, Invoiced: decoded.NumSatoshis}
	}
	if decoded.Description != "" && decoded.Description != memo {
		return &MemoMismatchError{Requested: memo, Invoiced: decoded.Description}
	}
	return nil
}

// awaitAck waits for the acknowledgement at ackNode and decodes its
// JSON body.
func (r *Requester) awaitAck(ctx context.Context, peer, ackNode string, secret identity.SharedSecret) (*order.Ack, error) {
	response, err := r.await(ctx, peer, ackNode, r.ackTimeout)
	if err != nil {
		return nil, err
	}
	if response.Type != order.TypeOrderAck {
		return nil, fmt.Errorf("%w: expected orderAck response, got %s", ErrValidation, response.Type)
	}
	decrypted, err := identity.Decrypt(response.Response, secret)
	if err != nil {
		return nil, err
	}
	if !json.Valid([]byte(decrypted)) {
		return nil, fmt.Errorf("%w: ack body is not JSON", ErrValidation)
	}
	return &order.Ack{Response: json.RawMessage(decrypted), Type: response.Type}, nil
}

// record appends the payment to the ledger, with the ack as metadata
// when there is one.
func (r *Requester) record(ctx context.Context, to string, targetType order.TargetType, memo string, payment lnd.Payment, ack *order.Ack) error {
	if r.ledger == nil {
		return nil
	}
	entry := ledger.Entry{
		Type:            string(targetType),
		Amount:          payment.ValueSat,
		FromLndPub:      r.lndPub,
		FromPub:         r.keypair.Pub(),
		ToPub:           to,
		CoordinateHash:  payment.PaymentHash,
		CoordinateIndex: payment.PaymentIndex,
		Inbound:         false,
		Memo:            memo,
	}
	if ack != nil {
		metadata, err := json.Marshal(ack)
		if err != nil {
			return fmt.Errorf("orders: encoding ack metadata: %w", err)
		}
		entry.Metadata = string(metadata)
	}
	if _, err := r.ledger.Append(ctx, entry); err != nil {
		return fmt.Errorf("orders: recording payment %s: %w", payment.PaymentHash, err)
	}
	return nil
}
