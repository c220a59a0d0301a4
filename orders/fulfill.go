// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shockpay/shockpay/lib/clock"
	"github.com/shockpay/shockpay/lib/graph"
	"github.com/shockpay/shockpay/lib/identity"
	"github.com/shockpay/shockpay/lib/lnd"
	"github.com/shockpay/shockpay/lib/poll"
	"github.com/shockpay/shockpay/lib/schema/order"
	"github.com/shockpay/shockpay/lib/seed"
)

// Fulfiller delivers what an order paid for once its invoice is
// answered. Fulfill owns the acknowledgement: it calls f.Ack with the
// body or f.Fail with a reason, or returns without either if the
// invoice is never paid.
type Fulfiller interface {
	Fulfill(ctx context.Context, f *Fulfillment)
}

// Fulfillment is one invoiced order awaiting its acknowledgement.
type Fulfillment struct {
	OrderID string
	AckNode string

	// Order is the order as received. Amount and Memo are the
	// decrypted values.
	Order   order.Order
	Amount  int64
	Memo    string
	Invoice string

	fulfiller Fulfiller
	secret    identity.SharedSecret
	store     graph.Store
	path      graph.Path
	metrics   *Metrics
}

// Ack encrypts the JSON encoding of body and writes it as the
// order's acknowledgement.
func (f *Fulfillment) Ack(ctx context.Context, body any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("orders: encoding ack body: %w", err)
	}
	encrypted, err := identity.Encrypt(string(encoded), f.secret)
	if err != nil {
		return err
	}
	return f.write(ctx, order.Response{Type: order.TypeOrderAck, Response: encrypted})
}

// Fail writes an "err" acknowledgement carrying reason.
func (f *Fulfillment) Fail(ctx context.Context, reason string) error {
	return f.write(ctx, order.Response{Type: order.TypeError, Response: reason})
}

func (f *Fulfillment) write(ctx context.Context, response order.Response) error {
	written, err := writeResponse(ctx, f.store, f.path, response)
	if err != nil {
		return err
	}
	if !written {
		return fmt.Errorf("orders: ack %s already written", f.AckNode)
	}
	f.metrics.ack(string(response.Type))
	return nil
}

// fulfill starts f's fulfiller in the background on the listener's run
// context.
func (l *Listener) fulfill(f *Fulfillment) {
	path, err := responsePath(l.keypair.Pub(), f.AckNode)
	if err != nil {
		l.logger.Error("ack node is not a valid key", "order_id", f.OrderID, "error", err)
		return
	}
	f.store = l.store
	f.path = path
	f.metrics = l.metrics

	l.mu.Lock()
	if l.stopping {
		l.mu.Unlock()
		return
	}
	ctx := l.fulfillCtx
	l.inflight.Add(1)
	l.mu.Unlock()
	go func() {
		defer l.inflight.Done()
		f.fulfiller.Fulfill(ctx, f)
	}()
}

// SeedProvider issues torrent seed access tokens.
type SeedProvider interface {
	SelfToken() (seed.Info, bool)
	EnrollTokens(ctx context.Context, n int, info seed.Info) ([]string, error)
}

// seedAck is the acknowledgement body for torrent seed orders.
type seedAck struct {
	SeedURL string   `json:"seedUrl"`
	Tokens  []string `json:"tokens"`
}

// tokenCount reads ackInfo as a token count. ok is false when ackInfo
// is not an integer; counts below one are read as one.
func tokenCount(ackInfo string) (n int, ok bool) {
	n, err := strconv.Atoi(ackInfo)
	if err != nil {
		return 0, false
	}
	if n < 1 {
		n = 1
	}
	return n, true
}

// Defaults for SeedFulfiller's settlement wait.
const (
	DefaultSettleTimeout     = time.Hour
	DefaultSettlePollInitial = 250 * time.Millisecond
	DefaultSettlePollMax     = 2 * time.Second
)

// SeedFulfillerConfig holds the parameters for NewSeedFulfiller.
type SeedFulfillerConfig struct {
	Gateway  lnd.Gateway
	Invoices lnd.InvoiceLookup
	Seed     SeedProvider

	// SettleTimeout bounds the wait for the invoice to be paid.
	SettleTimeout time.Duration

	// PollInitial and PollMax space invoice lookups. Defaults:
	// DefaultSettlePollInitial and DefaultSettlePollMax. PollMax must
	// stay well under the requester's ack timeout, which starts when
	// the payment settles.
	PollInitial time.Duration
	PollMax     time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// SeedFulfiller enrolls seed tokens for paid torrentSeed orders.
type SeedFulfiller struct {
	config SeedFulfillerConfig
	logger *slog.Logger
}

// NewSeedFulfiller fills in defaults.
func NewSeedFulfiller(config SeedFulfillerConfig) *SeedFulfiller {
	if config.SettleTimeout <= 0 {
		config.SettleTimeout = DefaultSettleTimeout
	}
	if config.PollInitial <= 0 {
		config.PollInitial = DefaultSettlePollInitial
	}
	if config.PollMax <= 0 {
		config.PollMax = DefaultSettlePollMax
	}
	if config.PollInitial > config.PollMax {
		config.PollInitial = config.PollMax
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SeedFulfiller{config: config, logger: logger}
}

func (s *SeedFulfiller) Fulfill(ctx context.Context, f *Fulfillment) {
	logger := s.logger.With("order_id", f.OrderID, "ack_node", f.AckNode)

	payReq, err := s.config.Gateway.DecodePayReq(ctx, f.Invoice)
	if err != nil {
		logger.Error("decoding own invoice failed", "error", err)
		return
	}
	_, err = poll.Read(ctx, poll.Config{
		Timeout:         s.config.SettleTimeout,
		InitialInterval: s.config.PollInitial,
		MaxInterval:     s.config.PollMax,
		Clock:           s.config.Clock,
	}, func(ctx context.Context) (lnd.Invoice, error) {
		return s.config.Invoices.LookupInvoice(ctx, payReq.PaymentHash)
	}, func(invoice lnd.Invoice) bool {
		return !invoice.Settled
	})
	if err != nil {
		if ctx.Err() != nil {
			logger.Info("listener stopping, seed order left unacknowledged")
			return
		}
		logger.Info("invoice not settled, no seed tokens issued", "error", err)
		return
	}

	n, ok := tokenCount(f.Order.AckInfo)
	if !ok {
		n = 1
	}
	info, ok := s.config.Seed.SelfToken()
	if !ok {
		s.fail(ctx, logger, f, ErrSeedUnavailable.Error())
		return
	}
	tokens, err := s.config.Seed.EnrollTokens(ctx, n, info)
	if err != nil {
		s.fail(ctx, logger, f, err.Error())
		return
	}
	if err := f.Ack(ctx, seedAck{SeedURL: info.URL, Tokens: tokens}); err != nil {
		logger.Error("writing seed ack failed", "error", err)
		return
	}
	logger.Info("seed tokens delivered", "count", len(tokens))
}

func (s *SeedFulfiller) fail(ctx context.Context, logger *slog.Logger, f *Fulfillment, reason string) {
	logger.Error("seed fulfillment failed", "reason", reason)
	if err := f.Fail(ctx, reason); err != nil {
		logger.Error("writing failure ack failed", "error", err)
	}
}
