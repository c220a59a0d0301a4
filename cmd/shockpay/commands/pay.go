// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/shockpay/shockpay/cmd/shockpay/cli"
	"github.com/shockpay/shockpay/lib/schema/order"
	"github.com/shockpay/shockpay/orders"
)

type payView struct {
	To           string          `json:"to"`
	Amount       int64           `json:"amount"`
	TargetType   string          `json:"targetType"`
	PaymentHash  string          `json:"paymentHash,omitempty"`
	PaymentIndex uint64          `json:"paymentIndex,omitempty"`
	Preimage     string          `json:"preimage,omitempty"`
	FeeSat       int64           `json:"feeSat,omitempty"`
	Ack          json.RawMessage `json:"ack,omitempty"`
	AckError     string          `json:"ackError,omitempty"`
	Error        string          `json:"error,omitempty"`
}

type payArgs struct {
	to         string
	amount     int64
	targetType order.TargetType
}

func parsePayArgs(args []string, targetType string) (payArgs, error) {
	if len(args) != 2 {
		return payArgs{}, &cli.UsageError{Message: "usage: shockpay pay <peer-pub> <amount> [flags]"}
	}
	amount, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || amount < 1 {
		return payArgs{}, &cli.UsageError{Message: fmt.Sprintf("amount must be a positive whole number of satoshis, got %q", args[1])}
	}
	parsed := order.TargetType(targetType)
	if !parsed.Valid() {
		return payArgs{}, &cli.UsageError{Message: fmt.Sprintf("unknown target type %q", targetType)}
	}
	return payArgs{to: args[0], amount: amount, targetType: parsed}, nil
}

func payCommand(stdout io.Writer) *cli.Command {
	var (
		configPath string
		memo       string
		feeLimit   int64
		targetType string
		ackInfo    string
	)
	return &cli.Command{
		Name:    "pay",
		Summary: "Order an invoice from a peer and pay it",
		Description: "Write an encrypted order to the peer's current address, wait for the\n" +
			"invoice, check it against the order, and pay it through lnd. Target\n" +
			"types that need an acknowledgement also wait for the peer's ack.",
		Usage: "shockpay pay <peer-pub> <amount> [flags]",
		Examples: []cli.Example{
			{Description: "Tip a peer", Command: "shockpay pay <peer-pub> 100 --memo thanks"},
			{Description: "Buy three seed tokens", Command: "shockpay pay <peer-pub> 300 --type torrentSeed --ack-info 3"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("pay", pflag.ContinueOnError)
			configFlag(flagSet, &configPath)
			flagSet.StringVar(&memo, "memo", "", "invoice memo")
			flagSet.Int64Var(&feeLimit, "fee-limit", -1, "routing fee limit in satoshis (default: lnd.fee_limit)")
			flagSet.StringVar(&targetType, "type", string(order.SpontaneousPayment), "order target type")
			flagSet.StringVar(&ackInfo, "ack-info", "", "target-specific order data, e.g. a token count")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			parsed, err := parsePayArgs(args, targetType)
			if err != nil {
				return err
			}
			e, err := openEnv(configPath)
			if err != nil {
				return err
			}
			defer e.Close()
			if feeLimit < 0 {
				feeLimit = e.config.LND.FeeLimit
			}

			keypair, err := e.keypair()
			if err != nil {
				return err
			}
			store, err := e.store()
			if err != nil {
				return err
			}
			records, err := e.ledger()
			if err != nil {
				return err
			}
			gateway, err := e.gateway()
			if err != nil {
				return err
			}
			seedService, err := e.seed()
			if err != nil {
				return err
			}
			var lndPub string
			if info, err := gateway.GetInfo(ctx); err != nil {
				e.logger.Warn("lnd getinfo failed; ledger entries will omit the node key", "error", err)
			} else {
				lndPub = info.IdentityPubkey
			}

			requester, err := orders.NewRequester(orders.RequesterConfig{
				Store:           store,
				Keypair:         keypair,
				Gateway:         gateway,
				Ledger:          records,
				Seed:            seedService,
				LndPub:          lndPub,
				ResponseTimeout: e.config.Orders.ResponseTimeout,
				AckTimeout:      e.config.Orders.AckTimeout,
				Logger:          e.logger,
			})
			if err != nil {
				return err
			}

			result, err := requester.SendSpontaneousPayment(ctx, parsed.to, parsed.amount, memo, feeLimit,
				orders.Options{TargetType: parsed.targetType, AckInfo: ackInfo})
			return writePayResult(stdout, parsed, result, err)
		},
	}
}

// writePayResult prints whatever the order delivered. Once money has
// moved the payment is always printed; a later failure (ack or ledger)
// is carried in the JSON and the command exits 1.
func writePayResult(stdout io.Writer, parsed payArgs, result orders.Result, err error) error {
	if err != nil && result.Payment == nil && result.OrderAck == nil {
		return err
	}

	view := payView{To: parsed.to, Amount: parsed.amount, TargetType: string(parsed.targetType)}
	if result.Payment != nil {
		view.PaymentHash = result.Payment.PaymentHash
		view.PaymentIndex = result.Payment.PaymentIndex
		view.Preimage = result.Payment.Preimage
		view.FeeSat = result.Payment.FeeSat
	}
	if result.OrderAck != nil {
		view.Ack = result.OrderAck.Response
	}
	var ackErr *orders.AckError
	if errors.As(err, &ackErr) {
		view.AckError = ackErr.Error()
	}
	if err != nil {
		view.Error = err.Error()
	}
	if writeErr := cli.WriteJSON(stdout, view); writeErr != nil {
		return errors.Join(err, writeErr)
	}
	if err != nil {
		return &cli.ExitError{Code: 1}
	}
	return nil
}
