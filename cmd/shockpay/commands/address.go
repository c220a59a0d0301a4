// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"io"

	"github.com/spf13/pflag"

	"github.com/shockpay/shockpay/cmd/shockpay/cli"
	"github.com/shockpay/shockpay/lib/identity"
	"github.com/shockpay/shockpay/orders"
)

type addressView struct {
	Owner   string         `json:"owner"`
	Address orders.Address `json:"address"`
}

// mailboxEnv opens the config, keypair, and store a Mailbox needs.
func mailboxEnv(configPath string) (*env, *identity.Keypair, *orders.Mailbox, error) {
	e, err := openEnv(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	keypair, err := e.keypair()
	if err != nil {
		e.Close()
		return nil, nil, nil, err
	}
	store, err := e.store()
	if err != nil {
		e.Close()
		return nil, nil, nil, err
	}
	return e, keypair, orders.NewMailbox(store, keypair, e.logger), nil
}

func addressCommand(stdout io.Writer) *cli.Command {
	var configPath string
	flags := func(name string) func() *pflag.FlagSet {
		return func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
			configFlag(flagSet, &configPath)
			return flagSet
		}
	}
	return &cli.Command{
		Name:    "address",
		Summary: "Manage the order address peers write to",
		Subcommands: []*cli.Command{
			{
				Name:    "rotate",
				Summary: "Publish the profile and move to a fresh order address",
				Description: "Publish the encryption key and point currentOrderAddress at a new\n" +
					"address. Orders still arriving at the old address are ignored.",
				Flags: flags("rotate"),
				Run: func(ctx context.Context, args []string) error {
					e, keypair, mailbox, err := mailboxEnv(configPath)
					if err != nil {
						return err
					}
					defer e.Close()
					if err := mailbox.PublishProfile(ctx); err != nil {
						return err
					}
					address, err := mailbox.Rotate(ctx)
					if err != nil {
						return err
					}
					return cli.WriteJSON(stdout, addressView{Owner: keypair.Pub(), Address: address})
				},
			},
			{
				Name:    "show",
				Summary: "Print the current order address of a peer",
				Usage:   "shockpay address show [peer-pub] [flags]",
				Flags:   flags("show"),
				Run: func(ctx context.Context, args []string) error {
					if len(args) > 1 {
						return &cli.UsageError{Message: "address show takes at most one peer"}
					}
					e, keypair, mailbox, err := mailboxEnv(configPath)
					if err != nil {
						return err
					}
					defer e.Close()
					peer := keypair.Pub()
					if len(args) == 1 {
						peer = args[0]
					}
					address, err := mailbox.CurrentAddress(ctx, peer)
					if err != nil {
						return err
					}
					return cli.WriteJSON(stdout, addressView{Owner: peer, Address: address})
				},
			},
		},
	}
}

func handshakeCommand(stdout io.Writer) *cli.Command {
	var configPath string
	return &cli.Command{
		Name:    "handshake",
		Summary: "Manage the handshake address",
		Subcommands: []*cli.Command{
			{
				Name:    "rotate",
				Summary: "Move to a fresh handshake address",
				Flags: func() *pflag.FlagSet {
					flagSet := pflag.NewFlagSet("rotate", pflag.ContinueOnError)
					configFlag(flagSet, &configPath)
					return flagSet
				},
				Run: func(ctx context.Context, args []string) error {
					e, keypair, mailbox, err := mailboxEnv(configPath)
					if err != nil {
						return err
					}
					defer e.Close()
					address, err := mailbox.GenerateHandshakeAddress(ctx)
					if err != nil {
						return err
					}
					return cli.WriteJSON(stdout, addressView{Owner: keypair.Pub(), Address: address})
				},
			},
		},
	}
}
