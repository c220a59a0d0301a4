// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"io"

	"github.com/spf13/pflag"

	"github.com/shockpay/shockpay/cmd/shockpay/cli"
	"github.com/shockpay/shockpay/lib/ledger"
)

func ledgerCommand(stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "ledger",
		Summary: "Inspect the audit ledger of completed payments",
		Subcommands: []*cli.Command{
			ledgerListCommand(stdout),
			ledgerVerifyCommand(stdout),
		},
	}
}

func ledgerListCommand(stdout io.Writer) *cli.Command {
	var (
		configPath string
		filter     ledger.Filter
	)
	return &cli.Command{
		Name:    "list",
		Summary: "Print ledger records as JSON, oldest first",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
			configFlag(flagSet, &configPath)
			flagSet.StringVar(&filter.Type, "type", "", "only records of this target type")
			flagSet.StringVar(&filter.ToPub, "to", "", "only records paid to this peer")
			flagSet.Int64Var(&filter.After, "after", 0, "only records with a sequence number above this")
			flagSet.IntVar(&filter.Limit, "limit", 0, "maximum number of records (0: all)")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			e, err := openEnv(configPath)
			if err != nil {
				return err
			}
			defer e.Close()
			records, err := e.ledger()
			if err != nil {
				return err
			}
			list, err := records.List(ctx, filter)
			if err != nil {
				return err
			}
			return cli.WriteJSON(stdout, list)
		},
	}
}

type verifyView struct {
	Records  int  `json:"records"`
	Verified bool `json:"verified"`
}

func ledgerVerifyCommand(stdout io.Writer) *cli.Command {
	var configPath string
	return &cli.Command{
		Name:    "verify",
		Summary: "Check the ledger's hash chain",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("verify", pflag.ContinueOnError)
			configFlag(flagSet, &configPath)
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			e, err := openEnv(configPath)
			if err != nil {
				return err
			}
			defer e.Close()
			records, err := e.ledger()
			if err != nil {
				return err
			}
			count, err := records.Verify(ctx)
			if err != nil {
				return err
			}
			return cli.WriteJSON(stdout, verifyView{Records: count, Verified: true})
		},
	}
}
