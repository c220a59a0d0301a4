// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the shockpay command tree.
package commands

import (
	"context"
	"io"

	"github.com/shockpay/shockpay/cmd/shockpay/cli"
	"github.com/shockpay/shockpay/lib/version"
)

// Root returns the top-level command. Command output is written to
// stdout; logs and prompts go to stderr.
func Root(stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:        "shockpay",
		Description: "Pay peers over the shared graph with Lightning invoices.",
		Subcommands: []*cli.Command{
			identityCommand(stdout),
			addressCommand(stdout),
			handshakeCommand(stdout),
			payCommand(stdout),
			ledgerCommand(stdout),
			storeCommand(stdout),
			{
				Name:    "version",
				Summary: "Print build information",
				Run: func(context.Context, []string) error {
					version.Print(stdout, "shockpay")
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{Description: "Create a sealed identity", Command: "shockpay identity create"},
			{Description: "Send 100 sats", Command: "shockpay pay <peer-pub> 100 --memo coffee"},
		},
	}
}
