// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/shockpay/shockpay/cmd/shockpay/cli"
	"github.com/shockpay/shockpay/lib/graph"
)

type snapshotView struct {
	Entries int `json:"entries"`
}

func storeCommand(stdout io.Writer) *cli.Command {
	var configPath string
	flags := func(name string) func() *pflag.FlagSet {
		return func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
			configFlag(flagSet, &configPath)
			return flagSet
		}
	}
	return &cli.Command{
		Name:    "store",
		Summary: "Snapshot the local graph replica",
		Subcommands: []*cli.Command{
			{
				Name:    "export",
				Summary: "Write a CBOR snapshot of every stored path",
				Usage:   "shockpay store export <file> [flags]",
				Flags:   flags("export"),
				Run: func(ctx context.Context, args []string) error {
					if len(args) != 1 {
						return &cli.UsageError{Message: "usage: shockpay store export <file>"}
					}
					e, err := openEnv(configPath)
					if err != nil {
						return err
					}
					defer e.Close()
					store, err := e.store()
					if err != nil {
						return err
					}
					file, err := os.OpenFile(args[0], os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
					if err != nil {
						return err
					}
					count, err := graph.Export(ctx, store, file)
					if closeErr := file.Close(); err == nil {
						err = closeErr
					}
					if err != nil {
						return err
					}
					e.logger.Info("store exported", "file", args[0], "entries", count)
					return cli.WriteJSON(stdout, snapshotView{Entries: count})
				},
			},
			{
				Name:    "import",
				Summary: "Merge a snapshot into the local replica",
				Usage:   "shockpay store import <file> [flags]",
				Flags:   flags("import"),
				Run: func(ctx context.Context, args []string) error {
					if len(args) != 1 {
						return &cli.UsageError{Message: "usage: shockpay store import <file>"}
					}
					e, err := openEnv(configPath)
					if err != nil {
						return err
					}
					defer e.Close()
					store, err := e.store()
					if err != nil {
						return err
					}
					file, err := os.Open(args[0])
					if err != nil {
						return err
					}
					defer file.Close()
					count, err := graph.Import(ctx, file, store)
					if err != nil {
						return err
					}
					e.logger.Info("store imported", "file", args[0], "entries", count)
					return cli.WriteJSON(stdout, snapshotView{Entries: count})
				},
			},
		},
	}
}
