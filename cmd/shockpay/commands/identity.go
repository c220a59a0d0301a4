// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/pflag"

	"github.com/shockpay/shockpay/cmd/shockpay/cli"
	"github.com/shockpay/shockpay/lib/identity"
)

type identityView struct {
	Pub           string `json:"pub"`
	EncryptionPub string `json:"encryptionPub"`
	Fingerprint   string `json:"fingerprint"`
}

func viewIdentity(keypair *identity.Keypair) identityView {
	return identityView{
		Pub:           keypair.Pub(),
		EncryptionPub: keypair.EncryptionPub(),
		Fingerprint:   identity.Fingerprint(keypair.Pub()),
	}
}

func identityCommand(stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "identity",
		Summary: "Create or inspect the local keypair",
		Subcommands: []*cli.Command{
			identityCreateCommand(stdout),
			identityShowCommand(stdout),
		},
	}
}

func identityCreateCommand(stdout io.Writer) *cli.Command {
	var configPath string
	var force bool
	return &cli.Command{
		Name:    "create",
		Summary: "Generate a keypair and seal it with a passphrase",
		Description: "Generate a signing and encryption keypair and write it to identity.path,\n" +
			"sealed with the passphrase from identity.passphrase_file or the terminal.",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("create", pflag.ContinueOnError)
			configFlag(flagSet, &configPath)
			flagSet.BoolVar(&force, "force", false, "replace an existing identity file")
			return flagSet
		},
		Run: func(_ context.Context, args []string) error {
			if len(args) != 0 {
				return &cli.UsageError{Message: "identity create takes no arguments"}
			}
			e, err := openEnv(configPath)
			if err != nil {
				return err
			}
			defer e.Close()

			path := e.config.Identity.Path
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to replace it)", path)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			if err := e.config.EnsureDirectories(); err != nil {
				return err
			}

			keypair, err := identity.Generate()
			if err != nil {
				return err
			}
			passphrase, err := cli.ReadPassphrase(e.config.Identity.PassphraseFile, true)
			if err != nil {
				return err
			}
			defer passphrase.Close()
			if err := identity.Save(path, keypair, passphrase); err != nil {
				return err
			}
			e.logger.Info("identity created", "path", path, "fingerprint", identity.Fingerprint(keypair.Pub()))
			return cli.WriteJSON(stdout, viewIdentity(keypair))
		},
	}
}

func identityShowCommand(stdout io.Writer) *cli.Command {
	var configPath string
	return &cli.Command{
		Name:    "show",
		Summary: "Print the public keys of the local identity",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("show", pflag.ContinueOnError)
			configFlag(flagSet, &configPath)
			return flagSet
		},
		Run: func(_ context.Context, args []string) error {
			e, err := openEnv(configPath)
			if err != nil {
				return err
			}
			defer e.Close()
			keypair, err := e.keypair()
			if err != nil {
				return err
			}
			return cli.WriteJSON(stdout, viewIdentity(keypair))
		},
	}
}
