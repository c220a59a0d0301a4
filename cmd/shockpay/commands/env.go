// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/shockpay/shockpay/cmd/shockpay/cli"
	"github.com/shockpay/shockpay/lib/config"
	"github.com/shockpay/shockpay/lib/graph"
	"github.com/shockpay/shockpay/lib/identity"
	"github.com/shockpay/shockpay/lib/ledger"
	"github.com/shockpay/shockpay/lib/lnd"
	"github.com/shockpay/shockpay/lib/seed"
)

// configFlag registers --config on flagSet.
func configFlag(flagSet *pflag.FlagSet, path *string) {
	flagSet.StringVar(path, "config", "", "path to shockpay.yaml (default: $SHOCKPAY_CONFIG)")
}

// env holds what a command opened. Close releases everything in reverse
// order of opening.
type env struct {
	config  *config.Config
	logger  *slog.Logger
	closers []io.Closer
}

func openEnv(configPath string) (*env, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	level, _ := config.ParseLevel(cfg.Log.Level)
	return &env{config: cfg, logger: cli.NewCommandLogger(level)}, nil
}

func (e *env) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}

func (e *env) keypair() (*identity.Keypair, error) {
	passphrase, err := cli.ReadPassphrase(e.config.Identity.PassphraseFile, false)
	if err != nil {
		return nil, err
	}
	defer passphrase.Close()
	return identity.Load(e.config.Identity.Path, passphrase)
}

func (e *env) store() (*graph.SQLite, error) {
	if err := e.config.EnsureDirectories(); err != nil {
		return nil, err
	}
	store, err := graph.OpenSQLite(graph.SQLiteConfig{
		Path:         e.config.Store.Path,
		PollInterval: e.config.Store.PollInterval,
		Logger:       e.logger,
	})
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, store)
	return store, nil
}

func (e *env) ledger() (*ledger.Ledger, error) {
	if err := e.config.EnsureDirectories(); err != nil {
		return nil, err
	}
	records, err := ledger.Open(ledger.Config{Path: e.config.Ledger.Path, Logger: e.logger})
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, records)
	return records, nil
}

func (e *env) gateway() (*lnd.Client, error) {
	client, err := lnd.NewClient(lnd.ClientConfig{
		RESTURL:      e.config.LND.RESTURL,
		TLSCertPath:  e.config.LND.TLSCertPath,
		MacaroonPath: e.config.LND.MacaroonPath,
		Logger:       e.logger,
	})
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, client)
	return client, nil
}

func (e *env) seed() (*seed.Service, error) {
	service, err := seed.New(seed.Config{
		URL:       e.config.Seed.URL,
		TokenFile: e.config.Seed.TokenFile,
		Logger:    e.logger,
	})
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, service)
	return service, nil
}
