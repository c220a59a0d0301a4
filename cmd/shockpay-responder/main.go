// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Shockpay-responder answers orders written to the local peer's order
// address: it mints an invoice for each valid order through lnd and
// writes the encrypted response back to the shared graph. With a seed
// service configured it also serves torrentSeed orders, enrolling wallet
// tokens once the invoice is paid.
//
// On start it publishes the encryption key, creates an order address if
// the identity has none, and serves Prometheus metrics when
// metrics.listen_address is set. SIGINT or SIGTERM stops intake and
// waits for accepted orders to be answered.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/shockpay/shockpay/lib/config"
	"github.com/shockpay/shockpay/lib/graph"
	"github.com/shockpay/shockpay/lib/identity"
	"github.com/shockpay/shockpay/lib/lnd"
	"github.com/shockpay/shockpay/lib/process"
	"github.com/shockpay/shockpay/lib/schema/order"
	"github.com/shockpay/shockpay/lib/secret"
	"github.com/shockpay/shockpay/lib/seed"
	"github.com/shockpay/shockpay/lib/version"
	"github.com/shockpay/shockpay/orders"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		showVersion bool
	)
	flag.StringVar(&configPath, "config", "", "path to shockpay.yaml (default: $SHOCKPAY_CONFIG)")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		version.Print(os.Stdout, "shockpay-responder")
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	level, _ := config.ParseLevel(cfg.Log.Level)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	keypair, err := loadKeypair(cfg)
	if err != nil {
		return err
	}
	logger = logger.With("owner", identity.Fingerprint(keypair.Pub()))

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	store, err := graph.OpenSQLite(graph.SQLiteConfig{
		Path:         cfg.Store.Path,
		PollInterval: cfg.Store.PollInterval,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	client, err := lnd.NewClient(lnd.ClientConfig{
		RESTURL:      cfg.LND.RESTURL,
		TLSCertPath:  cfg.LND.TLSCertPath,
		MacaroonPath: cfg.LND.MacaroonPath,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	info, err := client.GetInfo(ctx)
	if err != nil {
		return fmt.Errorf("contacting lnd at %s: %w", cfg.LND.RESTURL, err)
	}
	logger.Info("lnd connected",
		"alias", info.Alias,
		"pubkey", info.IdentityPubkey,
		"synced", info.SyncedToChain,
		"block_height", info.BlockHeight,
	)

	seedService, err := seed.New(seed.Config{
		URL:       cfg.Seed.URL,
		TokenFile: cfg.Seed.TokenFile,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	defer seedService.Close()

	address, err := ensureAddress(ctx, orders.NewMailbox(store, keypair, logger), keypair.Pub())
	if err != nil {
		return err
	}
	logger.Info("order address ready", "address", address)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := orders.NewMetrics(registry)
	if err != nil {
		return err
	}

	fulfillers := map[order.TargetType]orders.Fulfiller{}
	if _, ok := seedService.SelfToken(); ok {
		// An invoice cannot settle after it expires, so the settle wait
		// ends with the invoice.
		fulfillers[order.TorrentSeed] = orders.NewSeedFulfiller(orders.SeedFulfillerConfig{
			Gateway:       client,
			Invoices:      client,
			Seed:          seedService,
			SettleTimeout: cfg.LND.InvoiceExpiry,
			Logger:        logger,
		})
		logger.Info("serving torrentSeed orders", "seed_url", cfg.Seed.URL)
	}

	listener, err := orders.NewListener(orders.ListenerConfig{
		Store:         store,
		Keypair:       keypair,
		Gateway:       client,
		Fulfillers:    fulfillers,
		InvoiceExpiry: cfg.LND.InvoiceExpiry,
		Logger:        logger,
		Metrics:       metrics,
	})
	if err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return listener.Run(groupCtx)
	})
	if cfg.Metrics.ListenAddress != "" {
		group.Go(func() error {
			return serveMetrics(groupCtx, cfg.Metrics.ListenAddress, registry, logger)
		})
	}

	logger.Info("responder running", "version", version.Info())
	err = group.Wait()
	logger.Info("responder stopped")
	return err
}

func loadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadKeypair unseals the identity. The daemon has no terminal, so the
// passphrase must come from identity.passphrase_file.
func loadKeypair(cfg *config.Config) (*identity.Keypair, error) {
	if cfg.Identity.PassphraseFile == "" {
		return nil, errors.New("identity.passphrase_file is required to run the responder")
	}
	passphrase, err := secret.ReadFromPath(cfg.Identity.PassphraseFile)
	if err != nil {
		return nil, err
	}
	defer passphrase.Close()
	return identity.Load(cfg.Identity.Path, passphrase)
}

// ensureAddress publishes the profile and returns the current order
// address, creating one on first run.
func ensureAddress(ctx context.Context, mailbox *orders.Mailbox, self string) (orders.Address, error) {
	if err := mailbox.PublishProfile(ctx); err != nil {
		return "", err
	}
	address, err := mailbox.CurrentAddress(ctx, self)
	if errors.Is(err, orders.ErrNoAddress) {
		return mailbox.GenerateAddress(ctx)
	}
	return address, err
}

func serveMetrics(ctx context.Context, address string, registry *prometheus.Registry, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	server := &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("metrics listening", "address", address)
		errs <- server.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics server shutdown: %w", err)
		}
		<-errs
		return nil
	}
}
