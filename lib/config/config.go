// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Config is the master configuration.
type Config struct {
	Environment Environment `yaml:"environment"`

	// Root is the base directory for local state. Default paths below
	// are relative to it via ${SHOCKPAY_ROOT}.
	Root string `yaml:"root"`

	Identity IdentityConfig `yaml:"identity"`
	Store    StoreConfig    `yaml:"store"`
	LND      LNDConfig      `yaml:"lnd"`
	Orders   OrdersConfig   `yaml:"orders"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Seed     SeedConfig     `yaml:"seed"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`

	// The file may also carry development, staging and production
	// sections. They are read by applyEnvironmentOverrides, not
	// decoded into fields.
}

// IdentityConfig locates the sealed keypair file.
type IdentityConfig struct {
	// Path is the age-encrypted keypair file.
	Path string `yaml:"path"`

	// PassphraseFile holds the passphrase that unseals Path. When empty,
	// commands that need the keypair prompt on the terminal.
	PassphraseFile string `yaml:"passphrase_file"`
}

// StoreConfig configures the local replica of the shared graph.
type StoreConfig struct {
	// Path is the SQLite database file.
	Path string `yaml:"path"`

	// PollInterval is how often subscriptions check for new writes.
	// Default: 200ms
	PollInterval time.Duration `yaml:"poll_interval"`
}

// LNDConfig configures the payment node gateway.
type LNDConfig struct {
	// RESTURL is the base URL of lnd's REST listener.
	// Default: https://localhost:8080
	RESTURL string `yaml:"rest_url"`

	// Network selects the default macaroon directory.
	// Default: testnet
	Network string `yaml:"network"`

	TLSCertPath  string `yaml:"tls_cert_path"`
	MacaroonPath string `yaml:"macaroon_path"`

	// InvoiceExpiry is the expiry of invoices minted for orders.
	// Default: 10h
	InvoiceExpiry time.Duration `yaml:"invoice_expiry"`

	// FeeLimit is the default routing fee limit in satoshis for pay.
	// Default: 10
	FeeLimit int64 `yaml:"fee_limit"`
}

// OrdersConfig bounds the requester's waits.
type OrdersConfig struct {
	// ResponseTimeout bounds the wait for an invoice or err response.
	// Default: 20s
	ResponseTimeout time.Duration `yaml:"response_timeout"`

	// AckTimeout bounds the wait for a post-payment ack.
	// Default: 20s
	AckTimeout time.Duration `yaml:"ack_timeout"`
}

// LedgerConfig locates the audit ledger.
type LedgerConfig struct {
	Path string `yaml:"path"`
}

// SeedConfig configures the local torrent seed service used when a
// peer orders seed tokens from itself. Both fields empty disables it.
type SeedConfig struct {
	URL       string `yaml:"url"`
	TokenFile string `yaml:"token_file"`
}

// MetricsConfig configures the daemon's Prometheus endpoint.
type MetricsConfig struct {
	// ListenAddress is host:port for /metrics. Empty disables it.
	ListenAddress string `yaml:"listen_address"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: info
	Level string `yaml:"level"`
}

// Default returns the base configuration a file is decoded over.
func Default() *Config {
	return &Config{
		Environment: Development,
		Root:        "${HOME}/.local/share/shockpay",
		Identity: IdentityConfig{
			Path: "${SHOCKPAY_ROOT}/identity.age",
		},
		Store: StoreConfig{
			Path:         "${SHOCKPAY_ROOT}/graph.db",
			PollInterval: 200 * time.Millisecond,
		},
		LND: LNDConfig{
			RESTURL:       "https://localhost:8080",
			Network:       "testnet",
			TLSCertPath:   "${HOME}/.lnd/tls.cert",
			MacaroonPath:  "${HOME}/.lnd/data/chain/bitcoin/${LND_NETWORK}/admin.macaroon",
			InvoiceExpiry: 10 * time.Hour,
			FeeLimit:      10,
		},
		Orders: OrdersConfig{
			ResponseTimeout: 20 * time.Second,
			AckTimeout:      20 * time.Second,
		},
		Ledger: LedgerConfig{
			Path: "${SHOCKPAY_ROOT}/ledger.db",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from the SHOCKPAY_CONFIG environment
// variable. It fails if the variable is not set.
func Load() (*Config, error) {
	configPath := os.Getenv("SHOCKPAY_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("SHOCKPAY_CONFIG environment variable not set; " +
			"set it to the path of your shockpay.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.applyEnvironmentOverrides(data); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.expandVariables()
	return cfg, nil
}

// applyEnvironmentOverrides decodes the top-level section named by
// c.Environment over c. Decoding into the populated struct only touches
// keys present in the section.
func (c *Config) applyEnvironmentOverrides(data []byte) error {
	section, err := environmentSection(data, string(c.Environment))
	if err != nil || section == nil {
		return err
	}
	if err := section.Decode(c); err != nil {
		return fmt.Errorf("%s section: %w", c.Environment, err)
	}
	return nil
}

// environmentSection returns the mapping under the top-level key name,
// or nil when the document has none.
func environmentSection(data []byte, name string) (*yaml.Node, error) {
	var document yaml.Node
	if err := yaml.Unmarshal(data, &document); err != nil {
		return nil, err
	}
	if document.Kind != yaml.DocumentNode || len(document.Content) == 0 {
		return nil, nil
	}
	root := document.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, nil
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value != name {
			continue
		}
		section := root.Content[i+1]
		switch section.Kind {
		case yaml.MappingNode:
			return section, nil
		case yaml.ScalarNode:
			if section.Tag == "!!null" {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("%s section must be a mapping", name)
	}
	return nil, nil
}

func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME":        os.Getenv("HOME"),
		"LND_NETWORK": c.LND.Network,
	}

	c.Root = expandVars(c.Root, vars)
	vars["SHOCKPAY_ROOT"] = c.Root

	c.Identity.Path = expandVars(c.Identity.Path, vars)
	c.Identity.PassphraseFile = expandVars(c.Identity.PassphraseFile, vars)
	c.Store.Path = expandVars(c.Store.Path, vars)
	c.LND.TLSCertPath = expandVars(c.LND.TLSCertPath, vars)
	c.LND.MacaroonPath = expandVars(c.LND.MacaroonPath, vars)
	c.Ledger.Path = expandVars(c.Ledger.Path, vars)
	c.Seed.TokenFile = expandVars(c.Seed.TokenFile, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns. Provided vars
// take precedence over the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	if c.Identity.Path == "" {
		errs = append(errs, errors.New("identity.path is required"))
	}
	if c.Store.Path == "" {
		errs = append(errs, errors.New("store.path is required"))
	}
	if c.Store.PollInterval <= 0 {
		errs = append(errs, errors.New("store.poll_interval must be positive"))
	}
	if c.LND.RESTURL == "" {
		errs = append(errs, errors.New("lnd.rest_url is required"))
	}
	if c.LND.InvoiceExpiry < time.Second {
		errs = append(errs, errors.New("lnd.invoice_expiry must be at least 1s"))
	}
	if c.LND.FeeLimit < 0 {
		errs = append(errs, errors.New("lnd.fee_limit must not be negative"))
	}
	if c.Orders.ResponseTimeout <= 0 {
		errs = append(errs, errors.New("orders.response_timeout must be positive"))
	}
	if c.Orders.AckTimeout <= 0 {
		errs = append(errs, errors.New("orders.ack_timeout must be positive"))
	}
	if c.Ledger.Path == "" {
		errs = append(errs, errors.New("ledger.path is required"))
	}
	if (c.Seed.URL == "") != (c.Seed.TokenFile == "") {
		errs = append(errs, errors.New("seed.url and seed.token_file must be set together"))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ParseLevel maps a log.level value to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", level)
}

// EnsureDirectories creates the parent directories of every local state
// file.
func (c *Config) EnsureDirectories() error {
	for _, path := range []string{c.Identity.Path, c.Store.Path, c.Ledger.Path} {
		if path == "" {
			continue
		}
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}
