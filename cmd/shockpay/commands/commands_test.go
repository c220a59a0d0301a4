// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/shockpay/shockpay/cmd/shockpay/cli"
	"github.com/shockpay/shockpay/lib/graph"
	"github.com/shockpay/shockpay/lib/lnd"
	"github.com/shockpay/shockpay/lib/schema/order"
	"github.com/shockpay/shockpay/orders"
)

// writeConfig writes a shockpay.yaml whose state lives under a fresh
// temporary directory and returns its path and that directory.
func writeConfig(t *testing.T) (path, root string) {
	t.Helper()
	root = t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "passphrase"), []byte("correct horse\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	body := fmt.Sprintf(`environment: development
root: %[1]s
identity:
  path: %[1]s/identity.age
  passphrase_file: %[1]s/passphrase
store:
  path: %[1]s/graph.db
ledger:
  path: %[1]s/ledger.db
log:
  level: error
`, root)
	path = filepath.Join(root, "shockpay.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path, root
}

func run(t *testing.T, args ...string) ([]byte, error) {
	t.Helper()
	var stdout bytes.Buffer
	err := Root(&stdout).Execute(context.Background(), args)
	return stdout.Bytes(), err
}

func TestLedgerVerifyEmpty(t *testing.T) {
	configPath, _ := writeConfig(t)
	output, err := run(t, "ledger", "verify", "--config", configPath)
	if err != nil {
		t.Fatalf("ledger verify: %v", err)
	}
	var view verifyView
	if err := json.Unmarshal(output, &view); err != nil {
		t.Fatalf("decoding %q: %v", output, err)
	}
	if !view.Verified || view.Records != 0 {
		t.Errorf("verify = %+v, want 0 verified records", view)
	}

	output, err = run(t, "ledger", "list", "--config", configPath)
	if err != nil {
		t.Fatalf("ledger list: %v", err)
	}
	if got := string(bytes.TrimSpace(output)); got != "[]" {
		t.Errorf("ledger list = %q, want []", got)
	}
}

func TestStoreExportImport(t *testing.T) {
	ctx := context.Background()
	sourceConfig, sourceRoot := writeConfig(t)
	targetConfig, targetRoot := writeConfig(t)

	path, err := graph.Join("~alice", "currentOrderAddress")
	if err != nil {
		t.Fatal(err)
	}
	source, err := graph.OpenSQLite(graph.SQLiteConfig{Path: filepath.Join(sourceRoot, "graph.db")})
	if err != nil {
		t.Fatal(err)
	}
	if err := source.Put(ctx, path, graph.Value(`"addr-1"`)); err != nil {
		t.Fatal(err)
	}
	source.Close()

	snapshot := filepath.Join(t.TempDir(), "snapshot.cbor")
	output, err := run(t, "store", "export", snapshot, "--config", sourceConfig)
	if err != nil {
		t.Fatalf("store export: %v", err)
	}
	var view snapshotView
	if err := json.Unmarshal(output, &view); err != nil || view.Entries != 1 {
		t.Fatalf("export output = %q (%v), want 1 entry", output, err)
	}

	if _, err := run(t, "store", "import", snapshot, "--config", targetConfig); err != nil {
		t.Fatalf("store import: %v", err)
	}
	target, err := graph.OpenSQLite(graph.SQLiteConfig{Path: filepath.Join(targetRoot, "graph.db")})
	if err != nil {
		t.Fatal(err)
	}
	defer target.Close()
	value, ok, err := target.Read(ctx, path)
	if err != nil || !ok {
		t.Fatalf("Read after import = %s, %v, %v", value, ok, err)
	}
	if string(value) != `"addr-1"` {
		t.Errorf("imported value = %s, want \"addr-1\"", value)
	}
}

func TestStoreExportRequiresFile(t *testing.T) {
	configPath, _ := writeConfig(t)
	_, err := run(t, "store", "export", "--config", configPath)
	var usage *cli.UsageError
	if !errors.As(err, &usage) {
		t.Fatalf("store export without file = %v, want *cli.UsageError", err)
	}
}

func TestParsePayArgs(t *testing.T) {
	parsed, err := parsePayArgs([]string{"peer", "250"}, "torrentSeed")
	if err != nil {
		t.Fatalf("parsePayArgs: %v", err)
	}
	if parsed.to != "peer" || parsed.amount != 250 || parsed.targetType != order.TorrentSeed {
		t.Errorf("parsePayArgs = %+v", parsed)
	}

	for _, test := range []struct {
		name       string
		args       []string
		targetType string
	}{
		{"missing amount", []string{"peer"}, "spontaneousPayment"},
		{"extra argument", []string{"peer", "1", "2"}, "spontaneousPayment"},
		{"zero amount", []string{"peer", "0"}, "spontaneousPayment"},
		{"fractional amount", []string{"peer", "1.5"}, "spontaneousPayment"},
		{"unknown type", []string{"peer", "10"}, "gift"},
	} {
		t.Run(test.name, func(t *testing.T) {
			_, err := parsePayArgs(test.args, test.targetType)
			var usage *cli.UsageError
			if !errors.As(err, &usage) {
				t.Errorf("parsePayArgs(%v, %q) = %v, want *cli.UsageError", test.args, test.targetType, err)
			}
		})
	}
}

func TestWritePayResultPrintsPaymentWhenLedgerFails(t *testing.T) {
	parsed := payArgs{to: "peer", amount: 100, targetType: order.SpontaneousPayment}
	result := orders.Result{Payment: &lnd.Payment{PaymentHash: "abcd", PaymentIndex: 7, Preimage: "beef", ValueSat: 100, FeeSat: 1}}

	var stdout bytes.Buffer
	err := writePayResult(&stdout, parsed, result, errors.New("ledger: disk full"))
	var exit *cli.ExitError
	if !errors.As(err, &exit) || exit.Code != 1 {
		t.Fatalf("writePayResult error = %v, want exit code 1", err)
	}

	var view payView
	if err := json.Unmarshal(stdout.Bytes(), &view); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, stdout.String())
	}
	if view.PaymentHash != "abcd" || view.Preimage != "beef" || view.PaymentIndex != 7 {
		t.Errorf("view = %+v, want the payment", view)
	}
	if view.Error != "ledger: disk full" {
		t.Errorf("view.Error = %q", view.Error)
	}
	if view.AckError != "" {
		t.Errorf("view.AckError = %q, want empty for a ledger failure", view.AckError)
	}
}

func TestWritePayResultWithoutPaymentReturnsError(t *testing.T) {
	parsed := payArgs{to: "peer", amount: 100, targetType: order.SpontaneousPayment}
	cause := errors.New("invoice amount mismatch")

	var stdout bytes.Buffer
	if err := writePayResult(&stdout, parsed, orders.Result{}, cause); !errors.Is(err, cause) {
		t.Errorf("writePayResult error = %v, want %v", err, cause)
	}
	if stdout.Len() != 0 {
		t.Errorf("stdout = %q, want nothing printed", stdout.String())
	}
}

func TestIdentityCreateAndShow(t *testing.T) {
	if testing.Short() {
		t.Skip("sealing with the production scrypt work factor is slow")
	}
	configPath, _ := writeConfig(t)

	output, err := run(t, "identity", "create", "--config", configPath)
	if err != nil {
		t.Fatalf("identity create: %v", err)
	}
	var created identityView
	if err := json.Unmarshal(output, &created); err != nil {
		t.Fatalf("decoding %q: %v", output, err)
	}

	if _, err := run(t, "identity", "create", "--config", configPath); err == nil {
		t.Error("second identity create succeeded without --force")
	}

	output, err = run(t, "identity", "show", "--config", configPath)
	if err != nil {
		t.Fatalf("identity show: %v", err)
	}
	var shown identityView
	if err := json.Unmarshal(output, &shown); err != nil {
		t.Fatalf("decoding %q: %v", output, err)
	}
	if shown != created {
		t.Errorf("show = %+v, want %+v", shown, created)
	}
}
