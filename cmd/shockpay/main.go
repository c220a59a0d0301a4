// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Command shockpay manages a local shockpay identity and pays peers.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/shockpay/shockpay/cmd/shockpay/commands"
	"github.com/shockpay/shockpay/lib/process"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := commands.Root(os.Stdout).Execute(ctx, os.Args[1:])
	stop()
	if err != nil {
		process.Fatal(err)
	}
}
