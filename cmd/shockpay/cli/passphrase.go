// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/shockpay/shockpay/lib/secret"
)

// ReadPassphrase returns the identity passphrase. With a path it reads
// the file ("-" is stdin); otherwise it prompts on the terminal, twice
// when confirm is set.
func ReadPassphrase(path string, confirm bool) (*secret.Buffer, error) {
	if path != "" {
		return secret.ReadFromPath(path)
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, errors.New("no passphrase file configured and stdin is not a terminal")
	}

	first, err := prompt(fd, "Passphrase: ")
	if err != nil {
		return nil, err
	}
	if confirm {
		second, err := prompt(fd, "Repeat passphrase: ")
		if err != nil {
			first.Close()
			return nil, err
		}
		defer second.Close()
		if !first.Equal(second.Bytes()) {
			first.Close()
			return nil, errors.New("passphrases do not match")
		}
	}
	return first, nil
}

func prompt(fd int, label string) (*secret.Buffer, error) {
	fmt.Fprint(os.Stderr, label)
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading passphrase: %w", err)
	}
	if len(raw) == 0 {
		return nil, errors.New("empty passphrase")
	}
	return secret.NewFromBytes(raw)
}
