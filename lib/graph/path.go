// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package graph

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPath is matched by every path validation failure.
var ErrInvalidPath = errors.New("graph: invalid path")

// Path is a "/"-joined list of non-empty segments.
type Path string

// Join builds a Path from segments, validating each.
func Join(segments ...string) (Path, error) {
	if len(segments) == 0 {
		return "", fmt.Errorf("%w: no segments", ErrInvalidPath)
	}
	for _, segment := range segments {
		if err := validateSegment(segment); err != nil {
			return "", err
		}
	}
	return Path(strings.Join(segments, "/")), nil
}

// OwnerRoot returns the root of the graph owned by publicKey.
func OwnerRoot(publicKey string) (Path, error) {
	if publicKey == "" {
		return "", fmt.Errorf("%w: empty public key", ErrInvalidPath)
	}
	return Join("~" + publicKey)
}

// Child appends segments to p. The result is validated by the store
// operation that uses it.
func (p Path) Child(segments ...string) Path {
	if len(segments) == 0 {
		return p
	}
	return Path(string(p) + "/" + strings.Join(segments, "/"))
}

// Parent splits p into its parent collection and last segment. A
// single-segment path has an empty parent.
func (p Path) Parent() (Path, string) {
	index := strings.LastIndexByte(string(p), '/')
	if index < 0 {
		return "", string(p)
	}
	return p[:index], string(p[index+1:])
}

// Validate reports whether every segment of p is well formed.
func (p Path) Validate() error {
	if p == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	for _, segment := range strings.Split(string(p), "/") {
		if err := validateSegment(segment); err != nil {
			return fmt.Errorf("%w (in %q)", err, p)
		}
	}
	return nil
}

func (p Path) String() string { return string(p) }

func validateSegment(segment string) error {
	switch {
	case segment == "":
		return fmt.Errorf("%w: empty segment", ErrInvalidPath)
	case strings.ContainsRune(segment, '/'):
		return fmt.Errorf("%w: segment %q contains '/'", ErrInvalidPath, segment)
	case strings.ContainsRune(segment, 0):
		return fmt.Errorf("%w: segment contains NUL", ErrInvalidPath)
	}
	return nil
}

// NewID returns a fresh collection key: 16 random bytes, hex encoded.
func NewID() string {
	var buffer [16]byte
	// crypto/rand.Read never returns an error.
	rand.Read(buffer[:])
	return hex.EncodeToString(buffer[:])
}
