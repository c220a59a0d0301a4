// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package graph

import (
	"context"
	"errors"
	"fmt"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("graph: store closed")

// Store is the shared graph contract.
type Store interface {
	// Put merges value into path.
	Put(ctx context.Context, path Path, value Value) error

	// Append writes value at path/<fresh id> and returns the id.
	Append(ctx context.Context, path Path, value Value) (string, error)

	// Read returns the current value at path. found is false when
	// nothing has been written there.
	Read(ctx context.Context, path Path) (value Value, found bool, err error)

	// Subscribe delivers the current value at path, if any, and then
	// every later write to it.
	Subscribe(ctx context.Context, path Path, handler func(Value)) (Subscription, error)

	// SubscribeChildren delivers every current child of path, and then
	// every later write to any child, with the child's id.
	SubscribeChildren(ctx context.Context, path Path, handler func(id string, value Value)) (Subscription, error)
}

// ConditionalPutter is implemented by stores that can write a path only
// if it is still empty.
type ConditionalPutter interface {
	// PutIfAbsent writes value at path unless a value exists there.
	// written reports whether this call's value was stored.
	PutIfAbsent(ctx context.Context, path Path, value Value) (written bool, err error)
}

// Subscription is a live subscription. Stop is idempotent.
type Subscription interface {
	Stop()
}

// WriteError reports a write the store rejected.
type WriteError struct {
	Path Path
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("graph: write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

func writeError(path Path, err error) error {
	return &WriteError{Path: path, Err: err}
}
