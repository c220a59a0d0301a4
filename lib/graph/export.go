// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package graph

import (
	"context"
	"fmt"
	"io"

	"github.com/shockpay/shockpay/lib/codec"
)

// snapshotVersion is bumped on incompatible changes to the snapshot
// layout.
const snapshotVersion = 1

// Entry is one stored path and its value.
type Entry struct {
	Path  Path  `cbor:"path"`
	Value Value `cbor:"value"`
}

// Dumper is implemented by stores that can enumerate every entry.
type Dumper interface {
	// Dump returns all entries sorted by path.
	Dump(ctx context.Context) ([]Entry, error)
}

type snapshot struct {
	Version int     `cbor:"version"`
	Entries []Entry `cbor:"entries"`
}

// Export writes a deterministic CBOR snapshot of source to w and
// returns the number of entries written.
func Export(ctx context.Context, source Dumper, w io.Writer) (int, error) {
	entries, err := source.Dump(ctx)
	if err != nil {
		return 0, fmt.Errorf("graph: export: %w", err)
	}
	if err := codec.NewEncoder(w).Encode(snapshot{Version: snapshotVersion, Entries: entries}); err != nil {
		return 0, fmt.Errorf("graph: export: encoding snapshot: %w", err)
	}
	return len(entries), nil
}

// Import reads a snapshot written by Export and Puts every entry into
// target. Entries merge with whatever target already holds.
func Import(ctx context.Context, r io.Reader, target Store) (int, error) {
	var snap snapshot
	if err := codec.NewDecoder(r).Decode(&snap); err != nil {
		return 0, fmt.Errorf("graph: import: decoding snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return 0, fmt.Errorf("graph: import: unsupported snapshot version %d", snap.Version)
	}
	for i, entry := range snap.Entries {
		if err := target.Put(ctx, entry.Path, entry.Value); err != nil {
			return i, fmt.Errorf("graph: import: %w", err)
		}
	}
	return len(snap.Entries), nil
}
