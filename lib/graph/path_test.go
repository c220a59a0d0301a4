// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package graph

import (
	"encoding/hex"
	"errors"
	"testing"
)

func TestJoinValidates(t *testing.T) {
	tests := []struct {
		name     string
		segments []string
		want     Path
		wantErr  bool
	}{
		{name: "single", segments: []string{"orderNodes"}, want: "orderNodes"},
		{name: "nested", segments: []string{"~abc", "orderToResponse", "id1"}, want: "~abc/orderToResponse/id1"},
		{name: "none", segments: nil, wantErr: true},
		{name: "empty segment", segments: []string{"a", ""}, wantErr: true},
		{name: "slash in segment", segments: []string{"a/b"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Join(tt.segments...)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPath) {
					t.Fatalf("Join(%q) error = %v, want ErrInvalidPath", tt.segments, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Join(%q): %v", tt.segments, err)
			}
			if got != tt.want {
				t.Errorf("Join(%q) = %q, want %q", tt.segments, got, tt.want)
			}
		})
	}
}

func TestPathParentAndChild(t *testing.T) {
	root, err := OwnerRoot("pubkey")
	if err != nil {
		t.Fatalf("OwnerRoot: %v", err)
	}
	if root != "~pubkey" {
		t.Errorf("OwnerRoot = %q, want ~pubkey", root)
	}

	child := root.Child("orderToResponse", "id1")
	parent, name := child.Parent()
	if parent != "~pubkey/orderToResponse" || name != "id1" {
		t.Errorf("Parent() = (%q, %q)", parent, name)
	}

	parent, name = root.Parent()
	if parent != "" || name != "~pubkey" {
		t.Errorf("root Parent() = (%q, %q), want empty parent", parent, name)
	}

	if err := Path("a//b").Validate(); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("Validate(a//b) = %v, want ErrInvalidPath", err)
	}
	if _, err := OwnerRoot(""); err == nil {
		t.Error("OwnerRoot accepted an empty key")
	}
}

func TestNewIDIsUniqueHex(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		id := NewID()
		raw, err := hex.DecodeString(id)
		if err != nil || len(raw) != 16 {
			t.Fatalf("NewID() = %q, want 16 bytes of hex", id)
		}
		if seen[id] {
			t.Fatalf("NewID() repeated %q", id)
		}
		seen[id] = true
	}
}

// A UUIDv4 pins the version nibble at index 12 and the variant bits at
// index 16. Every nibble of an id is random.
func TestNewIDHasNoFixedNibbles(t *testing.T) {
	versions := make(map[byte]bool)
	variants := make(map[byte]bool)
	for range 100 {
		id := NewID()
		versions[id[12]] = true
		variants[id[16]] = true
	}
	if len(versions) < 5 {
		t.Errorf("nibble 12 took %d values over 100 ids, want it random", len(versions))
	}
	if len(variants) < 5 {
		t.Errorf("nibble 16 took %d values over 100 ids, want it random", len(variants))
	}
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name     string
		existing string
		incoming string
		want     string
	}{
		{name: "first write", existing: "", incoming: `{"b":1, "a":2}`, want: `{"b":1,"a":2}`},
		{name: "fields merge", existing: `{"a":1,"b":2}`, incoming: `{"b":3,"c":4}`, want: `{"a":1,"b":3,"c":4}`},
		{name: "scalar replaces object", existing: `{"a":1}`, incoming: `"addr"`, want: `"addr"`},
		{name: "object replaces scalar", existing: `"addr"`, incoming: `{"a":1}`, want: `{"a":1}`},
		{name: "null existing", existing: `null`, incoming: `{"a":1}`, want: `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var existing Value
			if tt.existing != "" {
				existing = Value(tt.existing)
			}
			got, err := Merge(existing, Value(tt.incoming))
			if err != nil {
				t.Fatalf("Merge: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Merge = %s, want %s", got, tt.want)
			}
		})
	}
}
