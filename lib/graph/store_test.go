// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package graph

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shockpay/shockpay/lib/testutil"
)

const waitTimeout = 5 * time.Second

type storeFactory struct {
	name string
	open func(t *testing.T) Store
}

func storeFactories() []storeFactory {
	return []storeFactory{
		{name: "memory", open: func(t *testing.T) Store {
			store := NewMemory(nil)
			t.Cleanup(func() { store.Close() })
			return store
		}},
		{name: "sqlite", open: func(t *testing.T) Store {
			return openTestSQLite(t)
		}},
	}
}

func openTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	store, err := OpenSQLite(SQLiteConfig{
		Path:         filepath.Join(t.TempDir(), "graph.db"),
		PollInterval: 5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func forEachStore(t *testing.T, test func(t *testing.T, store Store)) {
	for _, factory := range storeFactories() {
		t.Run(factory.name, func(t *testing.T) {
			test(t, factory.open(t))
		})
	}
}

func mustPath(t *testing.T, segments ...string) Path {
	t.Helper()
	path, err := Join(segments...)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	return path
}

func requireJSON(t *testing.T, got Value, want string) {
	t.Helper()
	compacted, err := compact(Value(want))
	if err != nil {
		t.Fatalf("bad expectation %s: %v", want, err)
	}
	if !bytes.Equal(got, compacted) {
		t.Errorf("value = %s, want %s", got, compacted)
	}
}

func TestStorePutMergesAndReads(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		path := mustPath(t, "~alice", "profile")

		if _, found, err := store.Read(ctx, path); err != nil || found {
			t.Fatalf("Read before write = found %v, err %v", found, err)
		}
		if err := store.Put(ctx, path, Value(`{"epub":"k1","name":"a"}`)); err != nil {
			t.Fatalf("Put: %v", err)
		}
		if err := store.Put(ctx, path, Value(`{"epub":"k2"}`)); err != nil {
			t.Fatalf("Put: %v", err)
		}
		value, found, err := store.Read(ctx, path)
		if err != nil || !found {
			t.Fatalf("Read = found %v, err %v", found, err)
		}
		requireJSON(t, value, `{"epub":"k2","name":"a"}`)
	})
}

func TestStoreRejectsInvalidWrites(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()

		err := store.Put(ctx, mustPath(t, "a"), Value(`{not json`))
		var writeErr *WriteError
		if !errors.As(err, &writeErr) {
			t.Fatalf("Put(invalid JSON) error = %v, want *WriteError", err)
		}
		if writeErr.Path != "a" {
			t.Errorf("WriteError.Path = %q, want a", writeErr.Path)
		}
		if !errors.Is(err, ErrInvalidValue) {
			t.Errorf("error = %v, want ErrInvalidValue", err)
		}

		err = store.Put(ctx, Path("a//b"), Value(`1`))
		if !errors.As(err, &writeErr) || !errors.Is(err, ErrInvalidPath) {
			t.Errorf("Put(bad path) error = %v, want *WriteError wrapping ErrInvalidPath", err)
		}
	})
}

func TestStoreSubscribeReplaysThenFollows(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		path := mustPath(t, "~alice", "currentOrderAddress")
		if err := store.Put(ctx, path, Value(`"addr-1"`)); err != nil {
			t.Fatalf("Put: %v", err)
		}

		values := make(chan string, 16)
		subscription, err := store.Subscribe(ctx, path, func(value Value) { values <- string(value) })
		if err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
		defer subscription.Stop()

		if got := testutil.RequireReceive(t, values, waitTimeout, "replay"); got != `"addr-1"` {
			t.Errorf("replayed %s, want \"addr-1\"", got)
		}
		if err := store.Put(ctx, path, Value(`"addr-2"`)); err != nil {
			t.Fatalf("Put: %v", err)
		}
		if got := testutil.RequireReceive(t, values, waitTimeout, "live write"); got != `"addr-2"` {
			t.Errorf("delivered %s, want \"addr-2\"", got)
		}
	})
}

func TestStoreSubscribeChildren(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		mailbox := mustPath(t, "orderNodes", "addr-1")

		first, err := store.Append(ctx, mailbox, Value(`{"n":1}`))
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		second, err := store.Append(ctx, mailbox, Value(`{"n":2}`))
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		if first == second {
			t.Fatalf("Append returned the same id twice: %s", first)
		}

		type child struct {
			id    string
			value string
		}
		children := make(chan child, 16)
		subscription, err := store.SubscribeChildren(ctx, mailbox, func(id string, value Value) {
			children <- child{id, string(value)}
		})
		if err != nil {
			t.Fatalf("SubscribeChildren: %v", err)
		}
		defer subscription.Stop()

		want := []child{{first, `{"n":1}`}, {second, `{"n":2}`}}
		for _, expected := range want {
			got := testutil.RequireReceive(t, children, waitTimeout, "replayed child")
			if got != expected {
				t.Errorf("child = %+v, want %+v", got, expected)
			}
		}

		third, err := store.Append(ctx, mailbox, Value(`{"n":3}`))
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		got := testutil.RequireReceive(t, children, waitTimeout, "live child")
		if got.id != third || got.value != `{"n":3}` {
			t.Errorf("live child = %+v, want id %s", got, third)
		}

		// Writes elsewhere never reach this collection's subscribers.
		if _, err := store.Append(ctx, mustPath(t, "orderNodes", "addr-2"), Value(`{"n":4}`)); err != nil {
			t.Fatalf("Append: %v", err)
		}
		testutil.RequireNoReceive(t, children, 50*time.Millisecond, "write to another collection")
	})
}

func TestStoreStopEndsDelivery(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		path := mustPath(t, "~bob", "orderToResponse")

		children := make(chan string, 16)
		subscription, err := store.SubscribeChildren(ctx, path, func(id string, _ Value) { children <- id })
		if err != nil {
			t.Fatalf("SubscribeChildren: %v", err)
		}
		subscription.Stop()
		subscription.Stop()

		if _, err := store.Append(ctx, path, Value(`{}`)); err != nil {
			t.Fatalf("Append: %v", err)
		}
		testutil.RequireNoReceive(t, children, 50*time.Millisecond, "delivery after Stop")
	})
}

func TestStorePutIfAbsentFirstWriteWins(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		conditional, ok := store.(ConditionalPutter)
		if !ok {
			t.Fatalf("%T does not implement ConditionalPutter", store)
		}
		ctx := context.Background()
		path := mustPath(t, "~bob", "orderToResponse", "order-1")

		written, err := conditional.PutIfAbsent(ctx, path, Value(`{"type":"invoice"}`))
		if err != nil || !written {
			t.Fatalf("first PutIfAbsent = %v, %v", written, err)
		}
		written, err = conditional.PutIfAbsent(ctx, path, Value(`{"type":"err"}`))
		if err != nil || written {
			t.Fatalf("second PutIfAbsent = %v, %v; want not written", written, err)
		}
		value, _, err := store.Read(ctx, path)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		requireJSON(t, value, `{"type":"invoice"}`)
	})
}

func TestStoreWriteCancelledContext(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := store.Put(ctx, mustPath(t, "a"), Value(`1`))
		var writeErr *WriteError
		if !errors.As(err, &writeErr) || !errors.Is(err, context.Canceled) {
			t.Errorf("Put(cancelled) error = %v, want *WriteError wrapping context.Canceled", err)
		}
	})
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	source := NewMemory(nil)
	defer source.Close()

	if err := source.Put(ctx, mustPath(t, "~alice", "currentOrderAddress"), Value(`"addr-1"`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := source.Append(ctx, mustPath(t, "orderNodes", "addr-1"), Value(`{"amount":"x"}`)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	var first, second bytes.Buffer
	count, err := Export(ctx, source, &first)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if count != 2 {
		t.Errorf("Export wrote %d entries, want 2", count)
	}
	if _, err := Export(ctx, source, &second); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if !bytes.Equal(first.Bytes(), second.Bytes()) {
		t.Error("two exports of the same store differ")
	}

	target := openTestSQLite(t)
	imported, err := Import(ctx, &first, target)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if imported != 2 {
		t.Errorf("Import loaded %d entries, want 2", imported)
	}

	want, _ := source.Dump(ctx)
	got, err := target.Dump(ctx)
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("target has %d entries, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Path != want[i].Path || !bytes.Equal(got[i].Value, want[i].Value) {
			t.Errorf("entry %d = %s %s, want %s %s", i, got[i].Path, got[i].Value, want[i].Path, want[i].Value)
		}
	}
}

func TestSQLiteSharedBetweenHandles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	open := func() *SQLite {
		store, err := OpenSQLite(SQLiteConfig{Path: path, PollInterval: 5 * time.Millisecond})
		if err != nil {
			t.Fatalf("OpenSQLite: %v", err)
		}
		t.Cleanup(func() { store.Close() })
		return store
	}
	writer, reader := open(), open()
	ctx := context.Background()
	collection := mustPath(t, "orderNodes", "addr-1")

	ids := make(chan string, 4)
	subscription, err := reader.SubscribeChildren(ctx, collection, func(id string, _ Value) { ids <- id })
	if err != nil {
		t.Fatalf("SubscribeChildren: %v", err)
	}
	defer subscription.Stop()

	id, err := writer.Append(ctx, collection, Value(`{"from":"alice"}`))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if got := testutil.RequireReceive(t, ids, waitTimeout, "cross-handle delivery"); got != id {
		t.Errorf("delivered id %s, want %s", got, id)
	}
}

func TestClosedStoreRejectsSubscriptions(t *testing.T) {
	memory := NewMemory(nil)
	memory.Close()
	if _, err := memory.Subscribe(context.Background(), "a", func(Value) {}); !errors.Is(err, ErrClosed) {
		t.Errorf("Memory.Subscribe after Close = %v, want ErrClosed", err)
	}

	store := openTestSQLite(t)
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := store.Subscribe(context.Background(), "a", func(Value) {}); !errors.Is(err, ErrClosed) {
		t.Errorf("SQLite.Subscribe after Close = %v, want ErrClosed", err)
	}
}
