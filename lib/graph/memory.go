// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package graph

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// Memory is an in-process Store with push delivery. The zero value is
// not usable; call NewMemory.
type Memory struct {
	logger *slog.Logger

	mu     sync.Mutex
	nodes  map[Path]Value
	order  map[Path][]string // child ids per collection, in first-write order
	values map[Path]map[*queue]struct{}
	kids   map[Path]map[*queue]struct{}
	closed bool
}

var (
	_ Store             = (*Memory)(nil)
	_ ConditionalPutter = (*Memory)(nil)
	_ Dumper            = (*Memory)(nil)
)

// NewMemory returns an empty store. A nil logger discards.
func NewMemory(logger *slog.Logger) *Memory {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Memory{
		logger: logger,
		nodes:  make(map[Path]Value),
		order:  make(map[Path][]string),
		values: make(map[Path]map[*queue]struct{}),
		kids:   make(map[Path]map[*queue]struct{}),
	}
}

func (m *Memory) Put(ctx context.Context, path Path, value Value) error {
	if err := checkWrite(ctx, path, value); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return writeError(path, ErrClosed)
	}
	return m.putLocked(path, value)
}

func (m *Memory) PutIfAbsent(ctx context.Context, path Path, value Value) (bool, error) {
	if err := checkWrite(ctx, path, value); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, writeError(path, ErrClosed)
	}
	if _, exists := m.nodes[path]; exists {
		return false, nil
	}
	if err := m.putLocked(path, value); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Memory) Append(ctx context.Context, path Path, value Value) (string, error) {
	id := NewID()
	if err := m.Put(ctx, path.Child(id), value); err != nil {
		return "", err
	}
	return id, nil
}

func (m *Memory) Read(ctx context.Context, path Path) (Value, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if err := path.Validate(); err != nil {
		return nil, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	value, found := m.nodes[path]
	return cloneValue(value), found, nil
}

func (m *Memory) Subscribe(ctx context.Context, path Path, handler func(Value)) (Subscription, error) {
	if err := path.Validate(); err != nil {
		return nil, err
	}
	q := newQueue(func(d delivery) { handler(d.value) })

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		q.close()
		return nil, ErrClosed
	}
	addQueue(m.values, path, q)
	if value, found := m.nodes[path]; found {
		q.enqueue(delivery{value: cloneValue(value)})
	}
	return m.subscription(m.values, path, q), nil
}

func (m *Memory) SubscribeChildren(ctx context.Context, path Path, handler func(string, Value)) (Subscription, error) {
	if err := path.Validate(); err != nil {
		return nil, err
	}
	q := newQueue(func(d delivery) { handler(d.id, d.value) })

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		q.close()
		return nil, ErrClosed
	}
	addQueue(m.kids, path, q)
	for _, id := range m.order[path] {
		q.enqueue(delivery{id: id, value: cloneValue(m.nodes[path.Child(id)])})
	}
	return m.subscription(m.kids, path, q), nil
}

// Dump returns every entry, sorted by path.
func (m *Memory) Dump(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := make([]Entry, 0, len(m.nodes))
	for path, value := range m.nodes {
		entries = append(entries, Entry{Path: path, Value: cloneValue(value)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// Close stops every subscription. Later writes fail with ErrClosed.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for _, registry := range []map[Path]map[*queue]struct{}{m.values, m.kids} {
		for path, queues := range registry {
			for q := range queues {
				q.close()
			}
			delete(registry, path)
		}
	}
	return nil
}

func (m *Memory) putLocked(path Path, value Value) error {
	existing, exists := m.nodes[path]
	merged, err := Merge(existing, value)
	if err != nil {
		return writeError(path, err)
	}
	m.nodes[path] = merged

	parent, id := path.Parent()
	if !exists && parent != "" {
		m.order[parent] = append(m.order[parent], id)
	}

	for q := range m.values[path] {
		q.enqueue(delivery{value: cloneValue(merged)})
	}
	if parent != "" {
		for q := range m.kids[parent] {
			q.enqueue(delivery{id: id, value: cloneValue(merged)})
		}
	}
	m.logger.Debug("graph put", "path", path, "new", !exists)
	return nil
}

func (m *Memory) subscription(registry map[Path]map[*queue]struct{}, path Path, q *queue) Subscription {
	return stopFunc(func() {
		q.close()
		m.mu.Lock()
		defer m.mu.Unlock()
		if queues, ok := registry[path]; ok {
			delete(queues, q)
			if len(queues) == 0 {
				delete(registry, path)
			}
		}
	})
}

func addQueue(registry map[Path]map[*queue]struct{}, path Path, q *queue) {
	queues, ok := registry[path]
	if !ok {
		queues = make(map[*queue]struct{})
		registry[path] = queues
	}
	queues[q] = struct{}{}
}

func checkWrite(ctx context.Context, path Path, value Value) error {
	if err := ctx.Err(); err != nil {
		return writeError(path, err)
	}
	if err := path.Validate(); err != nil {
		return writeError(path, err)
	}
	if err := validateValue(value); err != nil {
		return writeError(path, err)
	}
	return nil
}

// stopFunc adapts an idempotent function to Subscription.
type stopFunc func()

func (f stopFunc) Stop() { f() }
