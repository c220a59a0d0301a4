// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package graph

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/shockpay/shockpay/lib/clock"
	"github.com/shockpay/shockpay/lib/sqlitepool"
)

const defaultPollInterval = 200 * time.Millisecond

// Every write takes the next value of seq, so "seq > N" selects exactly
// the writes a poller has not seen yet.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS nodes (
	path   TEXT PRIMARY KEY,
	parent TEXT NOT NULL,
	name   TEXT NOT NULL,
	value  BLOB NOT NULL,
	seq    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS nodes_seq ON nodes (seq);
CREATE INDEX IF NOT EXISTS nodes_parent_seq ON nodes (parent, seq);
`

// SQLiteConfig holds the parameters for OpenSQLite.
type SQLiteConfig struct {
	// Path is the database file. Required.
	Path string

	// PollInterval is how often subscriptions look for new writes.
	// Default: 200ms.
	PollInterval time.Duration

	// Clock drives the poll tickers. Default: clock.Real().
	Clock clock.Clock

	// Logger defaults to a discarding logger.
	Logger *slog.Logger
}

// SQLite is a Store backed by a WAL-mode database file. Several
// processes may open the same file; each sees the others' writes on its
// next poll.
type SQLite struct {
	pool     *sqlitepool.Pool
	clock    clock.Clock
	logger   *slog.Logger
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	subs   map[*sqliteSubscription]struct{}
	closed bool
}

var (
	_ Store             = (*SQLite)(nil)
	_ ConditionalPutter = (*SQLite)(nil)
	_ Dumper            = (*SQLite)(nil)
)

// OpenSQLite opens (creating if needed) the store at cfg.Path.
func OpenSQLite(cfg SQLiteConfig) (*SQLite, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   cfg.Path,
		Logger: logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, sqliteSchema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("graph: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &SQLite{
		pool:     pool,
		clock:    clk,
		logger:   logger,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
		subs:     make(map[*sqliteSubscription]struct{}),
	}, nil
}

func (s *SQLite) Put(ctx context.Context, path Path, value Value) error {
	_, err := s.write(ctx, path, value, false)
	return err
}

func (s *SQLite) PutIfAbsent(ctx context.Context, path Path, value Value) (bool, error) {
	return s.write(ctx, path, value, true)
}

func (s *SQLite) Append(ctx context.Context, path Path, value Value) (string, error) {
	id := NewID()
	if err := s.Put(ctx, path.Child(id), value); err != nil {
		return "", err
	}
	return id, nil
}

func (s *SQLite) Read(ctx context.Context, path Path) (Value, bool, error) {
	if err := path.Validate(); err != nil {
		return nil, false, err
	}
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("graph: read %s: %w", path, err)
	}
	defer s.pool.Put(conn)

	value, found, err := readNode(conn, path)
	if err != nil {
		return nil, false, fmt.Errorf("graph: read %s: %w", path, err)
	}
	return value, found, nil
}

func (s *SQLite) Subscribe(ctx context.Context, path Path, handler func(Value)) (Subscription, error) {
	if err := path.Validate(); err != nil {
		return nil, err
	}
	return s.watch(path, selectValueSince, func(d delivery) { handler(d.value) })
}

func (s *SQLite) SubscribeChildren(ctx context.Context, path Path, handler func(string, Value)) (Subscription, error) {
	if err := path.Validate(); err != nil {
		return nil, err
	}
	return s.watch(path, selectChildrenSince, func(d delivery) { handler(d.id, d.value) })
}

// Dump returns every entry, sorted by path.
func (s *SQLite) Dump(ctx context.Context) ([]Entry, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("graph: dump: %w", err)
	}
	defer s.pool.Put(conn)

	var entries []Entry
	err = sqlitex.Execute(conn, "SELECT path, value FROM nodes ORDER BY path", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			entries = append(entries, Entry{
				Path:  Path(stmt.ColumnText(0)),
				Value: columnValue(stmt, 1),
			})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("graph: dump: %w", err)
	}
	return entries, nil
}

// Close stops every subscription, waits for their pollers, and closes
// the database.
func (s *SQLite) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for sub := range s.subs {
		sub.stop()
	}
	s.subs = nil
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	return s.pool.Close()
}

func (s *SQLite) write(ctx context.Context, path Path, value Value, onlyIfAbsent bool) (bool, error) {
	if err := checkWrite(ctx, path, value); err != nil {
		return false, err
	}
	var written bool
	err := s.pool.Immediate(ctx, func(conn *sqlite.Conn) error {
		var err error
		written, err = writeNode(conn, path, value, onlyIfAbsent)
		return err
	})
	if err != nil {
		return false, writeError(path, err)
	}
	if written {
		s.logger.Debug("graph put", "path", path)
	}
	return written, nil
}

// writeNode merges value into path within the caller's transaction.
func writeNode(conn *sqlite.Conn, path Path, value Value, onlyIfAbsent bool) (bool, error) {
	existing, exists, err := readNode(conn, path)
	if err != nil {
		return false, err
	}
	if exists && onlyIfAbsent {
		return false, nil
	}
	merged, err := Merge(existing, value)
	if err != nil {
		return false, err
	}

	parent, name := path.Parent()
	err = sqlitex.Execute(conn, `
		INSERT INTO nodes (path, parent, name, value, seq)
		VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM nodes))
		ON CONFLICT (path) DO UPDATE SET value = excluded.value, seq = excluded.seq`,
		&sqlitex.ExecOptions{
			Args: []any{string(path), string(parent), name, []byte(merged)},
		})
	if err != nil {
		return false, fmt.Errorf("upsert: %w", err)
	}
	return true, nil
}

func readNode(conn *sqlite.Conn, path Path) (Value, bool, error) {
	var value Value
	found := false
	err := sqlitex.Execute(conn, "SELECT value FROM nodes WHERE path = ?", &sqlitex.ExecOptions{
		Args: []any{string(path)},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			value = columnValue(stmt, 0)
			found = true
			return nil
		},
	})
	return value, found, err
}

func columnValue(stmt *sqlite.Stmt, column int) Value {
	value := make(Value, stmt.ColumnLen(column))
	stmt.ColumnBytes(column, value)
	return value
}

// sinceQuery returns the rows written to path after seq, oldest first.
type sinceQuery func(conn *sqlite.Conn, path Path, after int64) (rows []sequencedDelivery, err error)

type sequencedDelivery struct {
	delivery
	seq int64
}

func selectValueSince(conn *sqlite.Conn, path Path, after int64) ([]sequencedDelivery, error) {
	var rows []sequencedDelivery
	err := sqlitex.Execute(conn, "SELECT seq, value FROM nodes WHERE path = ? AND seq > ?", &sqlitex.ExecOptions{
		Args: []any{string(path), after},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			rows = append(rows, sequencedDelivery{
				seq:      stmt.ColumnInt64(0),
				delivery: delivery{value: columnValue(stmt, 1)},
			})
			return nil
		},
	})
	return rows, err
}

func selectChildrenSince(conn *sqlite.Conn, path Path, after int64) ([]sequencedDelivery, error) {
	var rows []sequencedDelivery
	err := sqlitex.Execute(conn, "SELECT seq, name, value FROM nodes WHERE parent = ? AND seq > ? ORDER BY seq", &sqlitex.ExecOptions{
		Args: []any{string(path), after},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			rows = append(rows, sequencedDelivery{
				seq:      stmt.ColumnInt64(0),
				delivery: delivery{id: stmt.ColumnText(1), value: columnValue(stmt, 2)},
			})
			return nil
		},
	})
	return rows, err
}

type sqliteSubscription struct {
	store  *SQLite
	ticker *clock.Ticker
	done   chan struct{}
	once   sync.Once
}

func (sub *sqliteSubscription) stop() {
	sub.once.Do(func() { close(sub.done) })
}

// Stop ends the subscription. The poller exits after its current
// batch.
func (sub *sqliteSubscription) Stop() {
	sub.stop()
	sub.store.mu.Lock()
	delete(sub.store.subs, sub)
	sub.store.mu.Unlock()
}

func (s *SQLite) watch(path Path, query sinceQuery, handler func(delivery)) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	sub := &sqliteSubscription{
		store:  s,
		ticker: s.clock.NewTicker(s.interval),
		done:   make(chan struct{}),
	}
	s.subs[sub] = struct{}{}
	s.wg.Add(1)
	go s.poll(sub, path, query, handler)
	return sub, nil
}

func (s *SQLite) poll(sub *sqliteSubscription, path Path, query sinceQuery, handler func(delivery)) {
	defer s.wg.Done()
	defer sub.ticker.Stop()

	var lastSeq int64
	for {
		rows, err := s.fetch(path, query, lastSeq)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.logger.Warn("graph subscription poll failed", "path", path, "error", err)
		}
		for _, row := range rows {
			select {
			case <-sub.done:
				return
			default:
			}
			lastSeq = row.seq
			handler(row.delivery)
		}

		select {
		case <-sub.done:
			return
		case <-sub.ticker.C:
		}
	}
}

// fetch runs query on a pooled connection and releases it before any
// handler runs, so handlers may write to the store.
func (s *SQLite) fetch(path Path, query sinceQuery, after int64) ([]sequencedDelivery, error) {
	conn, err := s.pool.Take(s.ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)
	return query(conn, path, after)
}
