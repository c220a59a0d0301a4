// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zeebo/blake3"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/shockpay/shockpay/lib/clock"
	"github.com/shockpay/shockpay/lib/codec"
	"github.com/shockpay/shockpay/lib/sqlitepool"
)

const hashSize = 32

const schema = `
CREATE TABLE IF NOT EXISTS records (
	seq         INTEGER PRIMARY KEY,
	recorded_at INTEGER NOT NULL,
	type        TEXT NOT NULL,
	to_pub      TEXT NOT NULL,
	body        BLOB NOT NULL,
	prev_hash   BLOB NOT NULL,
	hash        BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS records_to_pub ON records (to_pub, seq);
CREATE INDEX IF NOT EXISTS records_type ON records (type, seq);
`

// Entry is one completed outbound transfer.
type Entry struct {
	// Type is the order's target type, e.g. "spontaneousPayment".
	Type   string `cbor:"type" json:"type"`
	Amount int64  `cbor:"amount" json:"amount"`

	// FromLndPub is the paying node's public key, when known.
	FromLndPub string `cbor:"from_lnd_pub" json:"fromLndPub,omitempty"`
	FromPub    string `cbor:"from_pub" json:"fromPub"`
	ToPub      string `cbor:"to_pub" json:"toPub"`

	// CoordinateHash and CoordinateIndex locate the payment on the node
	// (payment hash and payment index).
	CoordinateHash  string `cbor:"coordinate_hash" json:"coordinateHash"`
	CoordinateIndex uint64 `cbor:"coordinate_index" json:"coordinateIndex"`

	Inbound  bool   `cbor:"inbound" json:"inbound"`
	Memo     string `cbor:"memo" json:"memo"`
	Metadata string `cbor:"metadata,omitempty" json:"metadata,omitempty"`
}

// Record is a stored Entry and its place in the chain.
type Record struct {
	Seq        int64     `json:"seq"`
	RecordedAt time.Time `json:"recordedAt"`
	Entry      Entry     `json:"entry"`
	PrevHash   []byte    `json:"prevHash"`
	Hash       []byte    `json:"hash"`
}

type body struct {
	RecordedAt int64 `cbor:"recorded_at"`
	Entry      Entry `cbor:"entry"`
}

// ChainError reports the first record whose hash does not match.
type ChainError struct {
	Seq    int64
	Reason string
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("ledger: chain broken at record %d: %s", e.Seq, e.Reason)
}

// Config holds the parameters for Open.
type Config struct {
	Path   string
	Clock  clock.Clock
	Logger *slog.Logger
}

// Ledger is safe for concurrent use.
type Ledger struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger
}

// Open opens (creating if needed) the ledger at cfg.Path.
func Open(cfg Config) (*Ledger, error) {
	if cfg.Path == "" {
		return nil, errors.New("ledger: Path is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: 2,
		Logger:   logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}
	return &Ledger{pool: pool, clock: clk, logger: logger}, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.pool.Close()
}

// Append records entry at the end of the chain.
func (l *Ledger) Append(ctx context.Context, entry Entry) (Record, error) {
	if entry.Type == "" {
		return Record{}, errors.New("ledger: entry type is required")
	}
	recordedAt := l.clock.Now().UTC()
	encoded, err := codec.Marshal(body{RecordedAt: recordedAt.UnixNano(), Entry: entry})
	if err != nil {
		return Record{}, fmt.Errorf("ledger: encoding entry: %w", err)
	}

	var record Record
	err = l.pool.Immediate(ctx, func(conn *sqlite.Conn) error {
		var err error
		record, err = appendRecord(conn, recordedAt, entry, encoded)
		return err
	})
	if err != nil {
		return Record{}, fmt.Errorf("ledger: append: %w", err)
	}
	l.logger.Info("ledger entry recorded",
		"seq", record.Seq,
		"type", entry.Type,
		"amount", entry.Amount,
		"to", entry.ToPub,
	)
	return record, nil
}

// appendRecord runs inside the caller's write transaction.
func appendRecord(conn *sqlite.Conn, recordedAt time.Time, entry Entry, encoded []byte) (Record, error) {
	prevHash := make([]byte, hashSize)
	var lastSeq int64
	err := sqlitex.Execute(conn, "SELECT seq, hash FROM records ORDER BY seq DESC LIMIT 1", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			lastSeq = stmt.ColumnInt64(0)
			stmt.ColumnBytes(1, prevHash)
			return nil
		},
	})
	if err != nil {
		return Record{}, err
	}

	hash := chainHash(prevHash, encoded)
	seq := lastSeq + 1
	err = sqlitex.Execute(conn,
		"INSERT INTO records (seq, recorded_at, type, to_pub, body, prev_hash, hash) VALUES (?, ?, ?, ?, ?, ?, ?)",
		&sqlitex.ExecOptions{
			Args: []any{seq, recordedAt.UnixNano(), entry.Type, entry.ToPub, encoded, prevHash, hash},
		})
	if err != nil {
		return Record{}, err
	}
	return Record{Seq: seq, RecordedAt: recordedAt, Entry: entry, PrevHash: prevHash, Hash: hash}, nil
}

func chainHash(prevHash, encoded []byte) []byte {
	hasher := blake3.New()
	hasher.Write(prevHash)
	hasher.Write(encoded)
	return hasher.Sum(nil)
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Type  string
	ToPub string
	// After returns only records with Seq greater than it.
	After int64
	// Limit caps the result; zero means no limit.
	Limit int
}

// List returns matching records oldest first.
func (l *Ledger) List(ctx context.Context, filter Filter) ([]Record, error) {
	query := "SELECT seq, body, prev_hash, hash FROM records WHERE seq > ?"
	args := []any{filter.After}
	if filter.Type != "" {
		query += " AND type = ?"
		args = append(args, filter.Type)
	}
	if filter.ToPub != "" {
		query += " AND to_pub = ?"
		args = append(args, filter.ToPub)
	}
	query += " ORDER BY seq"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	conn, err := l.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger: list: %w", err)
	}
	defer l.pool.Put(conn)

	var records []Record
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			record, _, err := scanRecord(stmt)
			if err != nil {
				return err
			}
			records = append(records, record)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: list: %w", err)
	}
	return records, nil
}

// Verify walks the whole chain and returns the number of records
// checked. A broken link is reported as *ChainError.
func (l *Ledger) Verify(ctx context.Context) (int, error) {
	conn, err := l.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("ledger: verify: %w", err)
	}
	defer l.pool.Put(conn)

	expectedPrev := make([]byte, hashSize)
	var expectedSeq int64 = 1
	checked := 0
	err = sqlitex.Execute(conn, "SELECT seq, body, prev_hash, hash FROM records ORDER BY seq", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			record, encoded, err := scanRecord(stmt)
			if err != nil {
				return &ChainError{Seq: stmt.ColumnInt64(0), Reason: err.Error()}
			}
			switch {
			case record.Seq != expectedSeq:
				return &ChainError{Seq: record.Seq, Reason: fmt.Sprintf("expected record %d", expectedSeq)}
			case !bytes.Equal(record.PrevHash, expectedPrev):
				return &ChainError{Seq: record.Seq, Reason: "previous hash does not match"}
			case !bytes.Equal(record.Hash, chainHash(record.PrevHash, encoded)):
				return &ChainError{Seq: record.Seq, Reason: "hash does not match contents"}
			}
			expectedPrev = record.Hash
			expectedSeq++
			checked++
			return nil
		},
	})
	if err != nil {
		var chainErr *ChainError
		if errors.As(err, &chainErr) {
			return checked, chainErr
		}
		return checked, fmt.Errorf("ledger: verify: %w", err)
	}
	return checked, nil
}

func scanRecord(stmt *sqlite.Stmt) (Record, []byte, error) {
	encoded := make([]byte, stmt.ColumnLen(1))
	stmt.ColumnBytes(1, encoded)
	prevHash := make([]byte, stmt.ColumnLen(2))
	stmt.ColumnBytes(2, prevHash)
	hash := make([]byte, stmt.ColumnLen(3))
	stmt.ColumnBytes(3, hash)

	var decoded body
	if err := codec.Unmarshal(encoded, &decoded); err != nil {
		return Record{}, nil, fmt.Errorf("decoding record %d: %w", stmt.ColumnInt64(0), err)
	}
	return Record{
		Seq:        stmt.ColumnInt64(0),
		RecordedAt: time.Unix(0, decoded.RecordedAt).UTC(),
		Entry:      decoded.Entry,
		PrevHash:   prevHash,
		Hash:       hash,
	}, encoded, nil
}
