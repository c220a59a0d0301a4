// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens zombiezen SQLite pools with the pragmas every
// local database in this module expects: the audit ledger and the
// SQLite-backed graph replica.
//
// WAL journaling matters for the replica in particular: a responder
// daemon and a CLI invocation on the same host open one file, and
// readers must never block the writer. busy_timeout gives concurrent
// writers five seconds before SQLITE_BUSY surfaces.
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path:      path,
//	    Logger:    logger,
//	    OnConnect: func(conn *sqlite.Conn) error { return sqlitex.ExecuteScript(conn, schema, nil) },
//	})
//	err = pool.Immediate(ctx, func(conn *sqlite.Conn) error {
//	    return sqlitex.Execute(conn, "INSERT ...", &sqlitex.ExecOptions{Args: args})
//	})
package sqlitepool
