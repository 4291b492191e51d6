// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens a fixed-size pool of SQLite connections
// (zombiezen.com/go/sqlite) with the pragmas Nexus stores expect.
//
// Each connection runs in WAL mode with synchronous=NORMAL, a five
// second busy timeout, and in-memory temp storage. A Config.Schema
// script runs once per connection before the caller's OnConnect hook,
// so every statement can assume its tables exist.
//
// Connections are not safe for concurrent use: take one, use it, put
// it back.
//
//	conn, err := pool.Take(ctx)
//	if err != nil {
//	    return err
//	}
//	defer pool.Put(conn)
//
// [Pool.With] wraps that pattern for single-statement callers and
// [Pool.WithTransaction] runs a function inside an IMMEDIATE
// transaction.
package sqlitepool
