// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/nexus/lib/sqlitepool"
)

const counterSchema = `CREATE TABLE IF NOT EXISTS counters (
	name  TEXT PRIMARY KEY,
	value INTEGER NOT NULL
);`

func openTestPool(t *testing.T, onConnect func(*sqlite.Conn) error) *sqlitepool.Pool {
	t.Helper()
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:      filepath.Join(t.TempDir(), "test.db"),
		PoolSize:  4,
		Schema:    counterSchema,
		OnConnect: onConnect,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := pool.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return pool
}

func readCounter(t *testing.T, pool *sqlitepool.Pool, name string) int64 {
	t.Helper()
	var value int64
	err := pool.With(context.Background(), func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "SELECT value FROM counters WHERE name = ?", &sqlitex.ExecOptions{
			Args: []any{name},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				value = stmt.ColumnInt64(0)
				return nil
			},
		})
	})
	if err != nil {
		t.Fatalf("read counter: %v", err)
	}
	return value
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := sqlitepool.Open(sqlitepool.Config{}); !errors.Is(err, sqlitepool.ErrNoPath) {
		t.Errorf("Open error = %v, want ErrNoPath", err)
	}
}

func TestPragmasAndSchema(t *testing.T) {
	var called bool
	pool := openTestPool(t, func(conn *sqlite.Conn) error {
		called = true
		return nil
	})

	var journalMode string
	err := pool.With(context.Background(), func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "PRAGMA journal_mode", &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				journalMode = stmt.ColumnText(0)
				return nil
			},
		})
	})
	if err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("journal_mode = %q, want wal", journalMode)
	}
	if !called {
		t.Error("OnConnect was not called")
	}
	if got := readCounter(t, pool, "missing"); got != 0 {
		t.Errorf("empty table read = %d", got)
	}
}

func TestOnConnectError(t *testing.T) {
	pool := openTestPool(t, func(conn *sqlite.Conn) error {
		return errors.New("refused")
	})
	if _, err := pool.Take(context.Background()); err == nil {
		t.Fatal("Take succeeded despite OnConnect error")
	}
}

func TestWithTransactionRollsBack(t *testing.T) {
	pool := openTestPool(t, nil)
	ctx := context.Background()
	insert := func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "INSERT INTO counters (name, value) VALUES ('a', 1)", nil)
	}

	failure := errors.New("abort")
	err := pool.WithTransaction(ctx, func(conn *sqlite.Conn) error {
		if err := insert(conn); err != nil {
			return err
		}
		return failure
	})
	if !errors.Is(err, failure) {
		t.Fatalf("WithTransaction error = %v, want abort", err)
	}
	if got := readCounter(t, pool, "a"); got != 0 {
		t.Errorf("rolled-back insert visible: %d", got)
	}

	if err := pool.WithTransaction(ctx, insert); err != nil {
		t.Fatalf("WithTransaction: %v", err)
	}
	if got := readCounter(t, pool, "a"); got != 1 {
		t.Errorf("committed value = %d, want 1", got)
	}
}

func TestConcurrentWriters(t *testing.T) {
	pool := openTestPool(t, nil)
	ctx := context.Background()
	if err := pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "INSERT INTO counters (name, value) VALUES ('hits', 0)", nil)
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	const writers, increments = 8, 25
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range increments {
				err := pool.WithTransaction(ctx, func(conn *sqlite.Conn) error {
					return sqlitex.Execute(conn, "UPDATE counters SET value = value + 1 WHERE name = 'hits'", nil)
				})
				if err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("writer: %v", err)
	}
	if got := readCounter(t, pool, "hits"); got != writers*increments {
		t.Errorf("hits = %d, want %d", got, writers*increments)
	}
}

func TestTakeCancelled(t *testing.T) {
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     filepath.Join(t.TempDir(), "single.db"),
		PoolSize: 1,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer pool.Close()

	held, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := pool.Take(ctx); err == nil {
		t.Error("Take on exhausted pool with cancelled context succeeded")
	}
	pool.Put(held)
}
