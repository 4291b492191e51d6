// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/klauspost/compress/zstd"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/nexus/lib/clock"
	"github.com/bureau-foundation/nexus/lib/codec"
	"github.com/bureau-foundation/nexus/lib/sqlitepool"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	time      INTEGER NOT NULL,
	kind      TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	resource  TEXT NOT NULL,
	action    TEXT NOT NULL,
	allowed   INTEGER NOT NULL,
	source    TEXT NOT NULL,
	reason    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS events_time ON events (time);
CREATE INDEX IF NOT EXISTS events_entity ON events (entity_id, time);
`

const selectColumns = `SELECT time, kind, entity_id, resource, action, allowed, source, reason FROM events`

// Config configures Open.
type Config struct {
	// Path is the SQLite database file.
	Path string

	// PoolSize defaults to 4.
	PoolSize int

	// Clock stamps events recorded with a zero Time. Defaults to the
	// wall clock.
	Clock clock.Clock

	Logger *slog.Logger
}

// Log is a Recorder backed by SQLite. Safe for concurrent use.
type Log struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger
}

// Open opens or creates the audit database.
func Open(config Config) (*Log, error) {
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.PoolSize <= 0 {
		config.PoolSize = 4
	}
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     config.Path,
		PoolSize: config.PoolSize,
		Schema:   schema,
		Logger:   config.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("audit: %w", err)
	}
	return &Log{pool: pool, clock: config.Clock, logger: config.Logger}, nil
}

// Close closes the database.
func (l *Log) Close() error {
	return l.pool.Close()
}

// Record appends event.
func (l *Log) Record(ctx context.Context, event Event) error {
	if event.Time.IsZero() {
		event.Time = l.clock.Now()
	}
	err := l.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`INSERT INTO events (time, kind, entity_id, resource, action, allowed, source, reason)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{
				event.Time.UnixNano(),
				string(event.Kind),
				event.EntityID,
				event.Resource,
				event.Action,
				flag(event.Allowed),
				event.Source,
				event.Reason,
			}})
	})
	if err != nil {
		l.logger.Error("audit record failed", "kind", event.Kind, "entity_id", event.EntityID, "error", err)
		return fmt.Errorf("audit: record: %w", err)
	}
	return nil
}

// Filter narrows Recent. Zero fields match everything.
type Filter struct {
	EntityID string
	Kind     Kind

	// DeniedOnly keeps only events with Allowed false.
	DeniedOnly bool
}

// Recent returns up to limit events matching filter, newest first.
func (l *Log) Recent(ctx context.Context, limit int, filter Filter) ([]Event, error) {
	if limit <= 0 {
		return nil, nil
	}
	query := selectColumns + ` WHERE (?1 = '' OR entity_id = ?1) AND (?2 = '' OR kind = ?2) AND (?3 = 0 OR allowed = 0)
		ORDER BY time DESC, id DESC LIMIT ?4`
	var events []Event
	err := l.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			Args: []any{filter.EntityID, string(filter.Kind), flag(filter.DeniedOnly), limit},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				events = append(events, scanEvent(stmt))
				return nil
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("audit: recent: %w", err)
	}
	return events, nil
}

// Count returns the number of stored events.
func (l *Log) Count(ctx context.Context) (int64, error) {
	var count int64
	err := l.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `SELECT count(*) FROM events`, &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				count = stmt.ColumnInt64(0)
				return nil
			},
		})
	})
	if err != nil {
		return 0, fmt.Errorf("audit: count: %w", err)
	}
	return count, nil
}

// Prune deletes events recorded before cutoff and returns how many
// were removed.
func (l *Log) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	var removed int
	err := l.pool.WithTransaction(ctx, func(conn *sqlite.Conn) error {
		if err := sqlitex.Execute(conn, `DELETE FROM events WHERE time < ?`, &sqlitex.ExecOptions{
			Args: []any{cutoff.UnixNano()},
		}); err != nil {
			return err
		}
		removed = conn.Changes()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("audit: prune: %w", err)
	}
	if removed > 0 {
		l.logger.Info("audit events pruned", "removed", removed, "cutoff", cutoff)
	}
	return removed, nil
}

// Export writes every event, oldest first, as a zstd-compressed
// sequence of CBOR items. Returns the number of events written.
func (l *Log) Export(ctx context.Context, w io.Writer) (int, error) {
	compressor, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return 0, fmt.Errorf("audit: export: %w", err)
	}
	encoder := codec.NewEncoder(compressor)

	written := 0
	err = l.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, selectColumns+` ORDER BY time, id`, &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := encoder.Encode(scanEvent(stmt)); err != nil {
					return err
				}
				written++
				return nil
			},
		})
	})
	if err != nil {
		compressor.Close()
		return written, fmt.Errorf("audit: export: %w", err)
	}
	if err := compressor.Close(); err != nil {
		return written, fmt.Errorf("audit: export: %w", err)
	}
	return written, nil
}

// ReadExport decodes a stream written by Export.
func ReadExport(r io.Reader) ([]Event, error) {
	decompressor, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("audit: read export: %w", err)
	}
	defer decompressor.Close()

	decoder := codec.NewDecoder(decompressor)
	var events []Event
	for {
		var event Event
		err := decoder.Decode(&event)
		if errors.Is(err, io.EOF) {
			return events, nil
		}
		if err != nil {
			return events, fmt.Errorf("audit: read export: %w", err)
		}
		events = append(events, event)
	}
}

func flag(value bool) int {
	if value {
		return 1
	}
	return 0
}

func scanEvent(stmt *sqlite.Stmt) Event {
	return Event{
		Time:     time.Unix(0, stmt.ColumnInt64(0)).UTC(),
		Kind:     Kind(stmt.ColumnText(1)),
		EntityID: stmt.ColumnText(2),
		Resource: stmt.ColumnText(3),
		Action:   stmt.ColumnText(4),
		Allowed:  stmt.ColumnInt64(5) != 0,
		Source:   stmt.ColumnText(6),
		Reason:   stmt.ColumnText(7),
	}
}
