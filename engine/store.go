// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/purple-matrix/lib/sqlitepool"
)

// StoreFile is the database file inside an account's data directory.
const StoreFile = "engine.db"

const schema = `
CREATE TABLE IF NOT EXISTS account (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	user_id    TEXT NOT NULL,
	device_id  TEXT NOT NULL,
	homeserver TEXT NOT NULL,
	bound_at   INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS sync_state (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	next_batch TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// binding is the account a store belongs to.
type binding struct {
	UserID     string
	DeviceID   string
	Homeserver string
}

// store is the per-account on-disk state.
type store struct {
	pool   *sqlitepool.Pool
	path   string
	logger *slog.Logger
}

// openStore opens or creates the store in dataDir. A connection is
// taken immediately so that a corrupt file fails here rather than on
// first use.
func openStore(ctx context.Context, dataDir string, logger *slog.Logger) (*store, error) {
	path := filepath.Join(dataDir, StoreFile)
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   path,
		Logger: logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("engine: opening store: %w", err)
	}
	conn, err := pool.Take(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("engine: opening store %s: %w", path, err)
	}
	pool.Put(conn)
	return &store{pool: pool, path: path, logger: logger}, nil
}

// binding returns the bound account, if any.
func (s *store) binding(ctx context.Context) (binding, bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return binding{}, false, fmt.Errorf("engine: reading binding: %w", err)
	}
	defer s.pool.Put(conn)

	var result binding
	found := false
	err = sqlitex.Execute(conn, "SELECT user_id, device_id, homeserver FROM account WHERE id = 1", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			result = binding{
				UserID:     stmt.ColumnText(0),
				DeviceID:   stmt.ColumnText(1),
				Homeserver: stmt.ColumnText(2),
			}
			found = true
			return nil
		},
	})
	if err != nil {
		return binding{}, false, fmt.Errorf("engine: reading binding: %w", err)
	}
	return result, found, nil
}

// bind records the account for this store, replacing the device ID of
// an existing binding for the same user.
func (s *store) bind(ctx context.Context, value binding, now time.Time) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("engine: writing binding: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		INSERT INTO account (id, user_id, device_id, homeserver, bound_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET device_id = excluded.device_id`,
		&sqlitex.ExecOptions{Args: []any{value.UserID, value.DeviceID, value.Homeserver, now.Unix()}})
	if err != nil {
		return fmt.Errorf("engine: writing binding: %w", err)
	}
	return nil
}

// nextBatch returns the saved sync token, or "" before the first sync.
func (s *store) nextBatch(ctx context.Context) (string, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return "", fmt.Errorf("engine: reading sync token: %w", err)
	}
	defer s.pool.Put(conn)

	var token string
	err = sqlitex.Execute(conn, "SELECT next_batch FROM sync_state WHERE id = 1", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			token = stmt.ColumnText(0)
			return nil
		},
	})
	if err != nil {
		return "", fmt.Errorf("engine: reading sync token: %w", err)
	}
	return token, nil
}

// saveNextBatch records the sync token to resume from.
func (s *store) saveNextBatch(ctx context.Context, token string, now time.Time) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("engine: writing sync token: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		INSERT INTO sync_state (id, next_batch, updated_at) VALUES (1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET next_batch = excluded.next_batch, updated_at = excluded.updated_at`,
		&sqlitex.ExecOptions{Args: []any{token, now.Unix()}})
	if err != nil {
		return fmt.Errorf("engine: writing sync token: %w", err)
	}
	return nil
}

// clearSync forgets the sync token, so the next session starts with an
// initial sync.
func (s *store) clearSync(ctx context.Context) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("engine: clearing sync token: %w", err)
	}
	defer s.pool.Put(conn)
	if err := sqlitex.ExecuteTransient(conn, "DELETE FROM sync_state", nil); err != nil {
		return fmt.Errorf("engine: clearing sync token: %w", err)
	}
	return nil
}

func (s *store) close() error {
	return s.pool.Close()
}
