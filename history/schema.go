// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package history

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog"

	"github.com/kortschak/ppgrec/internal/errors"
)

const (
	SchemaVersion = 1

	createTablesSQL = `
	CREATE TABLE IF NOT EXISTS schema_versions (
		version    INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS sessions (
		id         TEXT PRIMARY KEY,
		mode       TEXT NOT NULL,
		path       TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		stopped_at INTEGER NOT NULL,
		records    INTEGER NOT NULL CHECK (records >= 0)
	);
	CREATE TABLE IF NOT EXISTS deliveries (
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		sink       TEXT NOT NULL,
		delivered  INTEGER NOT NULL,
		skipped    INTEGER NOT NULL,
		failed     INTEGER NOT NULL,
		PRIMARY KEY (session_id, sink)
	);`

	insertVersionSQL = `
	INSERT OR IGNORE INTO schema_versions (version, applied_at)
	VALUES (?, datetime('now'))`

	insertSessionSQL = `
	INSERT INTO sessions (id, mode, path, started_at, stopped_at, records)
	VALUES (?, ?, ?, ?, ?, ?)`

	insertDeliverySQL = `
	INSERT INTO deliveries (session_id, sink, delivered, skipped, failed)
	VALUES (?, ?, ?, ?, ?)`

	selectSessionsSQL = `
	SELECT id, mode, path, started_at, stopped_at, records
	FROM sessions
	ORDER BY started_at DESC
	LIMIT ?`

	selectDeliveriesSQL = `
	SELECT sink, delivered, skipped, failed
	FROM deliveries
	WHERE session_id = ?`
)

// initSchema creates the database tables if they do not exist.
func initSchema(ctx context.Context, db *sql.DB, log zerolog.Logger) error {
	errFactory := errors.NewFactory()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errFactory.Wrap(errors.ErrStorageInit, err)
	}
	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				log.Debug().Err(err).Msg("failed to roll back schema transaction")
			}
		}
	}()

	if _, err := tx.ExecContext(ctx, createTablesSQL); err != nil {
		return errFactory.Wrap(errors.ErrStorageInit, err).WithData("create_tables")
	}
	if _, err := tx.ExecContext(ctx, insertVersionSQL, SchemaVersion); err != nil {
		return errFactory.Wrap(errors.ErrStorageInit, err).WithData("schema_version")
	}
	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(errors.ErrStorageInit, err).WithData("commit")
	}
	committed = true
	log.Debug().Int("schema_version", SchemaVersion).Msg("history schema ready")
	return nil
}
