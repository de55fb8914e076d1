// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package history records completed capture sessions in a SQLite
// database.
package history

import (
	"context"
	"database/sql"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/kortschak/ppgrec/capture"
	"github.com/kortschak/ppgrec/fanout"
	"github.com/kortschak/ppgrec/internal/errors"
	"github.com/kortschak/ppgrec/record"
)

const dirPerm = 0o700

// Session is a recorded capture session.
type Session struct {
	ID uuid.UUID
	capture.Info
}

// Repository stores session history.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
	mu  sync.Mutex
}

// Open opens or creates the history database at path.
func Open(ctx context.Context, path string, log zerolog.Logger) (*Repository, error) {
	errFactory := errors.NewFactory()
	if path == "" {
		return nil, errFactory.WithMessage(errors.ErrStorageInit, "empty history database path")
	}
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return nil, errFactory.Wrap(errors.ErrStorageInit, err).WithData(path)
	}
	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_foreign_keys=on")
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrStorageInit, err).WithData(path)
	}
	if err := initSchema(ctx, db, log); err != nil {
		db.Close()
		return nil, err
	}
	log.Info().Str("path", path).Int("schema_version", SchemaVersion).Msg("history repository initialized")
	return NewRepository(db, log), nil
}

// NewRepository returns a Repository using db. The schema must already
// exist.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{db: db, log: log}
}

// RecordSession stores info under a new session ID.
func (r *Repository) RecordSession(ctx context.Context, info capture.Info) error {
	_, err := r.Record(ctx, info)
	return err
}

// Record stores info and returns its session ID.
func (r *Repository) Record(ctx context.Context, info capture.Info) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	errFactory := errors.NewFactory()
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, errFactory.Wrap(errors.ErrStorageAccess, err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return uuid.Nil, errFactory.Wrap(errors.ErrStorageAccess, err)
	}
	_, err = tx.ExecContext(ctx, insertSessionSQL,
		id.String(),
		info.Mode.Label(),
		info.Path,
		info.Start.UnixMicro(),
		info.Stop.UnixMicro(),
		info.Records,
	)
	if err != nil {
		r.rollback(tx)
		return uuid.Nil, errFactory.Wrap(errors.ErrStorageAccess, err).WithData("insert_session")
	}
	for _, sink := range slices.Sorted(maps.Keys(info.Stats)) {
		st := info.Stats[sink]
		_, err = tx.ExecContext(ctx, insertDeliverySQL,
			id.String(), sink, int64(st.Delivered), int64(st.Skipped), int64(st.Failed),
		)
		if err != nil {
			r.rollback(tx)
			return uuid.Nil, errFactory.Wrap(errors.ErrStorageAccess, err).WithData("insert_delivery")
		}
	}
	if err := tx.Commit(); err != nil {
		return uuid.Nil, errFactory.Wrap(errors.ErrStorageAccess, err).WithData("commit")
	}
	r.log.Debug().Stringer("id", id).Str("path", info.Path).Int("records", info.Records).Msg("session recorded")
	return id, nil
}

func (r *Repository) rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil {
		r.log.Error().Err(err).Msg("failed to roll back transaction")
	}
}

// Sessions returns up to limit sessions, most recent first.
func (r *Repository) Sessions(ctx context.Context, limit int) ([]Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	errFactory := errors.NewFactory()
	rows, err := r.db.QueryContext(ctx, selectSessionsSQL, limit)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrStorageAccess, err)
	}
	var sessions []Session
	for rows.Next() {
		var (
			id, mode    string
			start, stop int64
			s           Session
		)
		err := rows.Scan(&id, &mode, &s.Path, &start, &stop, &s.Records)
		if err != nil {
			rows.Close()
			return nil, errFactory.Wrap(errors.ErrStorageAccess, err)
		}
		s.ID, err = uuid.Parse(id)
		if err != nil {
			rows.Close()
			return nil, errFactory.Wrap(errors.ErrStorageAccess, err).WithData(id)
		}
		s.Mode, err = record.ParseMode(mode)
		if err != nil {
			rows.Close()
			return nil, errFactory.Wrap(errors.ErrStorageAccess, err).WithData(id)
		}
		s.Start = time.UnixMicro(start)
		s.Stop = time.UnixMicro(stop)
		sessions = append(sessions, s)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrStorageAccess, err)
	}

	for i := range sessions {
		sessions[i].Stats, err = r.deliveries(ctx, sessions[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return sessions, nil
}

func (r *Repository) deliveries(ctx context.Context, id uuid.UUID) (map[string]fanout.Stats, error) {
	rows, err := r.db.QueryContext(ctx, selectDeliveriesSQL, id.String())
	if err != nil {
		return nil, errors.Wrap(errors.ErrStorageAccess, err)
	}
	defer rows.Close()
	stats := make(map[string]fanout.Stats)
	for rows.Next() {
		var (
			sink                       string
			delivered, skipped, failed int64
		)
		if err := rows.Scan(&sink, &delivered, &skipped, &failed); err != nil {
			return nil, errors.Wrap(errors.ErrStorageAccess, err)
		}
		stats[sink] = fanout.Stats{
			Delivered: uint64(delivered),
			Skipped:   uint64(skipped),
			Failed:    uint64(failed),
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrStorageAccess, err)
	}
	return stats, nil
}

// Close closes the database.
func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.db.Close(); err != nil {
		return errors.Wrap(errors.ErrStorageClose, err)
	}
	r.log.Info().Msg("history repository closed")
	return nil
}
