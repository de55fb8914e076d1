// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package history

import (
	"context"
	"database/sql"
	stderrors "errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kortschak/ppgrec/capture"
	"github.com/kortschak/ppgrec/fanout"
	"github.com/kortschak/ppgrec/internal/errors"
	"github.com/kortschak/ppgrec/record"
)

var (
	start = time.Date(2024, time.March, 5, 7, 8, 9, 0, time.UTC)
	info  = capture.Info{
		Mode:    record.HRValue,
		Path:    "/logs/20240305070809_hr_log.txt",
		Start:   start,
		Stop:    start.Add(time.Minute),
		Records: 120,
		Stats: map[string]fanout.Stats{
			"file":     {Delivered: 120},
			"wireless": {Delivered: 100, Skipped: 18, Failed: 2},
		},
	}
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *Repository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock, NewRepository(db, zerolog.Nop())
}

func TestInitSchema(t *testing.T) {
	db, mock, _ := setupMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_versions`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT OR IGNORE INTO schema_versions`).WithArgs(SchemaVersion).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, initSchema(context.Background(), db, zerolog.Nop()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInitSchemaFailure(t *testing.T) {
	db, mock, _ := setupMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_versions`).WillReturnError(stderrors.New("disk full"))
	mock.ExpectRollback()

	err := initSchema(context.Background(), db, zerolog.Nop())
	assert.True(t, errors.HasCode(err, errors.ErrStorageInit))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordMock(t *testing.T) {
	_, mock, repo := setupMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO sessions`).
		WithArgs(sqlmock.AnyArg(), "hr", info.Path, info.Start.UnixMicro(), info.Stop.UnixMicro(), 120).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO deliveries`).
		WithArgs(sqlmock.AnyArg(), "file", 120, 0, 0).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO deliveries`).
		WithArgs(sqlmock.AnyArg(), "wireless", 100, 18, 2).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	id, err := repo.Record(context.Background(), info)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordMockFailure(t *testing.T) {
	_, mock, repo := setupMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO sessions`).WillReturnError(stderrors.New("locked"))
	mock.ExpectRollback()

	err := repo.RecordSession(context.Background(), info)
	assert.True(t, errors.HasCode(err, errors.ErrStorageAccess))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositorySQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "history.db")
	repo, err := Open(ctx, path, zerolog.Nop())
	require.NoError(t, err)

	first, err := repo.Record(ctx, info)
	require.NoError(t, err)
	later := info
	later.Mode = record.PPGSignal
	later.Path = "/logs/20240305071009_ppg_log.txt"
	later.Start = start.Add(2 * time.Minute)
	later.Stop = start.Add(3 * time.Minute)
	later.Stats = map[string]fanout.Stats{"file": {Delivered: 3000}}
	second, err := repo.Record(ctx, later)
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	repo, err = Open(ctx, path, zerolog.Nop())
	require.NoError(t, err)
	defer repo.Close()

	got, err := repo.Sessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, second, got[0].ID)
	assert.Equal(t, record.PPGSignal, got[0].Mode)
	assert.Equal(t, later.Path, got[0].Path)
	assert.True(t, later.Start.Equal(got[0].Start))
	assert.Equal(t, later.Stats, got[0].Stats)

	assert.Equal(t, first, got[1].ID)
	assert.Equal(t, 120, got[1].Records)
	assert.Equal(t, info.Stats, got[1].Stats)

	got, err = repo.Sessions(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestOpenEmptyPath(t *testing.T) {
	_, err := Open(context.Background(), "", zerolog.Nop())
	assert.True(t, errors.HasCode(err, errors.ErrStorageInit))
}
