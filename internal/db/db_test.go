package db

import (
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"starter/internal/repo"
)

func TestOpenWithoutDriverIsMemory(t *testing.T) {
	gdb, err := Open("", "")
	require.NoError(t, err)
	assert.Nil(t, gdb)

	b, err := Backend("", "")
	require.NoError(t, err)
	assert.IsType(t, &repo.MemoryBackend{}, b)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("sqlite", "file::memory:")
	assert.ErrorContains(t, err, "unsupported database driver")
}

func newMockPostgres(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Discard,
	})
	require.NoError(t, err)
	return gdb, mock
}

func TestGlobalSettingsIndexOnPostgres(t *testing.T) {
	gdb, mock := newMockPostgres(t)
	mock.ExpectExec(`CREATE UNIQUE INDEX IF NOT EXISTS ux_settings_key_global ON settings \(key\) WHERE user_id IS NULL`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, ensureGlobalSettingsIndex(gdb))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGlobalSettingsIndexError(t *testing.T) {
	gdb, mock := newMockPostgres(t)
	mock.ExpectExec(`CREATE UNIQUE INDEX`).WillReturnError(errors.New("permission denied"))

	err := ensureGlobalSettingsIndex(gdb)
	assert.ErrorContains(t, err, "global settings index")
	require.NoError(t, mock.ExpectationsWereMet())
}
