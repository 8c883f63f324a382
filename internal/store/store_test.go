package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/MKhiriev/go-note-keeper/internal/config"
	"github.com/MKhiriev/go-note-keeper/internal/logger"
)

func testContext() context.Context {
	l := zerolog.Nop()
	return l.WithContext(context.Background())
}

// newTestSQLite opens a migrated database in a temp dir.
func newTestSQLite(t *testing.T) *DB {
	t.Helper()
	db, err := NewConnectSQLite(testContext(), config.DB{DSN: filepath.Join(t.TempDir(), "notes.db")}, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return newDBFromSQL(conn), mock
}

func newDBFromSQL(conn *sql.DB) *DB {
	return &DB{
		DB:     conn,
		logger: logger.Nop(),
	}
}
