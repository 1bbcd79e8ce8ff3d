package sqlite

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) (*DB, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "shopbot.db")
	db, err := NewDB(dbPath)
	require.NoError(t, err, "NewDB should succeed")
	t.Cleanup(func() { _ = db.Close() })
	return db, dbPath
}

func TestNewDB_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state", "nested", "shopbot.db")

	db, err := NewDB(dbPath)
	require.NoError(t, err)
	defer db.Close()

	info, err := os.Stat(filepath.Dir(dbPath))
	require.NoError(t, err)
	require.True(t, info.IsDir())
	if runtime.GOOS != "windows" {
		require.Equal(t, os.FileMode(0o700), info.Mode().Perm())
	}
	require.Equal(t, dbPath, db.Path())
}

func TestNewDB_RunsMigrations(t *testing.T) {
	db, _ := openTestDB(t)

	var name string
	err := db.conn.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name='sessions'",
	).Scan(&name)
	require.NoError(t, err, "sessions table should exist after migrations")

	err = db.conn.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='index' AND name='idx_sessions_updated_at'",
	).Scan(&name)
	require.NoError(t, err, "updated_at index should exist after migrations")
}

func TestNewDB_Pragmas(t *testing.T) {
	db, _ := openTestDB(t)

	var journalMode string
	require.NoError(t, db.conn.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	require.Equal(t, "wal", journalMode)

	var foreignKeys int
	require.NoError(t, db.conn.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
	require.Equal(t, 1, foreignKeys)

	var busyTimeout int
	require.NoError(t, db.conn.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	require.Equal(t, 5000, busyTimeout)
}

func TestNewDB_ReopenKeepsDataAndBacksUp(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "shopbot.db")

	db1, err := NewDB(dbPath)
	require.NoError(t, err)
	_, err = db1.conn.Exec(
		"INSERT INTO sessions (user_id, state, updated_at) VALUES (?, ?, ?)",
		"42", "CART_MENU", 1000,
	)
	require.NoError(t, err)
	require.NoError(t, db1.Close())

	db2, err := NewDB(dbPath)
	require.NoError(t, err, "reopening an up-to-date database should succeed")
	defer db2.Close()

	var state string
	require.NoError(t, db2.conn.QueryRow("SELECT state FROM sessions WHERE user_id = '42'").Scan(&state))
	require.Equal(t, "CART_MENU", state)

	info, err := os.Stat(dbPath + ".bak")
	require.NoError(t, err, "backup should exist after reopening")
	require.Greater(t, info.Size(), int64(0))
}

func TestDB_Close(t *testing.T) {
	db, err := NewDB(filepath.Join(t.TempDir(), "shopbot.db"))
	require.NoError(t, err)

	require.NoError(t, db.Close())
	require.Error(t, db.conn.Ping(), "Ping should fail after Close")
}

func TestDB_Connection(t *testing.T) {
	db, _ := openTestDB(t)
	require.NotNil(t, db.Connection())
	require.NoError(t, db.Connection().Ping())
}
