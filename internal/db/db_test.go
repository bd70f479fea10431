package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testMigrations = []string{
	`CREATE TABLE headers (id TEXT PRIMARY KEY, created_at INTEGER NOT NULL);`,
	`ALTER TABLE headers ADD COLUMN file_count INTEGER NOT NULL DEFAULT 0;`,
}

func TestOpen_Memory(t *testing.T) {
	conn, err := Open(Memory, WithMigrations(testMigrations...))
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Exec("INSERT INTO headers (id, created_at, file_count) VALUES ('a', 1, 2)")
	require.NoError(t, err)

	var n int
	require.NoError(t, conn.Get(&n, "SELECT COUNT(*) FROM headers"))
	assert.Equal(t, 1, n)

	v, err := SchemaVersion(conn)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestOpen_FileCreatesParent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "catalog.db")

	conn, err := Open(dbPath)
	require.NoError(t, err)
	defer conn.Close()

	assert.DirExists(t, filepath.Dir(dbPath))
	assert.FileExists(t, dbPath)

	v, err := SchemaVersion(conn)
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestOpen_MigratesIncrementally(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "catalog.db")

	conn, err := Open(dbPath, WithMaxOpenConns(1), WithMigrations(testMigrations[0]))
	require.NoError(t, err)
	_, err = conn.Exec("INSERT INTO headers (id, created_at) VALUES ('a', 1)")
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	conn, err = Open(dbPath, WithMaxOpenConns(1), WithMigrations(testMigrations...))
	require.NoError(t, err)
	defer conn.Close()

	var fileCount int
	require.NoError(t, conn.Get(&fileCount, "SELECT file_count FROM headers WHERE id = 'a'"))
	assert.Zero(t, fileCount)

	v, err := SchemaVersion(conn)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestOpen_SchemaTooNew(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "catalog.db")

	conn, err := Open(dbPath, WithMigrations(testMigrations...))
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	_, err = Open(dbPath, WithMigrations(testMigrations[0]))
	assert.ErrorIs(t, err, ErrSchemaTooNew)
}

func TestOpen_FailedMigrationKeepsVersion(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "catalog.db")

	_, err := Open(dbPath, WithMigrations(testMigrations[0], "NOT SQL"))
	require.Error(t, err)

	conn, err := Open(dbPath)
	require.NoError(t, err)
	defer conn.Close()
	v, err := SchemaVersion(conn)
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestOpen_CustomPragmas(t *testing.T) {
	conn, err := Open(Memory, WithPragmas("PRAGMA foreign_keys=ON;"))
	require.NoError(t, err)
	defer conn.Close()

	var fk int
	require.NoError(t, conn.Get(&fk, "PRAGMA foreign_keys"))
	assert.Equal(t, 1, fk)
}
