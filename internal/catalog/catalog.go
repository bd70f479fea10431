// Package catalog caches snapshot headers in sqlite so history can be drawn
// without decrypting every index. Headers are immutable, so entries are
// inserted once and never updated.
package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/syncvault/internal/db"
	"github.com/openmined/syncvault/internal/snapshot"
)

// migrations is append-only; see db.WithMigrations.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS snapshots (
    id TEXT PRIMARY KEY,
    environment_id TEXT NOT NULL,
    parent_ids TEXT NOT NULL, -- comma separated
    created_at INTEGER NOT NULL, -- unix millis
    file_count INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_created_at ON snapshots(created_at);`,
}

type dbHeader struct {
	ID            string `db:"id"`
	EnvironmentID string `db:"environment_id"`
	ParentIDs     string `db:"parent_ids"`
	CreatedAt     int64  `db:"created_at"`
	FileCount     int    `db:"file_count"`
}

func (h dbHeader) header() snapshot.Header {
	parents := []string{}
	if h.ParentIDs != "" {
		parents = strings.Split(h.ParentIDs, ",")
	}
	return snapshot.Header{
		ID:            h.ID,
		EnvironmentID: h.EnvironmentID,
		ParentIDs:     parents,
		CreatedAt:     h.CreatedAt,
		FileCount:     h.FileCount,
	}
}

type Catalog struct {
	db     *sqlx.DB
	dbPath string
}

// Open opens (or creates) the catalog at dbPath. Use ":memory:" in tests.
// The catalog only caches what the encrypted store already holds, so a
// database written by a newer build is discarded and started fresh.
func Open(dbPath string) (*Catalog, error) {
	conn, err := open(dbPath)
	if errors.Is(err, db.ErrSchemaTooNew) && dbPath != db.Memory {
		slog.Warn("catalog reset", "path", dbPath, "error", err)
		for _, p := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
			if rmErr := os.Remove(p); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				return nil, fmt.Errorf("reset catalog: %w", rmErr)
			}
		}
		conn, err = open(dbPath)
	}
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	return &Catalog{db: conn, dbPath: dbPath}, nil
}

func open(dbPath string) (*sqlx.DB, error) {
	return db.Open(dbPath, db.WithMaxOpenConns(1), db.WithMigrations(migrations...))
}

func (c *Catalog) Close() error {
	if err := c.db.Close(); err != nil {
		slog.Error("close catalog", "path", c.dbPath, "error", err)
		return err
	}
	return nil
}

// Put records h. Existing ids are left untouched.
func (c *Catalog) Put(h snapshot.Header) error {
	row := dbHeader{
		ID:            h.ID,
		EnvironmentID: h.EnvironmentID,
		ParentIDs:     strings.Join(h.ParentIDs, ","),
		CreatedAt:     h.CreatedAt,
		FileCount:     h.FileCount,
	}
	query := `INSERT OR IGNORE INTO snapshots (id, environment_id, parent_ids, created_at, file_count)
	          VALUES (:id, :environment_id, :parent_ids, :created_at, :file_count)`
	if _, err := c.db.NamedExec(query, row); err != nil {
		return fmt.Errorf("catalog put %s: %w", h.ID, err)
	}
	return nil
}

// Get returns the header for id; ok is false when it is not cached.
func (c *Catalog) Get(id string) (snapshot.Header, bool, error) {
	var row dbHeader
	err := c.db.Get(&row, "SELECT id, environment_id, parent_ids, created_at, file_count FROM snapshots WHERE id = ?", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return snapshot.Header{}, false, nil
		}
		return snapshot.Header{}, false, fmt.Errorf("catalog get %s: %w", id, err)
	}
	return row.header(), true, nil
}

// All returns every cached header ordered by creation time, then id.
func (c *Catalog) All() ([]snapshot.Header, error) {
	var rows []dbHeader
	err := c.db.Select(&rows, "SELECT id, environment_id, parent_ids, created_at, file_count FROM snapshots ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("catalog list: %w", err)
	}
	out := make([]snapshot.Header, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.header())
	}
	return out, nil
}

func (c *Catalog) Count() (int, error) {
	var n int
	if err := c.db.Get(&n, "SELECT COUNT(*) FROM snapshots"); err != nil {
		return 0, fmt.Errorf("catalog count: %w", err)
	}
	return n, nil
}
