// Package db opens the sqlite databases syncvault keeps in the metadata
// directory and versions their schema. The driver is pure Go by default;
// build with the sqlite3_cgo tag to use the cgo driver instead.
package db

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/syncvault/internal/utils"
)

const Memory = ":memory:"

// ErrSchemaTooNew means a newer syncvault migrated the database past the
// steps this build knows.
var ErrSchemaTooNew = errors.New("database schema is newer than this build")

const defaultPragmas = `
PRAGMA journal_mode=WAL;
PRAGMA busy_timeout=5000;
PRAGMA foreign_keys=ON;
PRAGMA temp_store=MEMORY;
`

type options struct {
	pragmas      string
	maxOpenConns int
	migrations   []string
}

type Option func(*options)

// WithPragmas replaces the default pragma block.
func WithPragmas(pragmas string) Option {
	return func(o *options) {
		o.pragmas = pragmas
	}
}

func WithMaxOpenConns(n int) Option {
	return func(o *options) {
		o.maxOpenConns = n
	}
}

// WithMigrations sets the schema history. Step i takes the schema from
// version i to i+1; steps only ever get appended.
func WithMigrations(steps ...string) Option {
	return func(o *options) {
		o.migrations = steps
	}
}

// Open connects to the database at path, creating the file and its parent
// directory when missing, and applies pending migrations.
func Open(path string, opts ...Option) (*sqlx.DB, error) {
	o := &options{pragmas: defaultPragmas}
	for _, opt := range opts {
		opt(o)
	}

	dsn := Memory
	if path != Memory {
		if err := utils.EnsureParent(path); err != nil {
			return nil, fmt.Errorf("ensure parent directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_txlock=immediate&mode=rwc", path)
	} else {
		// every pooled connection would otherwise get its own empty database
		o.maxOpenConns = 1
	}

	conn, err := sqlx.Connect(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", path, err)
	}
	if o.maxOpenConns > 0 {
		conn.SetMaxOpenConns(o.maxOpenConns)
	}

	if _, err := conn.Exec(o.pragmas); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	from, to, err := migrate(conn, o.migrations)
	if err != nil {
		conn.Close()
		return nil, err
	}
	slog.Debug("db open", "driver", driverID, "path", path, "schema", to, "migratedFrom", from)
	return conn, nil
}

// SchemaVersion reads the version recorded by the last migration.
func SchemaVersion(conn *sqlx.DB) (int, error) {
	var v int
	if err := conn.Get(&v, "PRAGMA user_version"); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

func migrate(conn *sqlx.DB, steps []string) (from, to int, err error) {
	from, err = SchemaVersion(conn)
	if err != nil {
		return 0, 0, err
	}
	to = len(steps)
	switch {
	case from > to:
		return from, from, fmt.Errorf("%w: at %d, know %d", ErrSchemaTooNew, from, to)
	case from == to:
		return from, to, nil
	}

	tx, err := conn.Beginx()
	if err != nil {
		return from, from, fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback()

	for i := from; i < to; i++ {
		if _, err := tx.Exec(steps[i]); err != nil {
			return from, from, fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	// pragmas take no bind parameters
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", to)); err != nil {
		return from, from, fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return from, from, fmt.Errorf("commit migration: %w", err)
	}
	return from, to, nil
}
