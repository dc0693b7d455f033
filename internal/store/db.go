// Package store provides the shared coordination database for etlguard.
//
// The database holds two small tables that every launcher node must agree on:
//   - etl_locks: one row per held ETL lock path, with the owning node and a lease expiry
//   - sync_switches: one row per destination, recording whether incremental sync is on
//
// Two drivers are supported:
//   - sqlite: a local (or shared-volume) SQLite file in WAL mode via ncruces/go-sqlite3
//   - libsql: an embedded replica of a remote libSQL/Turso primary, so several nodes
//     coordinate through one primary while reading from a local copy
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/tursodatabase/go-libsql"
)

const (
	// DriverSQLite opens a local SQLite database file.
	DriverSQLite = "sqlite"

	// DriverLibSQL opens an embedded replica of a remote libSQL primary.
	DriverLibSQL = "libsql"
)

// Options configures how the coordination database is opened.
type Options struct {
	// Driver is DriverSQLite (default) or DriverLibSQL.
	Driver string

	// Path is the local database file. For libsql it holds the embedded replica.
	Path string

	// URL is the libsql primary URL (libsql://... or https://...). Ignored for sqlite.
	URL string

	// AuthToken authenticates against the libsql primary.
	AuthToken string

	// SyncInterval is how often the embedded replica pulls from the primary (0 = manual).
	SyncInterval time.Duration
}

// DB wraps the coordination database connection.
type DB struct {
	conn      *sql.DB
	path      string
	driver    string
	connector *libsql.Connector
}

// Open creates a new database connection described by opts.
//
// The caller MUST call Close() when done to ensure proper cleanup.
//
// Example:
//
//	db, err := store.Open(store.Options{Path: ".etlguard/coord.db"})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
func Open(opts Options) (*DB, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Ensure parent directory exists
	dir := filepath.Dir(opts.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	switch opts.Driver {
	case "", DriverSQLite:
		return openSQLite(opts.Path)
	case DriverLibSQL:
		return openLibSQL(opts)
	default:
		return nil, fmt.Errorf("unknown database driver %q", opts.Driver)
	}
}

func openSQLite(path string) (*DB, error) {
	// Pragmas in the DSN apply to every pooled connection, not just the first.
	// Lock contention between nodes is decided by the upsert, not by waiting,
	// but writers still need a busy timeout to serialize on the file.
	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{
		conn:   conn,
		path:   path,
		driver: DriverSQLite,
	}

	return db, nil
}

func openLibSQL(opts Options) (*DB, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("libsql driver requires a primary url")
	}

	var connOpts []libsql.Option
	if opts.AuthToken != "" {
		connOpts = append(connOpts, libsql.WithAuthToken(opts.AuthToken))
	}
	if opts.SyncInterval > 0 {
		connOpts = append(connOpts, libsql.WithSyncInterval(opts.SyncInterval))
	}

	connector, err := libsql.NewEmbeddedReplicaConnector(opts.Path, opts.URL, connOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create libsql connector: %w", err)
	}

	conn := sql.OpenDB(connector)
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		_ = connector.Close()
		return nil, fmt.Errorf("failed to ping libsql primary: %w", err)
	}

	return &DB{
		conn:      conn,
		path:      opts.Path,
		driver:    DriverLibSQL,
		connector: connector,
	}, nil
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Driver reports which driver opened the database.
func (db *DB) Driver() string {
	return db.driver
}

// Path returns the local database file path.
func (db *DB) Path() string {
	return db.path
}

// Sync pulls the latest frames from the libsql primary. It is a no-op for sqlite.
func (db *DB) Sync() error {
	if db.connector == nil {
		return nil
	}
	if _, err := db.connector.Sync(); err != nil {
		return fmt.Errorf("failed to sync replica: %w", err)
	}
	return nil
}

// Close closes the database connection.
// For sqlite it checkpoints the WAL first so all changes are persisted.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if db.driver == DriverSQLite {
		if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
		}
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	db.conn = nil

	if db.connector != nil {
		if err := db.connector.Close(); err != nil {
			return fmt.Errorf("failed to close libsql connector: %w", err)
		}
		db.connector = nil
	}

	return nil
}

// InitSchema creates the coordination tables if they don't exist.
// This is idempotent - safe to call multiple times.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the coordination tables with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	// Statements run one at a time; the libsql driver rejects multi-statement exec.
	statements := []string{
		`CREATE TABLE IF NOT EXISTS etl_locks (
			path TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			acquired_at INTEGER NOT NULL,  -- unix millis
			expires_at INTEGER NOT NULL    -- unix millis
		)`,
		`CREATE TABLE IF NOT EXISTS sync_switches (
			destination TEXT PRIMARY KEY,
			enabled INTEGER NOT NULL DEFAULT 1,
			updated_at INTEGER NOT NULL    -- unix millis
		)`,
		`CREATE INDEX IF NOT EXISTS idx_etl_locks_expires ON etl_locks(expires_at)`,
	}

	for _, stmt := range statements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	return nil
}
