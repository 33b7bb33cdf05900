// Package db provides SQLite connection management and schema migrations.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps the sql.DB with the sync store configuration.
type DB struct {
	*sql.DB
	Path string
}

// Open opens the SQLite database file at path, creating parent directories.
// The database is opened with:
// - WAL mode so UI reads do not block the sync writer
// - a single connection, SQLite allows one writer
// - a busy timeout for readers racing a checkpoint
func Open(ctx context.Context, path string) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	// Open database with modernc.org/sqlite (pure Go, no CGO)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	// Verify JSON functions are available, the version back-fill needs them
	var ok int
	if err := db.QueryRowContext(ctx, "SELECT json_valid('{}')").Scan(&ok); err != nil || ok != 1 {
		db.Close()
		return nil, fmt.Errorf("JSON functions are not available in this SQLite build: %v", err)
	}

	return &DB{DB: db, Path: path}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}

// InTx runs fn inside a transaction, committing on success.
func (db *DB) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
