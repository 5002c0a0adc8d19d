// Package sqlite provides the embedded SQLite backend for RCA storage.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/steveyegge/rcagov/internal/storage"
	"github.com/steveyegge/rcagov/internal/storage/sqlstore"
)

func init() {
	storage.Register("sqlite", func(ctx context.Context, cfg *storage.Config) (storage.Storage, error) {
		return New(ctx, cfg.Path, cfg.BusyTimeout)
	})
}

// Dialect returns the SQLite dialect
func Dialect() sqlstore.Dialect {
	return sqlstore.Dialect{
		Name:              "sqlite",
		Migrations:        schemaMigrations,
		IsUniqueViolation: isUniqueConstraintError,
	}
}

// New creates a new SQLite storage backend at path
func New(ctx context.Context, path string, busyTimeout time.Duration) (*sqlstore.Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}

	// WAL for concurrent readers; immediate transactions so writers serialize at BEGIN
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_foreign_keys=ON&_txlock=immediate&_busy_timeout=%d",
		path, busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store, err := sqlstore.New(ctx, db, Dialect())
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// isUniqueConstraintError checks if an error is a UNIQUE or PRIMARY KEY violation
func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
