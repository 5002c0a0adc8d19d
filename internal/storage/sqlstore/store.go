// Package sqlstore implements storage.Storage on database/sql.
//
// The SQL is shared between backends; a Dialect supplies the migrations, the
// placeholder style and the unique-violation classifier. The sqlite and
// postgres packages wrap this with their drivers.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/steveyegge/rcagov/internal/storage"
	"github.com/steveyegge/rcagov/internal/storage/migrations"
)

// Dialect captures what differs between SQL backends.
type Dialect struct {
	// Name identifies the backend in errors ("sqlite", "postgres")
	Name string

	// Migrations build the schema; pending ones are applied on open
	Migrations []migrations.Migration

	// NumberedPlaceholders rewrites ? into $1, $2, ... before execution
	NumberedPlaceholders bool

	// IsUniqueViolation reports whether err came from a unique index
	IsUniqueViolation func(err error) bool

	// SnapshotTxOptions begins ReadTx transactions; nil uses the driver default
	SnapshotTxOptions *sql.TxOptions
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements storage.Storage. Reads run on the pool through the
// embedded queries; writes go through WithTx.
type Store struct {
	*queries
	db      *sql.DB
	dialect Dialect
}

// New wraps an open database, verifies connectivity and applies pending migrations.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Store, error) {
	if dialect.IsUniqueViolation == nil {
		return nil, fmt.Errorf("dialect %s: IsUniqueViolation is required", dialect.Name)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	manager := migrations.NewManager(dialect.NumberedPlaceholders, dialect.Migrations...)
	if _, err := manager.Apply(ctx, db); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{
		queries: &queries{db: db, dialect: dialect},
		db:      db,
		dialect: dialect,
	}, nil
}

// DB exposes the underlying handle for maintenance commands and tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx runs fn inside a transaction. SQLite connections are opened with
// _txlock=immediate, so the write lock is taken at BEGIN and concurrent
// writers queue on the busy timeout instead of failing mid-transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.runTx(ctx, nil, fn)
}

// ReadTx runs fn in a transaction begun with the dialect's snapshot options,
// so every read inside it sees the same committed state.
func (s *Store) ReadTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.runTx(ctx, s.dialect.SnapshotTxOptions, fn)
}

func (s *Store) runTx(ctx context.Context, opts *sql.TxOptions, fn func(tx storage.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(&queries{db: tx, dialect: s.dialect}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

// queries runs statements against either the pool or a transaction.
type queries struct {
	db      querier
	dialect Dialect
}

func (q *queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return q.db.ExecContext(ctx, q.rebind(query), args...)
}

func (q *queries) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return q.db.QueryContext(ctx, q.rebind(query), args...)
}

func (q *queries) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return q.db.QueryRowContext(ctx, q.rebind(query), args...)
}

// rebind converts ? placeholders for backends that number them.
// Queries in this package never contain a literal '?'.
func (q *queries) rebind(query string) string {
	if !q.dialect.NumberedPlaceholders || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// uniqueErr wraps err with storage.ErrUniqueViolation when the dialect says so.
func (q *queries) uniqueErr(what string, err error) error {
	if q.dialect.IsUniqueViolation(err) {
		return fmt.Errorf("failed to insert %s: %w: %v", what, storage.ErrUniqueViolation, err)
	}
	return fmt.Errorf("failed to insert %s: %w", what, err)
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

var (
	_ storage.Storage = (*Store)(nil)
	_ storage.Tx      = (*queries)(nil)
)

// SchemaVersion returns the highest applied migration version
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	v, err := migrations.Version(ctx, s.db)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}
