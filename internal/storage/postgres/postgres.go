// Package postgres provides the PostgreSQL backend for RCA storage.
//
// It drives the shared SQL store through pgx's database/sql adapter, so the
// lifecycle code is identical across backends.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/steveyegge/rcagov/internal/storage"
	"github.com/steveyegge/rcagov/internal/storage/sqlstore"
)

// uniqueViolationCode is the SQLSTATE for unique_violation.
const uniqueViolationCode = "23505"

func init() {
	storage.Register("postgres", func(ctx context.Context, cfg *storage.Config) (storage.Storage, error) {
		pgCfg := DefaultConfig()
		pgCfg.DSN = cfg.DSN
		return New(ctx, pgCfg)
	})
}

// Config holds PostgreSQL connection configuration
type Config struct {
	// DSN takes precedence over the individual fields when set
	DSN string

	Host            string
	Port            int
	Database        string
	User            string
	Password        string
	SSLMode         string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Host:            "localhost",
		Port:            5432,
		Database:        "rca",
		User:            "rca",
		SSLMode:         "prefer",
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: 1 * time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// ConnString returns the DSN, building one from the fields when unset
func (c *Config) ConnString() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// Dialect returns the PostgreSQL dialect
func Dialect() sqlstore.Dialect {
	return sqlstore.Dialect{
		Name:                 "postgres",
		Migrations:           schemaMigrations,
		NumberedPlaceholders: true,
		IsUniqueViolation:    isUniqueViolation,
		// READ COMMITTED would give each statement its own snapshot.
		SnapshotTxOptions: &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true},
	}
}

// New creates a new PostgreSQL storage backend
func New(ctx context.Context, cfg *Config) (*sqlstore.Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	connConfig, err := pgx.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	db := stdlib.OpenDB(*connConfig)
	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MinConns)
	db.SetConnMaxLifetime(cfg.MaxConnLifetime)
	db.SetConnMaxIdleTime(cfg.MaxConnIdleTime)

	store, err := sqlstore.New(ctx, db, Dialect())
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// isUniqueViolation checks whether err is a PostgreSQL unique_violation
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
