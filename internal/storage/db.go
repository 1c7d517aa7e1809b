// Package storage persists documents and slides over database/sql. The same
// queries run on SQLite and PostgreSQL; only the schema differs.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/spherical/slide-pipeline/internal/config"
)

// Common errors
var (
	ErrNotFound = errors.New("record not found")
)

// Dialect names the SQL backend.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// DB represents a database connection interface.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Open connects to the configured database.
func Open(cfg config.DatabaseConfig) (*sql.DB, Dialect, error) {
	switch cfg.Driver {
	case "sqlite":
		db, err := sql.Open("sqlite3", sqliteDSN(cfg.SQLite.Path))
		if err != nil {
			return nil, "", fmt.Errorf("open sqlite: %w", err)
		}
		maxOpen := cfg.SQLite.MaxOpenConns
		if maxOpen <= 0 {
			maxOpen = 1
		}
		db.SetMaxOpenConns(maxOpen)
		return db, DialectSQLite, nil

	case "postgres":
		db, err := sql.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			return nil, "", fmt.Errorf("open postgres: %w", err)
		}
		if cfg.Postgres.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
		}
		if cfg.Postgres.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
		}
		if cfg.Postgres.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(cfg.Postgres.ConnMaxLifetime)
		}
		return db, DialectPostgres, nil
	}

	return nil, "", fmt.Errorf("unsupported database driver: %s", cfg.Driver)
}

func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=on&_busy_timeout=5000"
}

// Store owns the connection pool and hands out repository bundles, either
// bound to the pool or to a transaction.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// NewStore wraps an open database.
func NewStore(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// Dialect returns the backend dialect.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Repositories returns repositories bound to the pool.
func (s *Store) Repositories() *Repositories {
	return NewRepositories(s.db)
}

// InTx runs fn inside one transaction. The transaction commits when fn
// returns nil and rolls back otherwise. Repositories passed to fn must not
// escape it.
func (s *Store) InTx(ctx context.Context, fn func(*Repositories) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(NewRepositories(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Close closes the pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Repositories bundles all repositories over one DB handle.
type Repositories struct {
	Documents *DocumentRepository
	Slides    *SlideRepository
}

// NewRepositories creates all repositories with the given DB.
func NewRepositories(db DB) *Repositories {
	return &Repositories{
		Documents: NewDocumentRepository(db),
		Slides:    NewSlideRepository(db),
	}
}

// placeholders returns "$start, $start+1, ..." for n arguments.
func placeholders(start, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
}
