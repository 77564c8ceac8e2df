// Package store persists the flat corpus, derived features, scrape jobs and
// page failures in PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/fortuna/diamond/internal/logging"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("not found")

// Database wraps the Atlas connection pool.
type Database struct {
	conn *sql.DB
	log  *logging.Logger
}

// NewDatabase opens and pings the database.
func NewDatabase(dsn string, log *logging.Logger) (*Database, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping database")
	}

	return &Database{conn: db, log: log.Component("store")}, nil
}

func (db *Database) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// DB returns the underlying pool for repositories.
func (db *Database) DB() *sql.DB {
	return db.conn
}

// InTx runs fn in a transaction, committing only when fn succeeds.
func (db *Database) InTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "commit transaction")
}

// Migrations lists the embedded migration files in apply order.
func Migrations() ([]string, error) {
	names, err := fs.Glob(migrationFiles, "migrations/*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// RunMigrations applies every embedded migration not yet recorded in
// schema_migrations, each in its own transaction.
func (db *Database) RunMigrations(ctx context.Context) error {
	_, err := db.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return errors.Wrap(err, "create migrations table")
	}

	names, err := Migrations()
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := db.runMigration(ctx, name); err != nil {
			return errors.Wrapf(err, "migration %s", name)
		}
	}
	return nil
}

func (db *Database) runMigration(ctx context.Context, name string) error {
	var exists bool
	err := db.conn.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)", name).Scan(&exists)
	if err != nil {
		return err
	}
	if exists {
		db.log.Debug("migration already applied", "version", name)
		return nil
	}

	content, err := migrationFiles.ReadFile(name)
	if err != nil {
		return err
	}

	err = db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", name)
		return err
	})
	if err != nil {
		return err
	}
	db.log.Info("applied migration", "version", name)
	return nil
}

func (db *Database) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return db.conn.PingContext(ctx)
}
