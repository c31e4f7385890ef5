// Package store implements the entity store: typed, soft-deletable,
// organization-scoped persistence for tasks, comments, devices, tombstones,
// conflicts, and sync logs, backed by SQLite.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite" // pure Go driver, registers as "sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const walJournalSizeLimit = 67108864 // 64 MiB

// Store wraps a SQLite database holding all sync-engine state. All sync
// state (organizations, users, devices, tasks, comments, tombstones,
// conflicts, sync logs, task history) is persisted here.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (and migrates) the database at dbPath. Use ":memory:" for
// tests.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("opening entity store database", "path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}

	// Every connection to ":memory:" gets its own private database, so the
	// pool is held to one connection to keep all queries on the migrated one.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := setPragmas(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("entity store database ready", "path", dbPath)

	return &Store{db: db, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying *sql.DB for callers that need a transaction
// spanning several store methods (the sync protocol handler's push).
func (s *Store) DB() *sql.DB {
	return s.db
}

func setPragmas(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	pragmas := []struct {
		sql  string
		desc string
	}{
		{"PRAGMA journal_mode = WAL", "WAL mode"},
		{"PRAGMA synchronous = FULL", "synchronous FULL"},
		{"PRAGMA foreign_keys = ON", "foreign keys"},
		{fmt.Sprintf("PRAGMA journal_size_limit = %d", walJournalSizeLimit), "journal size limit"},
		{"PRAGMA busy_timeout = 5000", "busy timeout"},
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p.sql); err != nil {
			return fmt.Errorf("store: set pragma %s: %w", p.desc, err)
		}
		logger.Debug("pragma set", "pragma", p.desc)
	}

	return nil
}

// runMigrations applies all pending schema migrations using the goose v3
// Provider API.
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("store: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("store: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("store: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

// ImmediateTx is a transaction opened with SQLite's BEGIN IMMEDIATE, which
// acquires the database-wide write lock before any statement runs. database/
// sql's Tx has no hook for a non-default BEGIN verb, so this wraps a single
// *sql.Conn pinned for the transaction's lifetime instead.
type ImmediateTx struct {
	conn *sql.Conn
}

// Exec, Query, and QueryRow run statements against the pinned connection.
func (t *ImmediateTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.conn.ExecContext(ctx, query, args...)
}

func (t *ImmediateTx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.conn.QueryContext(ctx, query, args...)
}

func (t *ImmediateTx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return t.conn.QueryRowContext(ctx, query, args...)
}

// Commit commits and releases the pinned connection.
func (t *ImmediateTx) Commit(ctx context.Context) error {
	_, err := t.conn.ExecContext(ctx, "COMMIT")
	closeErr := t.conn.Close()
	if err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return closeErr
}

// Rollback rolls back and releases the pinned connection.
func (t *ImmediateTx) Rollback(ctx context.Context) error {
	_, err := t.conn.ExecContext(ctx, "ROLLBACK")
	closeErr := t.conn.Close()
	if err != nil {
		return fmt.Errorf("store: rollback: %w", err)
	}
	return closeErr
}

// BeginImmediate starts a transaction that acquires SQLite's write lock up
// front. SQLite offers no row-level locking, so this is the substitute for
// `SELECT ... FOR UPDATE`: the whole push transaction serializes against any
// other writer for its duration, satisfying the serializable-or-stronger
// isolation a push requires.
func (s *Store) BeginImmediate(ctx context.Context) (*ImmediateTx, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: acquire connection: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: begin immediate: %w", err)
	}
	return &ImmediateTx{conn: conn}, nil
}
