// Package sqlite implements the repository interfaces on SQLite through the
// pure-Go modernc.org/sqlite driver.
//
// One *DB owns the connection pool and hands out a small store per entity
// (Users, Credentials, Settings, ReplyLogs). The stores share the pool and
// the Sealer that encrypts access tokens at rest.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/sakif/comment-autoreply/internal/auth"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool.
type DB struct {
	conn   *sql.DB
	sealer *auth.Sealer
}

// New opens (or creates) the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/autoreply.db" → file-based database
//   - ":memory:"          → in-memory database, used by tests
func New(dbPath string, sealer *auth.Sealer) (*DB, error) {
	if sealer == nil {
		return nil, fmt.Errorf("sqlite: a token sealer is required")
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Each connection to ":memory:" is a separate database, so the pool must
	// never grow past one connection.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets the dashboard read while the dispatcher writes log entries.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting busy timeout: %w", err)
	}

	db := &DB{conn: conn, sealer: sealer}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping is used by the health endpoint.
func (db *DB) Ping() error {
	return db.conn.Ping()
}

func (db *DB) PingContext(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) Users() *UserDB             { return &UserDB{conn: db.conn} }
func (db *DB) Credentials() *CredentialDB { return &CredentialDB{conn: db.conn, sealer: db.sealer} }
func (db *DB) Settings() *SettingsDB      { return &SettingsDB{conn: db.conn} }
func (db *DB) ReplyLogs() *ReplyLogDB     { return &ReplyLogDB{conn: db.conn} }

// migrate creates the schema. Every statement is idempotent.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// ig_user_id is UNIQUE: one Instagram account belongs to exactly one user,
	// which is what lets a webhook entry resolve to its owner.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS instagram_credentials (
			user_id           TEXT PRIMARY KEY,
			ig_user_id        TEXT NOT NULL UNIQUE,
			page_id           TEXT NOT NULL,
			access_token      TEXT NOT NULL DEFAULT '',
			username          TEXT NOT NULL DEFAULT '',
			state             TEXT NOT NULL,
			last_validated_at DATETIME,
			last_error        TEXT NOT NULL DEFAULT '',
			updated_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating instagram_credentials table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS automation_settings (
			user_id    TEXT PRIMARY KEY,
			keyword    TEXT NOT NULL,
			message    TEXT NOT NULL,
			enabled    INTEGER NOT NULL DEFAULT 0,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating automation_settings table: %w", err)
	}

	// comment_id is UNIQUE: at most one entry per comment, ever.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS reply_logs (
			reply_id        TEXT PRIMARY KEY,
			user_id         TEXT NOT NULL,
			comment_id      TEXT NOT NULL UNIQUE,
			media_id        TEXT NOT NULL DEFAULT '',
			commenter       TEXT NOT NULL DEFAULT '',
			created_at      DATETIME NOT NULL,
			commented_at    DATETIME,
			comment_snippet TEXT NOT NULL DEFAULT '',
			keyword_matched TEXT NOT NULL DEFAULT '',
			status          TEXT NOT NULL CHECK (status IN ('success', 'failure')),
			error_details   TEXT NOT NULL DEFAULT '',
			attempts        INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_reply_logs_user_created ON reply_logs(user_id, created_at);
	`)
	if err != nil {
		return fmt.Errorf("creating reply_logs table: %w", err)
	}

	return nil
}

// isUniqueViolation reports whether err came from a UNIQUE or PRIMARY KEY constraint.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
