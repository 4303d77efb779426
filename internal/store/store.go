// Package store provides the SQLite-backed entity store for users, notes,
// connections, calendar links, credentials, the analysis cache and job records.
package store

import (
	"database/sql"
	"fmt"
	"time"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS users (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	email           TEXT NOT NULL UNIQUE,
	username        TEXT NOT NULL DEFAULT '',
	hashed_password TEXT NOT NULL DEFAULT '',
	is_active       INTEGER NOT NULL DEFAULT 1,
	google_id       TEXT NOT NULL DEFAULT '',
	google_name     TEXT NOT NULL DEFAULT '',
	google_picture  TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS notes (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id         INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	title           TEXT NOT NULL DEFAULT '',
	content         TEXT NOT NULL DEFAULT '',
	category        TEXT NOT NULL DEFAULT '',
	importance      INTEGER NOT NULL DEFAULT 5,
	tags            TEXT NOT NULL DEFAULT '[]',
	summary         TEXT NOT NULL DEFAULT '',
	ai_processed    INTEGER NOT NULL DEFAULT 0,
	ai_processed_at DATETIME,
	created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_notes_user ON notes(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_notes_unprocessed ON notes(ai_processed);

CREATE TABLE IF NOT EXISTS connections (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	source_id  INTEGER NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
	target_id  INTEGER NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
	relation   TEXT NOT NULL DEFAULT 'RELATED',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(source_id, target_id)
);

CREATE INDEX IF NOT EXISTS idx_connections_source ON connections(source_id);
CREATE INDEX IF NOT EXISTS idx_connections_target ON connections(target_id);

CREATE TABLE IF NOT EXISTS calendar_events (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	note_id          INTEGER NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
	user_id          INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	event_id         TEXT NOT NULL,
	calendar_id      TEXT NOT NULL DEFAULT 'primary',
	title            TEXT NOT NULL DEFAULT '',
	description      TEXT NOT NULL DEFAULT '',
	location         TEXT NOT NULL DEFAULT '',
	start_time       DATETIME NOT NULL,
	end_time         DATETIME NOT NULL,
	is_all_day       INTEGER NOT NULL DEFAULT 0,
	reminder_minutes INTEGER NOT NULL DEFAULT 30,
	created_by_ai    INTEGER NOT NULL DEFAULT 1,
	created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_calendar_events_note ON calendar_events(note_id);

CREATE TABLE IF NOT EXISTS oauth_tokens (
	user_id       INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	provider      TEXT NOT NULL,
	access_token  TEXT NOT NULL DEFAULT '',
	refresh_token TEXT NOT NULL DEFAULT '',
	token_type    TEXT NOT NULL DEFAULT '',
	expiry        DATETIME,
	scope         TEXT NOT NULL DEFAULT '',
	updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (user_id, provider)
);

CREATE TABLE IF NOT EXISTS refresh_tokens (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	token_hash TEXT NOT NULL UNIQUE,
	expires_at DATETIME NOT NULL,
	is_active  INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS analysis_cache (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	expires_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS jobs (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	user_id    INTEGER NOT NULL DEFAULT 0,
	dedup_key  TEXT NOT NULL DEFAULT '',
	payload    BLOB,
	status     TEXT NOT NULL DEFAULT 'PENDING',
	result     BLOB,
	error      TEXT NOT NULL DEFAULT '',
	attempts   INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_jobs_dedup ON jobs(dedup_key, status);
`

// DB wraps a sql.DB with entity-specific operations.
type DB struct {
	conn *sql.DB
	now  func() time.Time
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open(driverName, dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply fts schema: %w", err)
	}
	return &DB{conn: conn, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the connection; used by the readiness check.
func (db *DB) Ping() error {
	return db.conn.Ping()
}

// SetClock overrides the time source. Tests use it to make timestamps deterministic.
func (db *DB) SetClock(now func() time.Time) {
	db.now = now
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
