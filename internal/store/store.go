package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite data access layer for the fact tables.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates all tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS files (
  id              INTEGER PRIMARY KEY,
  path            TEXT NOT NULL UNIQUE,
  hash            TEXT,
  line_count      INTEGER,
  last_indexed    TIMESTAMP
);

-- Fact tables. Rows of one file are inserted in line order; id order is
-- extraction order.

CREATE TABLE IF NOT EXISTS events (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id),
  line            INTEGER NOT NULL,
  trigger_kind    TEXT NOT NULL,
  event           TEXT NOT NULL,
  indent          INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS data_keys (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id),
  line            INTEGER NOT NULL,
  key             TEXT NOT NULL,
  scope           TEXT NOT NULL,
  kind            TEXT NOT NULL,
  context         TEXT,
  mode_read       BOOLEAN DEFAULT FALSE,
  mode_write      BOOLEAN DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS calls (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id),
  line            INTEGER NOT NULL,
  kind            TEXT NOT NULL,
  target          TEXT NOT NULL,
  context         TEXT
);

CREATE TABLE IF NOT EXISTS containers (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id),
  line            INTEGER NOT NULL,
  name            TEXT NOT NULL,
  type            TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS notes (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id),
  line            INTEGER,
  message         TEXT NOT NULL
);

-- Run-level tables

CREATE TABLE IF NOT EXISTS warnings (
  id              INTEGER PRIMARY KEY,
  kind            TEXT NOT NULL,
  severity        TEXT NOT NULL,
  message         TEXT NOT NULL,
  count           INTEGER,
  examples        TEXT,
  reason          TEXT
);

CREATE TABLE IF NOT EXISTS metadata (
  key             TEXT PRIMARY KEY,
  value           TEXT
);

-- Indexes

CREATE INDEX IF NOT EXISTS idx_events_file ON events(file_id);
CREATE INDEX IF NOT EXISTS idx_events_event ON events(event);
CREATE INDEX IF NOT EXISTS idx_data_keys_file ON data_keys(file_id);
CREATE INDEX IF NOT EXISTS idx_data_keys_key ON data_keys(key);
CREATE INDEX IF NOT EXISTS idx_calls_file ON calls(file_id);
CREATE INDEX IF NOT EXISTS idx_calls_target ON calls(target);
CREATE INDEX IF NOT EXISTS idx_containers_file ON containers(file_id);
CREATE INDEX IF NOT EXISTS idx_containers_name ON containers(name);
CREATE INDEX IF NOT EXISTS idx_notes_file ON notes(file_id);
`

// factTables lists every table keyed by file_id.
var factTables = []string{"events", "data_keys", "calls", "containers", "notes"}

// deleteFileDataTx removes all facts for a file along with its file row.
func deleteFileDataTx(tx *sql.Tx, fileID int64) error {
	for _, table := range factTables {
		if _, err := tx.Exec("DELETE FROM "+table+" WHERE file_id = ?", fileID); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	if _, err := tx.Exec("DELETE FROM files WHERE id = ?", fileID); err != nil {
		return fmt.Errorf("delete file record: %w", err)
	}
	return nil
}
