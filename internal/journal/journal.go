// Package journal keeps a SQLite record of pipeline state transitions.
//
// The journal is an append-only audit trail. It is also read once at
// startup to seed the set of already-notified fingerprints, so a
// restart does not re-notify files that have not changed. It is never
// load-bearing for correctness of a single run: journal write failures
// are logged by callers and the pipeline continues.
package journal

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS transitions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	case_id     TEXT NOT NULL,
	fingerprint TEXT NOT NULL DEFAULT '',
	state       TEXT NOT NULL,
	stage       TEXT NOT NULL DEFAULT '',
	reason      TEXT NOT NULL DEFAULT '',
	decision    TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_transitions_case ON transitions(case_id, id);
CREATE INDEX IF NOT EXISTS idx_transitions_state ON transitions(state);
`

// DB wraps a sql.DB with journal-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the journal database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("journal: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("journal: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("journal: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
