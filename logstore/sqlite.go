package logstore

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLite is a Log backed by a local SQLite database. Multiple collectors can
// share one database file, distinguished by log name. Appends are committed
// transactions, satisfying the write-ahead ordering the engine requires.
type SQLite struct {
	db   *sql.DB
	name string
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS axis_records (
	seq     INTEGER PRIMARY KEY AUTOINCREMENT,
	log     TEXT NOT NULL,
	id      TEXT NOT NULL,
	payload BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS axis_records_log ON axis_records (log, seq);
`

// OpenSQLite opens (creating if needed) the database at path and binds the
// named log within it.
func OpenSQLite(path, name string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite log: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite log: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating log schema: %w", err)
	}
	return &SQLite{db: db, name: name}, nil
}

func (s *SQLite) Append(rec Record) error {
	_, err := s.db.Exec(
		"INSERT INTO axis_records (log, id, payload) VALUES (?, ?, ?)",
		s.name, rec.ID, rec.Payload,
	)
	if err != nil {
		return fmt.Errorf("appending record %s: %w", rec.ID, err)
	}
	return nil
}

func (s *SQLite) Replay(fn func(Record) error) error {
	rows, err := s.db.Query(
		"SELECT id, payload FROM axis_records WHERE log = ? ORDER BY seq",
		s.name,
	)
	if err != nil {
		return fmt.Errorf("replaying log %s: %w", s.name, err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Payload); err != nil {
			return fmt.Errorf("scanning record: %w", err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
