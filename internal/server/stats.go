package server

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Stats persists visit and download counters in a small sqlite database.
// A nil *Stats is valid and drops every update, for serving without a
// counters file.
type Stats struct {
	db *sql.DB
}

// OpenStats creates or opens the counters database at path.
func OpenStats(path string) (*Stats, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open stats db: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS stats (
		key   TEXT PRIMARY KEY,
		value INTEGER NOT NULL DEFAULT 0
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("init stats schema: %w", err)
	}
	return &Stats{db: db}, nil
}

func (s *Stats) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}

// Increment bumps a counter, creating it at 1 when absent.
func (s *Stats) Increment(key string) error {
	if s == nil {
		return nil
	}
	_, err := s.db.Exec(`INSERT INTO stats (key, value) VALUES (?, 1)
		ON CONFLICT(key) DO UPDATE SET value = value + 1`, key)
	if err != nil {
		return fmt.Errorf("increment %s: %w", key, err)
	}
	return nil
}

// Get returns a counter's value, zero when absent.
func (s *Stats) Get(key string) (int64, error) {
	if s == nil {
		return 0, nil
	}
	var v int64
	err := s.db.QueryRow(`SELECT value FROM stats WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", key, err)
	}
	return v, nil
}

// All returns every counter.
func (s *Stats) All() (map[string]int64, error) {
	counters := map[string]int64{}
	if s == nil {
		return counters, nil
	}

	rows, err := s.db.Query(`SELECT key, value FROM stats`)
	if err != nil {
		return nil, fmt.Errorf("list stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var k string
		var v int64
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		counters[k] = v
	}
	return counters, rows.Err()
}
