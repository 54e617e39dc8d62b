package queue

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteKV is a KeyValue backed by a local SQLite file so the offline queue
// survives restarts.
type SQLiteKV struct {
	db *sql.DB
}

// NewSQLiteKV opens (or creates) the backing database at path
func NewSQLiteKV(path string) (*SQLiteKV, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}

	// Single writer; the queue serializes access anyway
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv_items (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize local store: %w", err)
	}

	return &SQLiteKV{db: db}, nil
}

func (s *SQLiteKV) GetItem(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM kv_items WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *SQLiteKV) SetItem(key, value string) error {
	_, err := s.db.Exec(`INSERT INTO kv_items (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

func (s *SQLiteKV) RemoveItem(key string) error {
	_, err := s.db.Exec(`DELETE FROM kv_items WHERE key = ?`, key)
	return err
}

// Close closes the backing database
func (s *SQLiteKV) Close() error {
	return s.db.Close()
}
