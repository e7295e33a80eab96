package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the last link of each profile in a SQLite database.
// Only the newest link is stored per profile, never a history.
type SQLiteStore struct {
	db  *sql.DB
	key string
}

// NewSQLiteStore opens (or creates) the database at dbPath.
// Use ":memory:" for an in-memory database (useful for testing).
func NewSQLiteStore(dbPath, key string) (*SQLiteStore, error) {
	if key == "" {
		return nil, errors.New("state key is required for the sqlite backend")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A second connection to ":memory:" would see an empty database
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, key: key}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return s, nil
}

// createSchema creates the state table.
func (s *SQLiteStore) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS push_state (
		profile TEXT PRIMARY KEY,
		last_link TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// LastLink returns the stored link for this store's profile.
func (s *SQLiteStore) LastLink() (string, bool, error) {
	var link string
	err := s.db.QueryRow("SELECT last_link FROM push_state WHERE profile = ?", s.key).Scan(&link)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read state: %w", err)
	}
	return link, true, nil
}

// SaveLastLink upserts the link for this store's profile.
func (s *SQLiteStore) SaveLastLink(link string) error {
	_, err := s.db.Exec(
		`INSERT INTO push_state (profile, last_link, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(profile) DO UPDATE SET last_link = excluded.last_link, updated_at = excluded.updated_at`,
		s.key, link, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

// UpdatedAt returns when the link was last saved.
func (s *SQLiteStore) UpdatedAt() (time.Time, error) {
	var unix int64
	err := s.db.QueryRow("SELECT updated_at FROM push_state WHERE profile = ?", s.key).Scan(&unix)
	if err == sql.ErrNoRows {
		return time.Time{}, errors.New("no state stored")
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read state: %w", err)
	}
	return time.Unix(unix, 0), nil
}

// Reset deletes this profile's row.
func (s *SQLiteStore) Reset() error {
	_, err := s.db.Exec("DELETE FROM push_state WHERE profile = ?", s.key)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
