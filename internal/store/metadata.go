package store

import (
	"database/sql"
	"errors"
	"time"
)

// GetImportedFileHash returns the SHA-256 recorded for an imported problem
// file, or "" if the file was never imported.
func (s *Store) GetImportedFileHash(name string) (string, error) {
	var hash string
	err := s.db.QueryRow(`SELECT hash FROM import_metadata WHERE name = ?`, name).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return hash, err
}

// SetImportedFileHash records the hash of an imported problem file.
func (s *Store) SetImportedFileHash(name, hash string) error {
	_, err := s.db.Exec(
		`INSERT INTO import_metadata (name, hash, imported_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET hash = excluded.hash, imported_at = excluded.imported_at`,
		name, hash, time.Now(),
	)
	return err
}
