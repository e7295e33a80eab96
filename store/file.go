package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStore keeps the link in a plain-text UTF-8 file with nothing else in it.
type FileStore struct {
	path string
}

// NewFileStore creates a FileStore for the given path. The file is not
// touched until the first read or write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the state file location.
func (s *FileStore) Path() string {
	return s.path
}

// LastLink reads the stored link.
func (s *FileStore) LastLink() (string, bool, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read state file %s: %w", s.path, err)
	}
	return strings.TrimSpace(string(data)), true, nil
}

// SaveLastLink writes the link as the whole file content.
func (s *FileStore) SaveLastLink(link string) error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create state directory: %w", err)
		}
	}
	if err := os.WriteFile(s.path, []byte(link), 0644); err != nil {
		return fmt.Errorf("failed to write state file %s: %w", s.path, err)
	}
	return nil
}

// Reset removes the state file.
func (s *FileStore) Reset() error {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove state file %s: %w", s.path, err)
	}
	return nil
}

// Close is a no-op; the file is opened per call.
func (s *FileStore) Close() error {
	return nil
}
