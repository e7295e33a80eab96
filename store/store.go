// Package store persists the link of the most recently notified entry.
package store

import (
	"fmt"
)

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Default state locations per backend.
const (
	DefaultPath       = "last_link.txt"
	DefaultSQLitePath = "feed-push.db"
)

// DefaultPathFor returns the state location used by backend when none is
// configured.
func DefaultPathFor(backend string) string {
	if backend == BackendSQLite {
		return DefaultSQLitePath
	}
	return DefaultPath
}

// StateStore holds a single string: the last-seen entry link.
type StateStore interface {
	// LastLink returns the stored link. found is false when no state has
	// been stored yet; that is not an error.
	LastLink() (link string, found bool, err error)
	// SaveLastLink overwrites the stored link.
	SaveLastLink(link string) error
	// Reset forgets the stored link so the next run is a first run.
	Reset() error
	Close() error
}

// Open returns the state store for the named backend.
// key identifies the feed profile; the file backend ignores it because the
// file itself is per profile.
func Open(backend, path, key string) (StateStore, error) {
	if path == "" {
		path = DefaultPathFor(backend)
	}
	switch backend {
	case "", BackendFile:
		return NewFileStore(path), nil
	case BackendSQLite:
		return NewSQLiteStore(path, key)
	default:
		return nil, fmt.Errorf("unknown state backend %q (expected %q or %q)", backend, BackendFile, BackendSQLite)
	}
}
