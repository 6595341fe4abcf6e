// Package kv is a string-keyed convenience facade over vaultkv.Database for
// callers that would rather not juggle byte slices and a storage backend
// directly.
package kv

import (
	"errors"

	"github.com/vaultkv/vaultkv"
	"github.com/vaultkv/vaultkv/storage"
)

var (
	// ErrNotFound is returned by Get when the key does not exist.
	ErrNotFound = errors.New("kv: key not found")
	// ErrClosed is returned by every method once Close has been called.
	ErrClosed = errors.New("kv: db is closed")
)

// DB wraps a vaultkv.Database backed by a directory on the local
// filesystem.
type DB struct {
	db *vaultkv.Database
}

// Open opens a database rooted at path, which must be an existing
// directory; an empty directory yields a new, empty database.
func Open(path string) (*DB, error) {
	if path == "" {
		return nil, errors.New("kv: path cannot be empty")
	}
	s, err := storage.NewFSStore(path)
	if err != nil {
		return nil, err
	}
	db, err := vaultkv.Open(s, vaultkv.Options{})
	if err != nil {
		return nil, err
	}
	return &DB{db: db}, nil
}

// Close releases the underlying database's resources.
func (d *DB) Close() error {
	if d.db == nil {
		return ErrClosed
	}
	db := d.db
	d.db = nil
	return db.Close()
}

// Put stores value under key, overwriting any existing value.
func (d *DB) Put(key, value string) error {
	if d.db == nil {
		return ErrClosed
	}
	return d.db.Put([]byte(key), []byte(value))
}

// Get retrieves the value stored under key, or ErrNotFound.
func (d *DB) Get(key string) (string, error) {
	if d.db == nil {
		return "", ErrClosed
	}
	val, found, err := d.db.Get([]byte(key))
	if err != nil {
		return "", err
	}
	if !found {
		return "", ErrNotFound
	}
	return string(val), nil
}

// Delete removes key from the in-memory table. It is a no-op if key does not
// exist. A key already flushed by Maintain is still returned by Get from its
// SSTable, since deletions are not persisted in SSTables.
func (d *DB) Delete(key string) error {
	if d.db == nil {
		return ErrClosed
	}
	return d.db.Delete([]byte(key))
}

// Maintain flushes the in-memory table to a new on-disk SSTable.
func (d *DB) Maintain() error {
	if d.db == nil {
		return ErrClosed
	}
	return d.db.Maintain()
}
