package storage

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// FSStore is a directory-backed Storage implementation: every blob is a
// regular file directly under a single root directory. It is the one
// concrete backend the core ships with; object-store or single-file
// backends are left to callers (see spec's storage boundary).
type FSStore struct {
	dir string
}

// NewFSStore opens dir as a storage root. dir must already exist and be a
// directory.
func NewFSStore(dir string) (*FSStore, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "storage: stat %s", dir)
	}
	if !info.IsDir() {
		return nil, errors.Errorf("storage: %s is not a directory", dir)
	}
	return &FSStore{dir: dir}, nil
}

func (s *FSStore) path(name string) string {
	return filepath.Join(s.dir, name)
}

// Read opens name for positional reads.
func (s *FSStore) Read(name string) (Reader, error) {
	f, err := os.Open(s.path(name))
	if err != nil {
		return nil, errors.Wrapf(err, "storage: read %s", name)
	}
	return &fsReader{file: f}, nil
}

// Write atomically replaces name with data: it writes to a temp file in
// the same directory and renames over the target, so a reader never
// observes a partially-written blob. Adapted from the teacher's manifest
// atomic-update idiom (temp file + os.Rename), applied here to every named
// blob instead of to a single manifest file.
func (s *FSStore) Write(name string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return errors.Wrapf(err, "storage: create temp for %s", name)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "storage: write %s", name)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "storage: sync %s", name)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "storage: close temp for %s", name)
	}
	if err := os.Rename(tmpName, s.path(name)); err != nil {
		return errors.Wrapf(err, "storage: rename into %s", name)
	}
	return nil
}

// Append opens name for appending, creating it if absent.
func (s *FSStore) Append(name string) (Appender, error) {
	f, err := os.OpenFile(s.path(name), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "storage: append %s", name)
	}
	return &fsAppender{file: f}, nil
}

// Delete removes name. Absence is not an error.
func (s *FSStore) Delete(name string) error {
	err := os.Remove(s.path(name))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "storage: delete %s", name)
	}
	return nil
}

// List enumerates every blob name in the directory, skipping the "." and
// ".." sentinels a directory walk would otherwise surface (carried forward
// from the original Rust DirectoryStorage::list).
func (s *FSStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.Wrapf(err, "storage: list %s", s.dir)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if name == "." || name == ".." {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

type fsReader struct {
	file *os.File
}

func (r *fsReader) ReadExactAt(buf []byte, offset int64) error {
	n, err := r.file.ReadAt(buf, offset)
	if err != nil {
		if err == io.EOF && n == len(buf) {
			return nil
		}
		if err == io.EOF {
			return io.ErrUnexpectedEOF
		}
		return err
	}
	return nil
}

func (r *fsReader) Close() error {
	return r.file.Close()
}

type fsAppender struct {
	file *os.File
}

func (a *fsAppender) Append(buf []byte) error {
	_, err := a.file.Write(buf)
	return err
}

func (a *fsAppender) Truncate() error {
	if err := a.file.Truncate(0); err != nil {
		return err
	}
	_, err := a.file.Seek(0, io.SeekStart)
	return err
}

func (a *fsAppender) Close() error {
	return a.file.Close()
}
