// Package vaultkv implements an embeddable, ordered, log-structured-merge
// key-value store: a write-ahead log for durability, a sorted in-memory
// memtable for recent writes, and immutable on-disk SSTables produced by
// periodic flushes.
package vaultkv

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/vaultkv/vaultkv/internal/memtable"
	"github.com/vaultkv/vaultkv/internal/sstable"
	"github.com/vaultkv/vaultkv/internal/wal"
	"github.com/vaultkv/vaultkv/storage"
)

const walName = "wal"

// sstableHandle is one entry in the database's open-SSTable registry.
type sstableHandle struct {
	name   string
	level  uint32
	id     uint32
	reader *sstable.Reader
}

// Database binds the WAL, memtable, and SSTable registry together. It
// exclusively owns the storage handle, the memtable, the WAL appender, and
// every open SSTable reader; none of these are safe to share with another
// Database over the same storage. A Database has no internal locking: it is
// not safe for concurrent use, and callers must synchronize access
// externally.
type Database struct {
	storage storage.Storage
	log     *logrus.Logger

	mt  *memtable.Memtable
	wal *wal.Writer

	// registry is sorted ascending by (level, id). Lookups scan it in
	// reverse (newest first).
	registry []*sstableHandle

	closed bool
}

// Open runs the recovery procedure against s and returns a ready Database.
//
// Recovery: list blobs, partition into the WAL/SSTable-candidates/other
// (any "other" name is a fatal invalid-database error), reject an
// SSTable-without-WAL combination, replay the WAL into a fresh memtable
// while tracking SSTable names bracketed by WriteSSTableStart/End, delete
// every blob still incomplete after replay, open readers for the rest, and
// finally open the WAL for appending without truncating it.
func Open(s storage.Storage, opts Options) (*Database, error) {
	log := opts.logger()

	names, err := s.List()
	if err != nil {
		return nil, ioError(err)
	}

	hasWAL := false
	var candidates []string
	for _, name := range names {
		switch {
		case name == walName:
			hasWAL = true
		case sstable.IsSSTableName(name):
			candidates = append(candidates, name)
		default:
			return nil, invalidDatabase("unexpected blob %q at open", name)
		}
	}

	if !hasWAL && len(candidates) > 0 {
		return nil, invalidDatabase("missing wal with %d sstable candidate(s) present", len(candidates))
	}

	db := &Database{storage: s, log: log, mt: memtable.New()}

	incomplete := make(map[string]bool)
	recovered := 0

	if hasWAL {
		r, err := s.Read(walName)
		if err != nil {
			return nil, ioError(err)
		}
		replayErr := wal.Replay(r, func(rec wal.Record) error {
			recovered++
			switch rec.Tag {
			case wal.TagPut:
				db.mt.Put(rec.Key, rec.Value)
			case wal.TagDelete:
				db.mt.Delete(rec.Key)
			case wal.TagWriteSSTableStart:
				if err := validateASCII(rec.Name); err != nil {
					return err
				}
				incomplete[rec.Name] = true
			case wal.TagWriteSSTableEnd:
				if err := validateASCII(rec.Name); err != nil {
					return err
				}
				delete(incomplete, rec.Name)
			default:
				return wal.ErrInvalidTag
			}
			return nil
		})
		closeErr := r.Close()
		if replayErr != nil {
			if replayErr == wal.ErrInvalidTag {
				return nil, invalidDatabase("invalid WAL entry type")
			}
			if verr, ok := replayErr.(*Error); ok {
				return nil, verr
			}
			return nil, ioError(replayErr)
		}
		if closeErr != nil {
			return nil, ioError(closeErr)
		}
	}

	for name := range incomplete {
		if err := s.Delete(name); err != nil {
			return nil, ioError(err)
		}
		log.WithField("sstable", name).Warn("deleted incomplete sstable witnessed by wal")
	}

	for _, name := range candidates {
		if incomplete[name] {
			continue
		}
		level, id, err := sstable.ParseName(name)
		if err != nil {
			return nil, invalidDatabase("malformed sstable name %q: %v", name, err)
		}
		r, err := s.Read(name)
		if err != nil {
			return nil, ioError(err)
		}
		table, err := sstable.Open(r)
		if err != nil {
			return nil, ioError(err)
		}
		db.registry = append(db.registry, &sstableHandle{name: name, level: level, id: id, reader: table})
	}
	sort.Slice(db.registry, func(i, j int) bool {
		return lessLevelID(db.registry[i].level, db.registry[i].id, db.registry[j].level, db.registry[j].id)
	})

	a, err := s.Append(walName)
	if err != nil {
		return nil, ioError(err)
	}
	db.wal = wal.NewWriter(a)

	log.WithFields(logrus.Fields{
		"wal_records_replayed": recovered,
		"sstables_opened":      len(db.registry),
		"sstables_swept":       len(incomplete),
	}).Info("database opened")

	return db, nil
}

func lessLevelID(la, ia, lb, ib uint32) bool {
	if la != lb {
		return la < lb
	}
	return ia < ib
}

func validateASCII(name string) error {
	if name == "" {
		return invalidDatabase("empty sstable name in wal record")
	}
	for i := 0; i < len(name); i++ {
		if name[i] > 0x7f {
			return invalidDatabase("non-ASCII sstable name %q in wal record", name)
		}
	}
	return nil
}

// Close releases the WAL appender and every open SSTable reader. It does
// not flush the memtable; call Maintain first if that is desired.
func (db *Database) Close() error {
	if db.closed {
		return nil
	}
	db.closed = true

	var firstErr error
	if err := db.wal.Close(); err != nil && firstErr == nil {
		firstErr = ioError(err)
	}
	for _, h := range db.registry {
		if err := h.reader.Close(); err != nil && firstErr == nil {
			firstErr = ioError(err)
		}
	}
	return firstErr
}

// nextSSTableID returns the id for the next level-1 SSTable:
// max(id at level 1) + 1, defaulting to 0. Gaps below the maximum are not
// reused.
func (db *Database) nextSSTableID() uint32 {
	var max uint32
	found := false
	for _, h := range db.registry {
		if h.level != 1 {
			continue
		}
		if !found || h.id > max {
			max = h.id
			found = true
		}
	}
	if !found {
		return 0
	}
	return max + 1
}
