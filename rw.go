package vaultkv

import "github.com/vaultkv/vaultkv/internal/utils"

// Put appends a Put record to the WAL, then mutates the memtable. If the
// WAL append fails, the memtable is left untouched so it never holds an
// entry the WAL does not witness.
func (db *Database) Put(key, value []byte) error {
	if db.closed {
		return invalidDatabase("database is closed")
	}
	if err := db.wal.AppendPut(key, value); err != nil {
		return ioError(err)
	}
	db.mt.Put(key, value)
	return nil
}

// Delete appends a Delete record to the WAL, then removes the key from the
// memtable. As with Put, a failed WAL append never touches the memtable.
func (db *Database) Delete(key []byte) error {
	if db.closed {
		return invalidDatabase("database is closed")
	}
	if err := db.wal.AppendDelete(key); err != nil {
		return ioError(err)
	}
	db.mt.Delete(key)
	return nil
}

// Get queries the memtable first, then each SSTable newest-first (highest
// (level, id) first); the first hit wins. Because tombstones are not
// persisted in SSTables, Delete only removes a key from the memtable: a key
// already flushed to an SSTable is still returned after it is deleted.
func (db *Database) Get(key []byte) ([]byte, bool, error) {
	if db.closed {
		return nil, false, invalidDatabase("database is closed")
	}
	// The memtable hands back a slice it owns internally; copy it so a
	// caller holding the result across a later Put/Delete never observes a
	// mutated value out from under it.
	if value, ok := db.mt.Get(key); ok {
		return utils.CopyBytes(value), true, nil
	}
	for i := len(db.registry) - 1; i >= 0; i-- {
		value, ok, err := db.registry[i].reader.Get(key)
		if err != nil {
			return nil, false, ioError(err)
		}
		if ok {
			return value, true, nil
		}
	}
	return nil, false, nil
}
