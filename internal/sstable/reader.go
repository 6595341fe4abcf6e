package sstable

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/vaultkv/vaultkv/storage"
)

// Reader opens an immutable on-disk SSTable for point lookups and range
// iteration, performing on-disk binary search rather than loading the
// table into memory.
type Reader struct {
	r storage.Reader
	n uint32
}

// Open reads the 4-byte header from r and caches the entry count. r is
// held for the lifetime of the Reader and closed by Reader.Close.
func Open(r storage.Reader) (*Reader, error) {
	var hdr [headerSize]byte
	if err := r.ReadExactAt(hdr[:], 0); err != nil {
		return nil, errors.Wrap(err, "sstable: read header")
	}
	return &Reader{r: r, n: binary.BigEndian.Uint32(hdr[:])}, nil
}

// Close releases the underlying storage reader.
func (t *Reader) Close() error {
	return t.r.Close()
}

// Len returns the number of entries in the table.
func (t *Reader) Len() uint32 {
	return t.n
}

func (t *Reader) offsetAt(i uint32) (int64, error) {
	var buf [offsetSize]byte
	off := headerSize + int64(i)*offsetSize
	if err := t.r.ReadExactAt(buf[:], off); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(buf[:])), nil
}

// readEntryAt reads the full key and value for the entry whose payload
// starts at the given absolute file offset.
func (t *Reader) readEntryAt(payloadStart int64) (key, value []byte, err error) {
	var lenBuf [entryLenFieldLen]byte
	if err := t.r.ReadExactAt(lenBuf[:], payloadStart); err != nil {
		return nil, nil, err
	}
	klen := binary.BigEndian.Uint32(lenBuf[:])

	key = make([]byte, klen)
	if klen > 0 {
		if err := t.r.ReadExactAt(key, payloadStart+entryLenFieldLen); err != nil {
			return nil, nil, err
		}
	}

	vlenOff := payloadStart + entryLenFieldLen + int64(klen)
	if err := t.r.ReadExactAt(lenBuf[:], vlenOff); err != nil {
		return nil, nil, err
	}
	vlen := binary.BigEndian.Uint32(lenBuf[:])

	value = make([]byte, vlen)
	if vlen > 0 {
		if err := t.r.ReadExactAt(value, vlenOff+entryLenFieldLen); err != nil {
			return nil, nil, err
		}
	}
	return key, value, nil
}

// readKeyAt reads only the key for the entry at the given absolute file
// offset, to avoid materializing values during binary search.
func (t *Reader) readKeyAt(payloadStart int64) ([]byte, error) {
	var lenBuf [entryLenFieldLen]byte
	if err := t.r.ReadExactAt(lenBuf[:], payloadStart); err != nil {
		return nil, err
	}
	klen := binary.BigEndian.Uint32(lenBuf[:])
	key := make([]byte, klen)
	if klen > 0 {
		if err := t.r.ReadExactAt(key, payloadStart+entryLenFieldLen); err != nil {
			return nil, err
		}
	}
	return key, nil
}

// Get performs the on-disk binary search described by the format: at each
// step it positionally reads the offset for the midpoint, then the key at
// that offset, and compares. The search uses the size-halving variant
// (base, size -> base, half, mid = base+half); the loop exits when
// size <= 1 and returns the result of that final equality check.
func (t *Reader) Get(key []byte) ([]byte, bool, error) {
	if t.n == 0 {
		return nil, false, nil
	}

	base := uint32(0)
	size := t.n
	for size > 1 {
		half := size / 2
		mid := base + half

		off, err := t.offsetAt(mid)
		if err != nil {
			return nil, false, errors.Wrap(err, "sstable: read offset")
		}
		midKey, err := t.readKeyAt(payloadOffset(t.n) + off)
		if err != nil {
			return nil, false, errors.Wrap(err, "sstable: read key")
		}

		if bytes.Compare(midKey, key) <= 0 {
			base = mid
		}
		size -= half
	}

	off, err := t.offsetAt(base)
	if err != nil {
		return nil, false, errors.Wrap(err, "sstable: read offset")
	}
	foundKey, value, err := t.readEntryAt(payloadOffset(t.n) + off)
	if err != nil {
		return nil, false, errors.Wrap(err, "sstable: read entry")
	}
	if !bytes.Equal(foundKey, key) {
		return nil, false, nil
	}
	return value, true, nil
}

// lowerBound returns the index of the first entry with key >= target, or
// t.n if none.
func (t *Reader) lowerBound(target []byte) (uint32, error) {
	lo, hi := uint32(0), t.n
	for lo < hi {
		mid := lo + (hi-lo)/2
		off, err := t.offsetAt(mid)
		if err != nil {
			return 0, err
		}
		midKey, err := t.readKeyAt(payloadOffset(t.n) + off)
		if err != nil {
			return 0, err
		}
		if bytes.Compare(midKey, target) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, nil
}

// RangeIterator walks entries with start <= key < end in ascending index
// (and therefore ascending key) order.
type RangeIterator struct {
	t     *Reader
	idx   uint32
	end   []byte
	key   []byte
	value []byte
	err   error
}

// NewRangeIterator returns an iterator over [start, end), positioned by one
// binary search for the lower bound. This supplements the distilled spec's
// range-iteration support for SSTables (flagged there as an open question
// left for the implementation to resolve).
func (t *Reader) NewRangeIterator(start, end []byte) (*RangeIterator, error) {
	idx, err := t.lowerBound(start)
	if err != nil {
		return nil, errors.Wrap(err, "sstable: range lower bound")
	}
	it := &RangeIterator{t: t, idx: idx, end: end}
	it.load()
	return it, nil
}

func (it *RangeIterator) load() {
	if it.err != nil || it.idx >= it.t.n {
		it.key, it.value = nil, nil
		return
	}
	off, err := it.t.offsetAt(it.idx)
	if err != nil {
		it.err = err
		return
	}
	key, value, err := it.t.readEntryAt(payloadOffset(it.t.n) + off)
	if err != nil {
		it.err = err
		return
	}
	if bytes.Compare(key, it.end) >= 0 {
		it.idx = it.t.n
		it.key, it.value = nil, nil
		return
	}
	it.key, it.value = key, value
}

// Err returns the first error encountered during iteration, if any.
func (it *RangeIterator) Err() error { return it.err }

// Valid reports whether the iterator currently points at an in-range entry.
func (it *RangeIterator) Valid() bool {
	return it.err == nil && it.key != nil
}

// Key returns the current entry's key. Valid must be true.
func (it *RangeIterator) Key() []byte { return it.key }

// Value returns the current entry's value. Valid must be true.
func (it *RangeIterator) Value() []byte { return it.value }

// Next advances the iterator by one entry.
func (it *RangeIterator) Next() {
	it.idx++
	it.load()
}
