package sstable

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

// Write serializes entries, which must already be sorted in strictly
// increasing key order, into the SSTable binary format and returns the
// complete byte image. The caller is responsible for persisting the image
// atomically via Storage.Write.
func Write(entries []Entry) ([]byte, error) {
	n := uint32(len(entries))

	offsets := make([]int64, n)
	var payload bytes.Buffer
	for i, e := range entries {
		if len(e.Key) > maxFieldLen || len(e.Value) > maxFieldLen {
			return nil, errors.Errorf("sstable: entry %d exceeds maximum length", i)
		}
		offsets[i] = int64(payload.Len())

		var lenBuf [entryLenFieldLen]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(e.Key)))
		payload.Write(lenBuf[:])
		payload.Write(e.Key)

		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(e.Value)))
		payload.Write(lenBuf[:])
		payload.Write(e.Value)
	}

	out := make([]byte, 0, payloadOffset(n)+int64(payload.Len()))
	var hdr [headerSize]byte
	binary.BigEndian.PutUint32(hdr[:], n)
	out = append(out, hdr[:]...)

	var offBuf [offsetSize]byte
	for _, off := range offsets {
		binary.BigEndian.PutUint64(offBuf[:], uint64(off))
		out = append(out, offBuf[:]...)
	}

	out = append(out, payload.Bytes()...)
	return out, nil
}

// maxFieldLen is the largest key/value length representable by the 32-bit
// big-endian length prefix (4 GiB - 1).
const maxFieldLen = 1<<32 - 1
