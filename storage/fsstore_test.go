package storage

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestFSStoreWriteReadList(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFSStore(dir)
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}

	if err := s.Write("wal", []byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	names, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 1 || names[0] != "wal" {
		t.Fatalf("List = %v, want [wal]", names)
	}

	r, err := s.Read("wal")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	defer r.Close()

	buf := make([]byte, 5)
	if err := r.ReadExactAt(buf, 0); err != nil {
		t.Fatalf("ReadExactAt: %v", err)
	}
	if string(buf) != "hello" {
		t.Fatalf("got %q, want hello", buf)
	}
}

func TestFSStoreReadExactAtShortReadIsUnexpectedEOF(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFSStore(dir)
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	if err := s.Write("blob", []byte("abc")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	r, err := s.Read("blob")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	defer r.Close()

	buf := make([]byte, 10)
	err = r.ReadExactAt(buf, 0)
	if err != io.ErrUnexpectedEOF {
		t.Fatalf("err = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestFSStoreAppendAndTruncate(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFSStore(dir)
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}

	a, err := s.Append("wal")
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := a.Append([]byte("one")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := a.Append([]byte("two")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := a.Truncate(); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	if err := a.Append([]byte("three")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "wal"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "three" {
		t.Fatalf("got %q, want three", data)
	}
}

func TestFSStoreDeleteAbsentIsNotError(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFSStore(dir)
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	if err := s.Delete("does-not-exist"); err != nil {
		t.Fatalf("Delete of absent blob returned error: %v", err)
	}
}

func TestFSStoreWriteIsAtomicReplace(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFSStore(dir)
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	if err := s.Write("1-0.sst", []byte("version1")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := s.Write("1-0.sst", []byte("version2")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "1-0.sst"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "version2" {
		t.Fatalf("got %q, want version2", data)
	}

	names, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 1 || names[0] != "1-0.sst" {
		t.Fatalf("List = %v, want exactly [1-0.sst] (no leftover temp file)", names)
	}
}
