package vaultkv

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/vaultkv/vaultkv/internal/wal"
	"github.com/vaultkv/vaultkv/storage"
)

func openTestDatabase(t *testing.T) (*Database, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := storage.NewFSStore(dir)
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	db, err := Open(s, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return db, dir
}

func mustGet(t *testing.T, db *Database, key string) (string, bool) {
	t.Helper()
	v, ok, err := db.Get([]byte(key))
	if err != nil {
		t.Fatalf("Get(%q): %v", key, err)
	}
	if !ok {
		return "", false
	}
	return string(v), true
}

// S1: opening an empty directory succeeds and get returns absent.
func TestOpenEmptyDirectory(t *testing.T) {
	db, _ := openTestDatabase(t)
	defer db.Close()

	if _, ok := mustGet(t, db, "x"); ok {
		t.Fatalf("get(\"x\") on empty database found a value")
	}
}

func putScenarioS2(t *testing.T, db *Database) {
	t.Helper()
	puts := []struct{ k, v string }{
		{"ghi", "111"}, {"abc", "222"}, {"mno", "333"},
		{"ghi", "444"}, {"def", "555"}, {"jkl", "666"}, {"def", "777"},
	}
	for _, p := range puts {
		if err := db.Put([]byte(p.k), []byte(p.v)); err != nil {
			t.Fatalf("Put(%q,%q): %v", p.k, p.v, err)
		}
	}
	if err := db.Delete([]byte("ghi")); err != nil {
		t.Fatalf("Delete(ghi): %v", err)
	}
}

func assertScenarioS2(t *testing.T, db *Database) {
	t.Helper()
	want := map[string]string{"abc": "222", "def": "777", "jkl": "666", "mno": "333"}
	for k, v := range want {
		got, ok := mustGet(t, db, k)
		if !ok || got != v {
			t.Fatalf("get(%q) = (%q, %v), want (%q, true)", k, got, ok, v)
		}
	}
	if _, ok := mustGet(t, db, "ghi"); ok {
		t.Fatalf("get(\"ghi\") found a value, want absent (deleted)")
	}
	if _, ok := mustGet(t, db, "zzz"); ok {
		t.Fatalf("get(\"zzz\") found a value, want absent")
	}
}

// S2 / invariants 2-4: put/get/delete/last-write-wins.
func TestPutGetDeleteSequence(t *testing.T) {
	db, _ := openTestDatabase(t)
	defer db.Close()

	putScenarioS2(t, db)
	assertScenarioS2(t, db)
}

// S3: maintain does not change subsequent read results for a repeated
// sequence of puts/deletes.
func TestMaintainIdempotentOnReads(t *testing.T) {
	db, _ := openTestDatabase(t)
	defer db.Close()

	putScenarioS2(t, db)
	assertScenarioS2(t, db)

	if err := db.Maintain(); err != nil {
		t.Fatalf("Maintain: %v", err)
	}

	putScenarioS2(t, db)
	assertScenarioS2(t, db)
}

// S4: range iteration over the S2 sequence.
func TestIterRangeScenarioS4(t *testing.T) {
	db, _ := openTestDatabase(t)
	defer db.Close()

	putScenarioS2(t, db)

	cases := []struct {
		start, end string
		want       []string
	}{
		{"def", "jkl", []string{"def:777"}},
		{"a", "jz", []string{"abc:222", "def:777", "jkl:666"}},
		{"def", "z", []string{"def:777", "jkl:666", "mno:333"}},
	}

	for _, c := range cases {
		it, err := db.IterRange([]byte(c.start), []byte(c.end))
		if err != nil {
			t.Fatalf("IterRange(%q,%q): %v", c.start, c.end, err)
		}
		var got []string
		for it.Valid() {
			got = append(got, string(it.Key())+":"+string(it.Value()))
			it.Next()
		}
		if err := it.Err(); err != nil {
			t.Fatalf("iteration error: %v", err)
		}
		if len(got) != len(c.want) {
			t.Fatalf("IterRange(%q,%q) = %v, want %v", c.start, c.end, got, c.want)
		}
		for i := range c.want {
			if got[i] != c.want[i] {
				t.Fatalf("IterRange(%q,%q)[%d] = %q, want %q", c.start, c.end, i, got[i], c.want[i])
			}
		}
	}
}

// S4 after maintain: a flushed SSTable must still merge correctly with a
// freshly repopulated memtable (newest-source-wins across the boundary).
func TestIterRangeAfterMaintain(t *testing.T) {
	db, _ := openTestDatabase(t)
	defer db.Close()

	if err := db.Put([]byte("abc"), []byte("old")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := db.Maintain(); err != nil {
		t.Fatalf("Maintain: %v", err)
	}
	if err := db.Put([]byte("abc"), []byte("new")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := db.Put([]byte("abd"), []byte("fresh")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	it, err := db.IterRange([]byte("aaa"), []byte("b"))
	if err != nil {
		t.Fatalf("IterRange: %v", err)
	}
	var got []string
	for it.Valid() {
		got = append(got, string(it.Key())+":"+string(it.Value()))
		it.Next()
	}
	want := []string{"abc:new", "abd:fresh"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

// Invariant 1 / 7 and S6: a WriteSSTableStart without a matching End must
// be swept on reopen, and the memtable reconstructed purely from the
// remaining WAL records.
func TestRecoverySweepsIncompleteFlush(t *testing.T) {
	dir := t.TempDir()
	s, err := storage.NewFSStore(dir)
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}

	a, err := s.Append("wal")
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	w := wal.NewWriter(a)
	if err := w.AppendWriteSSTableStart("1-0.sst"); err != nil {
		t.Fatalf("AppendWriteSSTableStart: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close wal writer: %v", err)
	}

	if err := s.Write("1-0.sst", []byte("not a real sstable")); err != nil {
		t.Fatalf("Write garbage sstable: %v", err)
	}

	db, err := Open(s, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(filepath.Join(dir, "1-0.sst")); !os.IsNotExist(err) {
		t.Fatalf("1-0.sst still present after recovery, want deleted (err=%v)", err)
	}
	if _, ok := mustGet(t, db, "anykey"); ok {
		t.Fatalf("recovered database unexpectedly has data")
	}
}

// Recovery rejects a blob that is neither the WAL nor a valid SSTable name.
func TestRecoveryRejectsUnexpectedBlob(t *testing.T) {
	dir := t.TempDir()
	s, err := storage.NewFSStore(dir)
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	if err := s.Write("garbage.txt", []byte("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	_, err = Open(s, Options{})
	if err == nil {
		t.Fatalf("Open succeeded on a directory with an unexpected blob")
	}
	verr, ok := err.(*Error)
	if !ok || verr.Kind != InvalidDatabase {
		t.Fatalf("Open error = %v, want *Error{Kind: InvalidDatabase}", err)
	}
}

// An SSTable present without any WAL is a fatal "missing wal" error.
func TestRecoveryRejectsSSTableWithoutWAL(t *testing.T) {
	dir := t.TempDir()
	s, err := storage.NewFSStore(dir)
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	if err := s.Write("1-0.sst", []byte("anything")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	_, err = Open(s, Options{})
	if err == nil {
		t.Fatalf("Open succeeded with an sstable but no wal")
	}
}

// Invariant: data survives a close/reopen cycle via WAL replay alone (no
// maintain in between).
func TestReopenReplaysWAL(t *testing.T) {
	dir := t.TempDir()
	s, err := storage.NewFSStore(dir)
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	db, err := Open(s, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	putScenarioS2(t, db)
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := storage.NewFSStore(dir)
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	db2, err := Open(s2, Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db2.Close()
	assertScenarioS2(t, db2)
}

// Maintain chooses successive level-1 ids and both flushed tables remain
// queryable, with newer flushes shadowing older ones for the same key.
func TestMaintainAssignsIncreasingIDs(t *testing.T) {
	db, _ := openTestDatabase(t)
	defer db.Close()

	if err := db.Put([]byte("k"), []byte("v1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := db.Maintain(); err != nil {
		t.Fatalf("Maintain: %v", err)
	}
	if err := db.Put([]byte("k"), []byte("v2")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := db.Maintain(); err != nil {
		t.Fatalf("Maintain: %v", err)
	}

	if len(db.registry) != 2 {
		t.Fatalf("registry has %d entries, want 2", len(db.registry))
	}
	if db.registry[0].id != 0 || db.registry[1].id != 1 {
		t.Fatalf("registry ids = %d,%d, want 0,1", db.registry[0].id, db.registry[1].id)
	}

	got, ok := mustGet(t, db, "k")
	if !ok || got != "v2" {
		t.Fatalf("get(k) = (%q,%v), want (v2,true)", got, ok)
	}
}

