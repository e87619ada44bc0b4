package sstable

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/adrienschuler/storage-engine/pkg/kv"
)

func buildTestTable(t *testing.T, entries []Entry) *SSTable {
	t.Helper()
	path := filepath.Join(t.TempDir(), "00000.sst")
	sst, err := BuildFromEntries(path, entries)
	if err != nil {
		t.Fatalf("BuildFromEntries failed: %v", err)
	}
	return sst
}

func TestGetFindsEveryWrittenKey(t *testing.T) {
	entries := []Entry{
		{Key: "a", Value: "1"},
		{Key: "b", Value: "2"},
		{Key: "c", Value: "3"},
		{Key: "d", Value: "4"},
	}
	sst := buildTestTable(t, entries)

	for _, e := range entries {
		value, found, err := sst.Get(e.Key)
		if err != nil {
			t.Fatalf("get(%q) error: %v", e.Key, err)
		}
		if !found || value != e.Value {
			t.Fatalf("get(%q) = %q,%v, want %q,true", e.Key, value, found, e.Value)
		}
	}
}

func TestGetMissingKeyIsAbsent(t *testing.T) {
	sst := buildTestTable(t, []Entry{{Key: "a", Value: "1"}, {Key: "z", Value: "26"}})

	if _, found, err := sst.Get("m"); err != nil || found {
		t.Fatalf("get(m) = found=%v err=%v, want absent", found, err)
	}
	if _, found, err := sst.Get("zz"); err != nil || found {
		t.Fatalf("get(zz) = found=%v err=%v, want absent", found, err)
	}
}

func TestGetReturnsRawTombstone(t *testing.T) {
	sst := buildTestTable(t, []Entry{{Key: "a", Value: kv.Tombstone}})

	value, found, err := sst.Get("a")
	if err != nil {
		t.Fatalf("get(a) error: %v", err)
	}
	if !found || value != kv.Tombstone {
		t.Fatalf("get(a) = %q,%v, want tombstone,true (raw, unresolved)", value, found)
	}
}

func TestSparseIndexDensity(t *testing.T) {
	var entries []Entry
	for i := 0; i < 97; i++ {
		k := string(rune('a')) + paddedKey(i)
		entries = append(entries, Entry{Key: k, Value: k})
	}

	path := filepath.Join(t.TempDir(), "00000.sst")
	sst, err := BuildFromEntries(path, entries)
	if err != nil {
		t.Fatalf("BuildFromEntries failed: %v", err)
	}

	want := (len(entries) + Stride - 1) / Stride
	if len(sst.index) != want {
		t.Fatalf("sparse index has %d entries, want %d", len(sst.index), want)
	}

	for _, ie := range sst.index {
		value, found, err := sst.Get(ie.Key)
		if err != nil || !found {
			t.Fatalf("indexed key %q not found: found=%v err=%v", ie.Key, found, err)
		}
		_ = value
	}
}

func TestIteratorYieldsAllRecordsInOrder(t *testing.T) {
	entries := []Entry{
		{Key: "a", Value: "1"},
		{Key: "b", Value: "2"},
		{Key: "c", Value: "3"},
	}
	sst := buildTestTable(t, entries)

	it, err := sst.Iterator()
	if err != nil {
		t.Fatalf("Iterator failed: %v", err)
	}
	defer it.Close()

	var got []Entry
	for it.Next() {
		got = append(got, it.Entry())
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iteration error: %v", err)
	}
	if len(got) != len(entries) {
		t.Fatalf("got %d entries, want %d", len(got), len(entries))
	}
	for i, e := range entries {
		if got[i] != e {
			t.Fatalf("entry %d = %+v, want %+v", i, got[i], e)
		}
	}
}

func TestOpenRebuildsMissingIndex(t *testing.T) {
	entries := []Entry{
		{Key: "a", Value: "1"},
		{Key: "b", Value: "2"},
	}
	path := filepath.Join(t.TempDir(), "00000.sst")
	if _, err := BuildFromEntries(path, entries); err != nil {
		t.Fatalf("BuildFromEntries failed: %v", err)
	}
	if err := os.Remove(indexPath(path)); err != nil {
		t.Fatalf("failed to remove index sidecar: %v", err)
	}

	sst, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	value, found, err := sst.Get("b")
	if err != nil || !found || value != "2" {
		t.Fatalf("get(b) = %q,%v,%v, want 2,true,nil", value, found, err)
	}
}

func paddedKey(i int) string {
	const digits = "0123456789"
	s := make([]byte, 3)
	for p := 2; p >= 0; p-- {
		s[p] = digits[i%10]
		i /= 10
	}
	return string(s)
}
