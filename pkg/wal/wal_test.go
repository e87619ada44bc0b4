package wal

import (
	"path/filepath"
	"testing"
)

func TestAppendAndReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wal")

	w, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open WAL: %v", err)
	}

	if err := w.Append("key1", "value1"); err != nil {
		t.Fatalf("failed to append: %v", err)
	}
	if err := w.Append("key2", "value2"); err != nil {
		t.Fatalf("failed to append: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to close: %v", err)
	}

	w2, err := Open(path)
	if err != nil {
		t.Fatalf("failed to reopen WAL: %v", err)
	}
	defer w2.Close()

	records, err := w2.Replay()
	if err != nil {
		t.Fatalf("failed to replay: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Key != "key1" || records[0].Value != "value1" {
		t.Fatalf("unexpected record 0: %+v", records[0])
	}
	if records[1].Key != "key2" || records[1].Value != "value2" {
		t.Fatalf("unexpected record 1: %+v", records[1])
	}
}

func TestReplayToleratesTruncatedTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wal")

	w, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open WAL: %v", err)
	}
	if err := w.Append("key1", "value1"); err != nil {
		t.Fatalf("failed to append: %v", err)
	}

	// Simulate a crash mid-write: append a truncated, unparseable line.
	if _, err := w.file.Write([]byte(`{"op":"insert","key":"ke`)); err != nil {
		t.Fatalf("failed to write partial record: %v", err)
	}

	records, err := w.Replay()
	if err != nil {
		t.Fatalf("replay should tolerate a truncated tail, got error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 clean record before the truncated tail, got %d", len(records))
	}
}

func TestResetEmptiesLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wal")

	w, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open WAL: %v", err)
	}
	defer w.Close()

	if err := w.Append("key1", "value1"); err != nil {
		t.Fatalf("failed to append: %v", err)
	}
	if err := w.Reset(); err != nil {
		t.Fatalf("failed to reset: %v", err)
	}

	records, err := w.Replay()
	if err != nil {
		t.Fatalf("failed to replay: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty log after reset, got %d records", len(records))
	}
}
