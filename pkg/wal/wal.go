// Package wal implements the write-ahead log that backs the B-Tree: an
// append-only file of newline-delimited JSON records, flushed after every
// write and replayed on open to reconstruct in-memory state.
package wal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// Record is a single WAL entry. op is always "insert" — a delete is encoded
// by the caller as an insert of the tombstone value.
type Record struct {
	Op    string `json:"op"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

// WAL is an append-only log, held open for the lifetime of its owning
// B-Tree.
type WAL struct {
	path string
	file *os.File
	mu   sync.Mutex
}

// Open opens (creating if necessary) the log at path for append, ready to
// accept writes. Call Replay separately to recover prior records.
func Open(path string) (*WAL, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAL file: %w", err)
	}
	return &WAL{path: path, file: file}, nil
}

// Append writes an insert record and flushes it to the OS before returning.
func (w *WAL) Append(key, value string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	line, err := json.Marshal(Record{Op: "insert", Key: key, Value: value})
	if err != nil {
		return fmt.Errorf("failed to encode WAL record: %w", err)
	}
	line = append(line, '\n')

	if _, err := w.file.Write(line); err != nil {
		return fmt.Errorf("failed to write WAL record: %w", err)
	}
	return w.file.Sync()
}

// Replay reads every record currently in the log, in order. A malformed
// line ends replay at that point rather than failing it outright, so a
// truncated tail from a crash mid-append does not block recovery of the
// records written before it.
func (w *WAL) Replay() ([]Record, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek WAL: %w", err)
	}
	defer w.file.Seek(0, io.SeekEnd)

	var records []Record
	scanner := bufio.NewScanner(w.file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			// Truncated or corrupted tail: stop here, keep what replayed cleanly.
			break
		}
		records = append(records, rec)
	}
	return records, nil
}

// Reset truncates the log to empty. The LSM engine calls this as the final
// step of a successful memtable flush: the flushed segment now supersedes
// every record the WAL held, so replaying them again would be both
// redundant and, worse, would resurrect a flushed-and-since-updated key.
func (w *WAL) Reset() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.file.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate WAL: %w", err)
	}
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek WAL: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.file.Sync(); err != nil {
		return err
	}
	return w.file.Close()
}

// Path returns the filesystem path backing this log.
func (w *WAL) Path() string {
	return w.path
}
