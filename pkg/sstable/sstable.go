// Package sstable implements the immutable, sorted, on-disk segment format
// used by the LSM engine: a `.sst` data file of newline-delimited JSON
// records, a `.index` sparse index for seeking close to a key without
// scanning the whole file, and a `.bf` bloom filter sidecar for cheaply
// rejecting absent keys.
package sstable

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/adrienschuler/storage-engine/pkg/bloom"
)

// Stride is the sparse index density: every Stride-th record gets an index
// entry.
const Stride = 10

type indexEntry struct {
	Key    string `json:"key"`
	Offset int64  `json:"offset"`
}

// Entry is a single key-value record as consumed by BuildFromEntries and
// yielded by Iterator. Value may be the tombstone sentinel; callers that
// want delete semantics resolve it themselves via kv.Resolve.
type Entry struct {
	Key   string
	Value string
}

// SSTable is a handle onto an on-disk segment: its data file path plus the
// sparse index and bloom filter loaded into memory.
type SSTable struct {
	path  string
	index []indexEntry
	bloom *bloom.Filter
}

func indexPath(path string) string {
	return strings.TrimSuffix(path, ".sst") + ".index"
}

func bloomPath(path string) string {
	return strings.TrimSuffix(path, ".sst") + ".bf"
}

// Writer builds a new SSTable from entries supplied in ascending key order.
type Writer struct {
	path   string
	file   *os.File
	buf    *bufio.Writer
	bloom  *bloom.Filter
	index  []indexEntry
	offset int64
	count  int
}

// NewWriter creates the data file at path, ready to receive Write calls.
// expectedCount sizes the bloom filter; it need not be exact.
func NewWriter(path string, expectedCount int) (*Writer, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create sstable file: %w", err)
	}
	return &Writer{
		path:  path,
		file:  file,
		buf:   bufio.NewWriter(file),
		bloom: bloom.NewForCount(expectedCount),
	}, nil
}

// Write appends a record. Entries must be supplied in ascending key order;
// Writer does not sort.
func (w *Writer) Write(key, value string) error {
	if w.count%Stride == 0 {
		w.index = append(w.index, indexEntry{Key: key, Offset: w.offset})
	}

	line, err := json.Marshal(map[string]string{key: value})
	if err != nil {
		return fmt.Errorf("failed to encode sstable record: %w", err)
	}
	line = append(line, '\n')

	n, err := w.buf.Write(line)
	if err != nil {
		return fmt.Errorf("failed to write sstable record: %w", err)
	}

	w.bloom.Add(key)
	w.offset += int64(n)
	w.count++
	return nil
}

// Finalize flushes and closes the data file, writes the sparse index and
// bloom filter sidecars, and returns a reader handle onto the new segment.
func (w *Writer) Finalize() (*SSTable, error) {
	if err := w.buf.Flush(); err != nil {
		return nil, fmt.Errorf("failed to flush sstable data: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return nil, fmt.Errorf("failed to sync sstable data: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close sstable data file: %w", err)
	}

	indexData, err := json.Marshal(w.index)
	if err != nil {
		return nil, fmt.Errorf("failed to encode sparse index: %w", err)
	}
	if err := os.WriteFile(indexPath(w.path), indexData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write sparse index: %w", err)
	}

	bloomData, err := json.Marshal(w.bloom)
	if err != nil {
		return nil, fmt.Errorf("failed to encode bloom filter: %w", err)
	}
	if err := os.WriteFile(bloomPath(w.path), bloomData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write bloom filter: %w", err)
	}

	return &SSTable{path: w.path, index: w.index, bloom: w.bloom}, nil
}

// BuildFromEntries writes a complete SSTable in one call; entries must
// already be sorted ascending by key.
func BuildFromEntries(path string, entries []Entry) (*SSTable, error) {
	w, err := NewWriter(path, len(entries))
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if err := w.Write(e.Key, e.Value); err != nil {
			return nil, err
		}
	}
	return w.Finalize()
}

// Open loads an existing segment's sparse index and bloom filter into
// memory. If the index sidecar is missing it is rebuilt by scanning the
// data file.
func Open(path string) (*SSTable, error) {
	sst := &SSTable{path: path}

	if data, err := os.ReadFile(bloomPath(path)); err == nil {
		var f bloom.Filter
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("failed to decode bloom filter for %s: %w", path, err)
		}
		sst.bloom = &f
	}

	if data, err := os.ReadFile(indexPath(path)); err == nil {
		if err := json.Unmarshal(data, &sst.index); err != nil {
			return nil, fmt.Errorf("failed to decode sparse index for %s: %w", path, err)
		}
	} else {
		index, err := buildIndex(path)
		if err != nil {
			return nil, err
		}
		sst.index = index
	}

	return sst, nil
}

func buildIndex(path string) ([]indexEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sstable data for indexing: %w", err)
	}
	defer file.Close()

	var index []indexEntry
	var offset int64
	i := 0
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if i%Stride == 0 {
			key, _, err := decodeRecord(line)
			if err != nil {
				return nil, fmt.Errorf("malformed sstable record while indexing %s: %w", path, err)
			}
			index = append(index, indexEntry{Key: key, Offset: offset})
		}
		offset += int64(len(line)) + 1
		i++
	}
	return index, scanner.Err()
}

// Path returns the data file's path.
func (s *SSTable) Path() string {
	return s.path
}

// Get performs a point read: bloom filter rejection, binary search on the
// sparse index to find a scan start offset, then a bounded linear scan.
// The returned value is raw — a tombstone is reported as found with
// value == kv.Tombstone, not converted to absent, so that callers can
// correctly shadow older segments on a delete (see LSM read path).
func (s *SSTable) Get(key string) (string, bool, error) {
	if s.bloom != nil && !s.bloom.Contains(key) {
		return "", false, nil
	}
	if len(s.index) == 0 {
		return "", false, nil
	}

	idx := sort.Search(len(s.index), func(i int) bool {
		return s.index[i].Key > key
	}) - 1
	startOffset := int64(0)
	if idx >= 0 {
		startOffset = s.index[idx].Offset
	}

	file, err := os.Open(s.path)
	if err != nil {
		return "", false, fmt.Errorf("failed to open sstable data: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(startOffset, io.SeekStart); err != nil {
		return "", false, fmt.Errorf("failed to seek sstable data: %w", err)
	}

	reader := bufio.NewReader(file)
	pos := startOffset
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) == 0 && err != nil {
			break
		}
		trimmed := line
		if len(trimmed) > 0 && trimmed[len(trimmed)-1] == '\n' {
			trimmed = trimmed[:len(trimmed)-1]
		}
		pos += int64(len(line))

		if len(trimmed) > 0 {
			recordKey, value, decodeErr := decodeRecord(trimmed)
			if decodeErr != nil {
				return "", false, fmt.Errorf("malformed sstable record in %s: %w", s.path, decodeErr)
			}
			if recordKey == key {
				return value, true, nil
			}
			if recordKey > key {
				return "", false, nil
			}
		}

		if idx+1 < len(s.index) && pos >= s.index[idx+1].Offset {
			return "", false, nil
		}
		if err != nil {
			break
		}
	}
	return "", false, nil
}

func decodeRecord(line []byte) (string, string, error) {
	var record map[string]string
	if err := json.Unmarshal(line, &record); err != nil {
		return "", "", err
	}
	for k, v := range record {
		return k, v, nil
	}
	return "", "", fmt.Errorf("empty sstable record")
}

// Iterator yields every record in a segment in ascending key order.
type Iterator struct {
	file    *os.File
	scanner *bufio.Scanner
	current Entry
	err     error
}

// Iterator opens a fresh sequential scan over the segment's data file.
func (s *SSTable) Iterator() (*Iterator, error) {
	file, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sstable data: %w", err)
	}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &Iterator{file: file, scanner: scanner}, nil
}

// Next advances the iterator, returning false at end of segment or on
// error (check Err after a false return).
func (it *Iterator) Next() bool {
	for it.scanner.Scan() {
		line := it.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		key, value, err := decodeRecord(line)
		if err != nil {
			it.err = fmt.Errorf("malformed sstable record: %w", err)
			return false
		}
		it.current = Entry{Key: key, Value: value}
		return true
	}
	it.err = it.scanner.Err()
	return false
}

// Entry returns the record most recently yielded by Next.
func (it *Iterator) Entry() Entry {
	return it.current
}

// Err reports any error encountered during iteration.
func (it *Iterator) Err() error {
	return it.err
}

// Close releases the iterator's file handle.
func (it *Iterator) Close() error {
	return it.file.Close()
}

// Rename moves a segment's data file and its index and bloom sidecars from
// oldPath to newPath (both `.sst` paths). Used by compaction to give a
// temporary merge result its permanent segment name only after it has been
// fully written and synced.
func Rename(oldPath, newPath string) error {
	if err := os.Rename(oldPath, newPath); err != nil {
		return fmt.Errorf("failed to rename sstable data: %w", err)
	}
	if err := os.Rename(indexPath(oldPath), indexPath(newPath)); err != nil {
		return fmt.Errorf("failed to rename sparse index: %w", err)
	}
	if err := os.Rename(bloomPath(oldPath), bloomPath(newPath)); err != nil {
		return fmt.Errorf("failed to rename bloom filter: %w", err)
	}
	return nil
}

// Remove deletes the segment's data file and its index and bloom sidecars.
func (s *SSTable) Remove() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove sstable data: %w", err)
	}
	if err := os.Remove(indexPath(s.path)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove sparse index: %w", err)
	}
	if err := os.Remove(bloomPath(s.path)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove bloom filter: %w", err)
	}
	return nil
}
