// Package lsm implements the log-structured merge engine: an in-memory
// B-Tree memtable backed by a WAL, flushed to immutable SSTable segments on
// disk once it crosses a size threshold, with k-way merge compaction and
// Levenshtein-based fuzzy lookup across the whole key space.
package lsm

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/adrienschuler/storage-engine/pkg/btree"
	"github.com/adrienschuler/storage-engine/pkg/kv"
	"github.com/adrienschuler/storage-engine/pkg/levenshtein"
	"github.com/adrienschuler/storage-engine/pkg/minheap"
	"github.com/adrienschuler/storage-engine/pkg/sstable"
)

// memtableDegree is the B-Tree minimum degree used for the memtable.
const memtableDegree = 5

// Config controls how an LSM tree is opened.
type Config struct {
	Dir               string
	MemtableThreshold int // flush the memtable once it holds this many keys
}

// DefaultConfig returns sensible defaults for a tree rooted at dir.
func DefaultConfig(dir string) *Config {
	return &Config{
		Dir:               dir,
		MemtableThreshold: 100,
	}
}

// Tree is an LSM engine instance. It is single-threaded from the caller's
// perspective in the sense that it does not run background flush or
// compaction workers — both happen synchronously, inline with Put and an
// explicit Compact call.
type Tree struct {
	dir               string
	memtableThreshold int
	memtable          *btree.BTree
	segments          []*sstable.SSTable // oldest first
	nextSegmentID     int
	mu                sync.Mutex
}

// Open loads (or creates) an LSM tree rooted at config.Dir: existing `.sst`
// segments are discovered and loaded oldest-to-newest, and the memtable is
// reconstructed from its WAL.
func Open(config *Config) (*Tree, error) {
	if config.MemtableThreshold <= 0 {
		config.MemtableThreshold = DefaultConfig(config.Dir).MemtableThreshold
	}
	if err := os.MkdirAll(config.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create lsm directory: %w", err)
	}

	segmentFiles, err := filepath.Glob(filepath.Join(config.Dir, "*.sst"))
	if err != nil {
		return nil, fmt.Errorf("failed to list segments: %w", err)
	}
	sort.Strings(segmentFiles)

	segments := make([]*sstable.SSTable, 0, len(segmentFiles))
	nextID := 0
	for _, path := range segmentFiles {
		seg, err := sstable.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open segment %s: %w", path, err)
		}
		segments = append(segments, seg)

		if id, err := segmentID(path); err == nil && id+1 > nextID {
			nextID = id + 1
		}
	}

	walPath := filepath.Join(config.Dir, "btree.wal")
	memtable, err := btree.Open(memtableDegree, walPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open memtable: %w", err)
	}

	return &Tree{
		dir:               config.Dir,
		memtableThreshold: config.MemtableThreshold,
		memtable:          memtable,
		segments:          segments,
		nextSegmentID:     nextID,
	}, nil
}

func (t *Tree) segmentPath(id int) string {
	return filepath.Join(t.dir, fmt.Sprintf("%05d.sst", id))
}

func segmentID(path string) (int, error) {
	base := strings.TrimSuffix(filepath.Base(path), ".sst")
	return strconv.Atoi(base)
}

// Put stores key->value in the memtable, flushing to a new segment if the
// memtable has reached its configured threshold.
func (t *Tree) Put(key, value string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.memtable.Put(key, value); err != nil {
		return err
	}
	if t.memtable.Len() >= t.memtableThreshold {
		return t.flushLocked()
	}
	return nil
}

// Delete records key as deleted by storing the tombstone sentinel.
func (t *Tree) Delete(key string) error {
	return t.Put(key, kv.Tombstone)
}

// Get probes the memtable first; if key is present there — live or
// tombstoned — that is authoritative and the call returns immediately.
// Otherwise it walks segments newest to oldest; the first segment that
// reports the key present (bloom filter permitting) wins, again whether
// the stored value is live or a tombstone. This is what makes a delete
// shadow older segments even across an intervening flush or compaction.
func (t *Tree) Get(key string) (string, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if v, ok := t.memtable.Get(key); ok {
		value, ok := kv.Resolve(v, ok)
		return value, ok, nil
	}

	for i := len(t.segments) - 1; i >= 0; i-- {
		v, found, err := t.segments[i].Get(key)
		if err != nil {
			return "", false, fmt.Errorf("failed reading segment %s: %w", t.segments[i].Path(), err)
		}
		if found {
			value, ok := kv.Resolve(v, found)
			return value, ok, nil
		}
	}
	return "", false, nil
}

// Flush writes the current memtable to a new segment, then replaces it with
// an empty one sharing the same (now-truncated) WAL file. It is a no-op if
// the memtable is empty.
func (t *Tree) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.flushLocked()
}

func (t *Tree) flushLocked() error {
	items := t.memtable.Items()
	if len(items) == 0 {
		return nil
	}

	entries := make([]sstable.Entry, len(items))
	for i, it := range items {
		entries[i] = sstable.Entry{Key: it.Key, Value: it.Value}
	}

	seg, err := sstable.BuildFromEntries(t.segmentPath(t.nextSegmentID), entries)
	if err != nil {
		return fmt.Errorf("failed to flush memtable: %w", err)
	}
	t.segments = append(t.segments, seg)
	t.nextSegmentID++

	w := t.memtable.WAL()
	if err := w.Reset(); err != nil {
		return fmt.Errorf("failed to truncate WAL after flush: %w", err)
	}
	t.memtable = btree.NewEmpty(memtableDegree, w)
	return nil
}

// mergeItem is the heap element used during compaction's k-way merge. Ties
// on key break by segmentIdx ascending, so — since segments are ordered
// oldest first — the entry from the newest segment sharing a key is always
// popped last among the tied group, and so is the one left standing when
// duplicates collapse.
type mergeItem struct {
	key        string
	value      string
	segmentIdx int
}

func (m mergeItem) Less(other minheap.Item) bool {
	o := other.(mergeItem)
	if m.key != o.key {
		return m.key < o.key
	}
	return m.segmentIdx < o.segmentIdx
}

// Compact merges every segment into a single new one via a k-way merge over
// their sorted iterators, dropping shadowed writes and tombstoned keys, and
// removes the superseded segments. It is a no-op if there are fewer than
// two segments. The merged result is written under a temporary name and
// renamed into place only once fully written, so a crash mid-compaction
// never leaves fewer durable copies of any key than existed before it.
func (t *Tree) Compact() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.segments) < 2 {
		return nil
	}

	iterators := make([]*sstable.Iterator, len(t.segments))
	for i, seg := range t.segments {
		it, err := seg.Iterator()
		if err != nil {
			for _, opened := range iterators[:i] {
				opened.Close()
			}
			return fmt.Errorf("failed to open segment iterator: %w", err)
		}
		iterators[i] = it
	}
	defer func() {
		for _, it := range iterators {
			it.Close()
		}
	}()

	heap := minheap.New()
	for i, it := range iterators {
		if it.Next() {
			e := it.Entry()
			heap.Push(mergeItem{key: e.Key, value: e.Value, segmentIdx: i})
		} else if err := it.Err(); err != nil {
			return fmt.Errorf("failed reading segment during compaction: %w", err)
		}
	}

	var merged []sstable.Entry
	var lastKey, lastValue string
	haveLast := false

	flushLast := func() {
		if haveLast && lastValue != kv.Tombstone {
			merged = append(merged, sstable.Entry{Key: lastKey, Value: lastValue})
		}
	}

	for heap.Len() > 0 {
		popped, err := heap.Pop()
		if err != nil {
			return fmt.Errorf("compaction heap error: %w", err)
		}
		item := popped.(mergeItem)

		if haveLast && item.key != lastKey {
			flushLast()
		}
		lastKey, lastValue, haveLast = item.key, item.value, true

		it := iterators[item.segmentIdx]
		if it.Next() {
			e := it.Entry()
			heap.Push(mergeItem{key: e.Key, value: e.Value, segmentIdx: item.segmentIdx})
		} else if err := it.Err(); err != nil {
			return fmt.Errorf("failed reading segment during compaction: %w", err)
		}
	}
	flushLast()

	tempPath := t.segmentPath(t.nextSegmentID) + ".tmp"
	if _, err := sstable.BuildFromEntries(tempPath, merged); err != nil {
		return fmt.Errorf("failed to write compacted segment: %w", err)
	}

	finalPath := t.segmentPath(t.nextSegmentID)
	if err := sstable.Rename(tempPath, finalPath); err != nil {
		return fmt.Errorf("failed to finalize compacted segment: %w", err)
	}
	newSeg, err := sstable.Open(finalPath)
	if err != nil {
		return fmt.Errorf("failed to open compacted segment: %w", err)
	}

	oldSegments := t.segments
	t.segments = []*sstable.SSTable{newSeg}
	t.nextSegmentID++

	for _, seg := range oldSegments {
		if err := seg.Remove(); err != nil {
			return fmt.Errorf("failed to remove superseded segment %s: %w", seg.Path(), err)
		}
	}
	return nil
}

// FuzzyGet returns every live (key, value) pair whose key is within
// maxDistance Levenshtein edits of searchKey. The memtable is scanned
// first, then segments newest to oldest; each key is evaluated at most
// once, which reproduces the engine's newest-wins visibility rule for
// fuzzy matches too.
func (t *Tree) FuzzyGet(searchKey string, maxDistance int) ([]kv.Pair, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var results []kv.Pair
	checked := make(map[string]bool)

	for _, item := range t.memtable.Items() {
		if checked[item.Key] {
			continue
		}
		checked[item.Key] = true
		if levenshtein.Distance(searchKey, item.Key) <= maxDistance && item.Value != kv.Tombstone {
			results = append(results, kv.Pair{Key: item.Key, Value: item.Value})
		}
	}

	for i := len(t.segments) - 1; i >= 0; i-- {
		it, err := t.segments[i].Iterator()
		if err != nil {
			return nil, fmt.Errorf("failed to open segment iterator: %w", err)
		}
		for it.Next() {
			e := it.Entry()
			if checked[e.Key] {
				continue
			}
			checked[e.Key] = true
			if levenshtein.Distance(searchKey, e.Key) <= maxDistance && e.Value != kv.Tombstone {
				results = append(results, kv.Pair{Key: e.Key, Value: e.Value})
			}
		}
		iterErr := it.Err()
		it.Close()
		if iterErr != nil {
			return nil, fmt.Errorf("failed reading segment during fuzzy_get: %w", iterErr)
		}
	}

	return results, nil
}

// Close flushes any remaining memtable contents to a segment and closes the
// WAL file handle.
func (t *Tree) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.memtable.Len() > 0 {
		if err := t.flushLocked(); err != nil {
			return err
		}
	}
	return t.memtable.Close()
}

// Stats reports a point-in-time snapshot of tree size, in the loose
// key-value shape the rest of this module uses for introspection
// endpoints.
func (t *Tree) Stats() map[string]interface{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	return map[string]interface{}{
		"memtable_size":   t.memtable.Len(),
		"num_segments":    len(t.segments),
		"next_segment_id": t.nextSegmentID,
	}
}
