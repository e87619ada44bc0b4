// Package btree implements a classic B-Tree, parameterized by minimum
// degree t, that serves both as a standalone durable engine and as the
// in-memory memtable for the LSM engine. Durability for the standalone case
// comes from a write-ahead log replayed on Open.
package btree

import (
	"fmt"
	"sync"

	"github.com/adrienschuler/storage-engine/pkg/kv"
	"github.com/adrienschuler/storage-engine/pkg/wal"
)

// DefaultDegree is the minimum degree used when opening a B-Tree without an
// explicit override — every non-root node holds between t-1 and 2t-1 keys.
const DefaultDegree = 5

// Entry is a single key-value pair, as returned by Items in ascending key
// order.
type Entry struct {
	Key   string
	Value string
}

type node struct {
	leaf     bool
	keys     []string
	values   []string
	children []*node
}

// BTree is an in-memory ordered map, backed by a write-ahead log for crash
// recovery. It is single-threaded and non-reentrant: callers must not
// invoke its methods concurrently from multiple goroutines.
type BTree struct {
	root *node
	t    int
	wal  *wal.WAL
	mu   sync.Mutex
}

// Open creates a B-Tree of minimum degree t, opening (or creating) the WAL
// at walPath and replaying it to reconstruct prior state.
func Open(t int, walPath string) (*BTree, error) {
	if t < 2 {
		t = 2
	}
	w, err := wal.Open(walPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open btree WAL: %w", err)
	}

	bt := &BTree{
		root: &node{leaf: true},
		t:    t,
		wal:  w,
	}

	records, err := w.Replay()
	if err != nil {
		return nil, fmt.Errorf("failed to replay btree WAL: %w", err)
	}
	for _, rec := range records {
		if rec.Op == "insert" {
			bt.insert(rec.Key, rec.Value, false)
		}
	}

	return bt, nil
}

// WAL returns the write-ahead log backing this tree. The LSM engine uses
// this to reset the log at flush time.
func (bt *BTree) WAL() *wal.WAL {
	return bt.wal
}

// NewEmpty constructs a fresh, empty B-Tree backed by an already-open WAL,
// without replaying it. The LSM engine uses this immediately after a flush:
// the old WAL's records have just been made redundant by a call to its
// Reset method, so there is nothing to recover and no need to reopen the
// file.
func NewEmpty(t int, w *wal.WAL) *BTree {
	if t < 2 {
		t = 2
	}
	return &BTree{root: &node{leaf: true}, t: t, wal: w}
}

// Put stores key->value, overwriting any existing value for key. The write
// is appended to the WAL and flushed before Put returns.
func (bt *BTree) Put(key, value string) error {
	bt.mu.Lock()
	defer bt.mu.Unlock()
	return bt.insert(key, value, true)
}

// Get retrieves the value stored for key. It does not interpret the
// tombstone sentinel — callers using the B-Tree directly as an engine must
// check for kv.Tombstone themselves, per the engine contract.
func (bt *BTree) Get(key string) (string, bool) {
	bt.mu.Lock()
	defer bt.mu.Unlock()
	return search(bt.root, key)
}

// Delete records key as deleted by inserting the tombstone sentinel; the
// B-Tree never removes keys structurally.
func (bt *BTree) Delete(key string) error {
	return bt.Put(key, kv.Tombstone)
}

// Close releases the WAL file handle.
func (bt *BTree) Close() error {
	bt.mu.Lock()
	defer bt.mu.Unlock()
	return bt.wal.Close()
}

// Items returns every key-value pair in ascending key order, via in-order
// traversal.
func (bt *BTree) Items() []Entry {
	bt.mu.Lock()
	defer bt.mu.Unlock()
	var out []Entry
	collect(bt.root, &out)
	return out
}

// Len returns the number of keys currently in the tree.
func (bt *BTree) Len() int {
	bt.mu.Lock()
	defer bt.mu.Unlock()
	return count(bt.root)
}

func count(x *node) int {
	n := len(x.keys)
	if !x.leaf {
		for _, c := range x.children {
			n += count(c)
		}
	}
	return n
}

func collect(x *node, out *[]Entry) {
	if x.leaf {
		for i, k := range x.keys {
			*out = append(*out, Entry{Key: k, Value: x.values[i]})
		}
		return
	}
	for i, k := range x.keys {
		collect(x.children[i], out)
		*out = append(*out, Entry{Key: k, Value: x.values[i]})
	}
	collect(x.children[len(x.keys)], out)
}

// insert finds-and-updates an existing key in place, or inserts a new one,
// splitting the root first if it is already full. When logWAL is true the
// write is appended to the WAL first; recovery passes false to replay
// without re-logging.
func (bt *BTree) insert(k, v string, logWAL bool) error {
	if logWAL {
		if err := bt.wal.Append(k, v); err != nil {
			return fmt.Errorf("failed to append btree WAL record: %w", err)
		}
	}

	if updateInPlace(bt.root, k, v) {
		return nil
	}

	root := bt.root
	if len(root.keys) == (2*bt.t)-1 {
		newRoot := &node{children: []*node{root}}
		bt.root = newRoot
		splitChild(newRoot, 0, bt.t)
		insertNonFull(newRoot, k, v, bt.t)
	} else {
		insertNonFull(root, k, v, bt.t)
	}
	return nil
}

// updateInPlace finds k in the tree and, if present, overwrites its value
// without any structural change.
func updateInPlace(x *node, k, v string) bool {
	i := 0
	for i < len(x.keys) && k > x.keys[i] {
		i++
	}
	if i < len(x.keys) && k == x.keys[i] {
		x.values[i] = v
		return true
	}
	if x.leaf {
		return false
	}
	return updateInPlace(x.children[i], k, v)
}

// search performs the linear-scan-per-node lookup described by the B-Tree
// design: find the least index i with k <= keys[i], return on equality,
// else descend or report absent at a leaf.
func search(x *node, k string) (string, bool) {
	i := 0
	for i < len(x.keys) && k > x.keys[i] {
		i++
	}
	if i < len(x.keys) && k == x.keys[i] {
		return x.values[i], true
	}
	if x.leaf {
		return "", false
	}
	return search(x.children[i], k)
}

// insertNonFull inserts (k, v) into a subtree rooted at x, which is assumed
// not to be full. On a leaf it shifts larger keys right and places the pair
// in sorted position; on an internal node it descends to the child that
// would contain k, pre-splitting that child if it is full.
func insertNonFull(x *node, k, v string, t int) {
	i := len(x.keys) - 1
	if x.leaf {
		x.keys = append(x.keys, "")
		x.values = append(x.values, "")
		for i >= 0 && k < x.keys[i] {
			x.keys[i+1] = x.keys[i]
			x.values[i+1] = x.values[i]
			i--
		}
		x.keys[i+1] = k
		x.values[i+1] = v
		return
	}

	for i >= 0 && k < x.keys[i] {
		i--
	}
	i++
	if len(x.children[i].keys) == (2*t)-1 {
		splitChild(x, i, t)
		if k > x.keys[i] {
			i++
		}
	}
	insertNonFull(x.children[i], k, v, t)
}

// splitChild splits the full child y = x.children[i] of degree t: the upper
// half of y's keys/values (and children, if internal) move to a new sibling
// z, the median key/value is promoted into x at index i, and z is inserted
// into x.children at i+1.
func splitChild(x *node, i, t int) {
	y := x.children[i]
	z := &node{leaf: y.leaf}

	z.keys = append(z.keys, y.keys[t:]...)
	z.values = append(z.values, y.values[t:]...)
	if !y.leaf {
		z.children = append(z.children, y.children[t:]...)
	}

	promotedKey := y.keys[t-1]
	promotedValue := y.values[t-1]

	y.keys = y.keys[:t-1]
	y.values = y.values[:t-1]
	if !y.leaf {
		y.children = y.children[:t]
	}

	x.children = append(x.children, nil)
	copy(x.children[i+2:], x.children[i+1:])
	x.children[i+1] = z

	x.keys = append(x.keys, "")
	copy(x.keys[i+1:], x.keys[i:])
	x.keys[i] = promotedKey

	x.values = append(x.values, "")
	copy(x.values[i+1:], x.values[i:])
	x.values[i] = promotedValue
}
