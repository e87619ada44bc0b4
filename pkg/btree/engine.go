package btree

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrienschuler/storage-engine/pkg/kv"
)

// Engine adapts a BTree into the module's storage-engine contract: unlike
// the BTree itself, it resolves the tombstone sentinel on Get so callers
// going through pkg/engine see the same "absent means absent" behavior the
// LSM engine gives them.
type Engine struct {
	tree *BTree
}

// NewEngine opens a standalone B-Tree engine rooted at dir, recovering from
// dir/btree.wal if present.
func NewEngine(dir string) (*Engine, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create engine directory: %w", err)
	}
	tree, err := Open(DefaultDegree, filepath.Join(dir, "btree.wal"))
	if err != nil {
		return nil, err
	}
	return &Engine{tree: tree}, nil
}

// Put stores key->value.
func (e *Engine) Put(key, value string) error {
	return e.tree.Put(key, value)
}

// Get retrieves the value stored for key, reporting a tombstoned key as
// absent.
func (e *Engine) Get(key string) (string, bool, error) {
	v, ok := e.tree.Get(key)
	value, ok := kv.Resolve(v, ok)
	return value, ok, nil
}

// Delete marks key as deleted.
func (e *Engine) Delete(key string) error {
	return e.tree.Delete(key)
}

// Close releases the underlying WAL handle.
func (e *Engine) Close() error {
	return e.tree.Close()
}
