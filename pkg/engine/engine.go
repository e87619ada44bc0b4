// Package engine selects between the two storage engines this module
// provides — a standalone B-Tree and the LSM tree — behind one small
// interface, so callers never branch on which is in play.
package engine

import (
	"fmt"
	"strings"

	"github.com/adrienschuler/storage-engine/pkg/btree"
	"github.com/adrienschuler/storage-engine/pkg/kv"
	"github.com/adrienschuler/storage-engine/pkg/lsm"
)

// Engine is the capability set every storage engine in this module
// provides.
type Engine interface {
	Put(key, value string) error
	Get(key string) (string, bool, error)
	Delete(key string) error
	Close() error
}

// FuzzyEngine is an Engine that also supports approximate key lookup and
// explicit compaction — currently only the LSM tree. Callers type-assert
// for it rather than relying on the presence of a method at runtime.
type FuzzyEngine interface {
	Engine
	FuzzyGet(searchKey string, maxDistance int) ([]kv.Pair, error)
	Compact() error
}

// StatsProvider is an Engine that can report introspection counters.
// Currently only the LSM tree implements it; the standalone B-Tree has no
// segments or memtable threshold worth reporting.
type StatsProvider interface {
	Stats() map[string]interface{}
}

// Open dispatches on name ("btree" or "lsm", case-insensitive) and opens
// (or creates) the corresponding engine rooted at dir.
func Open(name, dir string) (Engine, error) {
	switch strings.ToLower(name) {
	case "btree":
		return btree.NewEngine(dir)
	case "lsm":
		return lsm.Open(lsm.DefaultConfig(dir))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, name)
	}
}
