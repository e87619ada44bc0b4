package engine

import "errors"

var (
	// ErrUnknownEngine is returned by Open when asked for a name other than
	// "btree" or "lsm".
	ErrUnknownEngine = errors.New("engine: unknown engine name")
)
