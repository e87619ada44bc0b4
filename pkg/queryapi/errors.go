package queryapi

import "errors"

var (
	// ErrFuzzyUnsupported is returned when fuzzyGet is queried against an
	// engine that does not implement engine.FuzzyEngine (the standalone
	// B-Tree).
	ErrFuzzyUnsupported = errors.New("queryapi: fuzzyGet is not supported by this engine")
)
