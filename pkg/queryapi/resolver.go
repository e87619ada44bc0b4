package queryapi

import (
	"github.com/graphql-go/graphql"

	"github.com/adrienschuler/storage-engine/pkg/engine"
)

// Resolver binds GraphQL field resolution to an opened engine.
type Resolver struct {
	eng engine.Engine
}

// NewResolver wraps an already-open engine for query resolution.
func NewResolver(eng engine.Engine) *Resolver {
	return &Resolver{eng: eng}
}

// Get resolves the `get(key: String!)` query.
func (r *Resolver) Get(p graphql.ResolveParams) (interface{}, error) {
	key, _ := p.Args["key"].(string)

	value, found, err := r.eng.Get(key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return entry{Key: key, Value: value}, nil
}

// FuzzyGet resolves the `fuzzyGet(key: String!, maxDistance: Int!)` query.
// It requires the underlying engine to implement engine.FuzzyEngine.
func (r *Resolver) FuzzyGet(p graphql.ResolveParams) (interface{}, error) {
	key, _ := p.Args["key"].(string)
	maxDistance, _ := p.Args["maxDistance"].(int)

	fuzzy, ok := r.eng.(engine.FuzzyEngine)
	if !ok {
		return nil, ErrFuzzyUnsupported
	}

	pairs, err := fuzzy.FuzzyGet(key, maxDistance)
	if err != nil {
		return nil, err
	}

	out := make([]entry, len(pairs))
	for i, pair := range pairs {
		out[i] = entry{Key: pair.Key, Value: pair.Value}
	}
	return out, nil
}

// entry is the shape returned to the GraphQL layer for both queries.
type entry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}
