// Package queryapi exposes a read-only GraphQL view over an opened storage
// engine: point lookups and, where the engine supports it, fuzzy lookups.
package queryapi

import (
	"fmt"

	"github.com/graphql-go/graphql"

	"github.com/adrienschuler/storage-engine/pkg/engine"
)

// Schema builds the GraphQL schema for eng: a `get` query and a `fuzzyGet`
// query, both read-only — this API never mutates the engine.
func Schema(eng engine.Engine) (graphql.Schema, error) {
	entryType := graphql.NewObject(graphql.ObjectConfig{
		Name:        "Entry",
		Description: "A single key-value pair read from the engine",
		Fields: graphql.Fields{
			"key": &graphql.Field{
				Type:        graphql.NewNonNull(graphql.String),
				Description: "The key",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(entry).Key, nil
				},
			},
			"value": &graphql.Field{
				Type:        graphql.NewNonNull(graphql.String),
				Description: "The stored value",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(entry).Value, nil
				},
			},
		},
	})

	resolver := NewResolver(eng)

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name:        "Query",
		Description: "Root query type for the storage engine",
		Fields: graphql.Fields{
			"get": &graphql.Field{
				Type:        entryType,
				Description: "Look up a single key; null if absent",
				Args: graphql.FieldConfigArgument{
					"key": &graphql.ArgumentConfig{
						Type: graphql.NewNonNull(graphql.String),
					},
				},
				Resolve: resolver.Get,
			},
			"fuzzyGet": &graphql.Field{
				Type:        graphql.NewList(graphql.NewNonNull(entryType)),
				Description: "Find keys within maxDistance Levenshtein edits of key (LSM engines only)",
				Args: graphql.FieldConfigArgument{
					"key": &graphql.ArgumentConfig{
						Type: graphql.NewNonNull(graphql.String),
					},
					"maxDistance": &graphql.ArgumentConfig{
						Type: graphql.NewNonNull(graphql.Int),
					},
				},
				Resolve: resolver.FuzzyGet,
			},
		},
	})

	schema, err := graphql.NewSchema(graphql.SchemaConfig{Query: queryType})
	if err != nil {
		return graphql.Schema{}, fmt.Errorf("failed to create GraphQL schema: %w", err)
	}
	return schema, nil
}
