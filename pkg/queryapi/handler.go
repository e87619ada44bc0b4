package queryapi

import (
	"encoding/json"
	"net/http"

	"github.com/graphql-go/graphql"

	"github.com/adrienschuler/storage-engine/pkg/engine"
)

// Handler is an HTTP handler for GraphQL requests against one engine.
type Handler struct {
	schema graphql.Schema
}

// NewHandler builds the schema for eng and returns an HTTP handler for it.
func NewHandler(eng engine.Engine) (*Handler, error) {
	schema, err := Schema(eng)
	if err != nil {
		return nil, err
	}
	return &Handler{schema: schema}, nil
}

// request is a GraphQL-over-HTTP request body.
type request struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName"`
	Variables     map[string]interface{} `json:"variables"`
}

// ServeHTTP executes a GraphQL query against the wrapped engine.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "GraphQL only accepts POST requests", http.StatusMethodNotAllowed)
		return
	}

	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result := graphql.Do(graphql.Params{
		Schema:         h.schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        r.Context(),
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"errors": []map[string]interface{}{{"message": message}},
	})
}
