package graphql

import "context"

// GraphQLError represents a single error returned in a GraphQL response.
type GraphQLError struct {
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}

// Client executes GraphQL documents against the bridge API.
type Client interface {
	Execute(ctx context.Context, query string, variables map[string]any) ([]byte, error)
}
