// Package graphql provides the HTTP GraphQL client used to reach the UPS
// bridge API that owns the NUT connections.
package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jamesprial/nut-mcp/internal/config"
)

const defaultTimeout = 30 * time.Second

// ErrUnauthorized is returned when the API rejects the configured key.
var ErrUnauthorized = errors.New("graphql: authentication failed (HTTP 401)")

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("graphql: unexpected HTTP status %d", e.StatusCode)
}

// Temporary reports whether retrying the request may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// HTTPClient sends GraphQL requests over HTTP.
type HTTPClient struct {
	httpClient *http.Client
	graphqlURL string
	apiKey     string
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient constructs an HTTPClient from the provided GraphQLConfig.
// It returns an error if cfg.URL is empty. When cfg.Timeout is zero or
// negative, a default timeout of 30 seconds is used.
func NewHTTPClient(cfg config.GraphQLConfig) (*HTTPClient, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("graphql: URL is required")
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	if cfg.Timeout <= 0 {
		timeout = defaultTimeout
	}

	return &HTTPClient{
		httpClient: &http.Client{Timeout: timeout},
		graphqlURL: normalizeURL(cfg.URL),
		apiKey:     cfg.APIKey,
	}, nil
}

// normalizeURL trims any trailing slash from rawURL and appends /graphql if
// the path does not already end with that suffix.
func normalizeURL(rawURL string) string {
	u := strings.TrimRight(rawURL, "/")
	if !strings.HasSuffix(u, "/graphql") {
		u += "/graphql"
	}
	return u
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []GraphQLError  `json:"errors"`
}

// Execute sends a query or mutation and returns the raw JSON of the "data"
// field. An empty API key sends no x-api-key header, for bridges that run
// without authentication.
func (c *HTTPClient) Execute(ctx context.Context, query string, variables map[string]any) ([]byte, error) {
	bodyBytes, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("graphql: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("graphql: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("graphql: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	var gqlResp graphqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&gqlResp); err != nil {
		return nil, fmt.Errorf("graphql: decode response: %w", err)
	}

	if len(gqlResp.Errors) > 0 {
		msgs := make([]string, len(gqlResp.Errors))
		for i, e := range gqlResp.Errors {
			msgs[i] = e.Message
		}
		return nil, fmt.Errorf("graphql: %s", strings.Join(msgs, "; "))
	}

	return []byte(gqlResp.Data), nil
}
