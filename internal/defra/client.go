// Package defra provides an HTTP/GraphQL client for DefraDB plus the
// container lifecycle and buffered write machinery the rest of the
// server builds on.
package defra

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrUnhealthy is returned when the DefraDB health check fails.
	ErrUnhealthy = errors.New("defra health check failed")

	// ErrSinkClosed is returned when writes are attempted on a closed sink.
	ErrSinkClosed = errors.New("sink closed")
)

// Client speaks DefraDB's HTTP GraphQL API.
type Client struct {
	url        string
	httpClient *http.Client
}

// NewClient creates a client for the DefraDB node at url.
func NewClient(url string) *Client {
	return &Client{
		url: strings.TrimSuffix(url, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GQLRequest is the body of a GraphQL POST.
type GQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// GQLResponse is a GraphQL response envelope.
type GQLResponse struct {
	Data   map[string]any `json:"data,omitempty"`
	Errors []GQLError     `json:"errors,omitempty"`
}

// GQLError is a single GraphQL error entry.
type GQLError struct {
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}

// Error returns the first error message, or "" when the response succeeded.
func (r *GQLResponse) Error() string {
	if len(r.Errors) == 0 {
		return ""
	}
	return r.Errors[0].Message
}

// HealthCheck probes the node's health endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.url+"/health-check", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnhealthy, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, resp.StatusCode)
	}
	return nil
}

// AddSchema registers a GraphQL schema with the node. Re-adding an
// existing schema is an error DefraDB reports in the response body.
func (c *Client) AddSchema(ctx context.Context, schema string) error {
	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/api/v0/schema", strings.NewReader(schema))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("schema error (status %d): %s", resp.StatusCode, string(body))
	}
	return nil
}

// Execute sends a GraphQL request and decodes the response envelope.
func (c *Client) Execute(ctx context.Context, query string, variables map[string]any) (*GQLResponse, error) {
	body, err := json.Marshal(GQLRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/api/v0/graphql", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("defra server error (status %d): %s", resp.StatusCode, string(respBody))
	}
	if len(respBody) == 0 {
		return nil, fmt.Errorf("defra returned empty response (status %d)", resp.StatusCode)
	}

	var gqlResp GQLResponse
	if err := json.Unmarshal(respBody, &gqlResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w (body: %s)", err, string(respBody))
	}
	return &gqlResp, nil
}

// Query executes a read-only query with no variables.
func (c *Client) Query(ctx context.Context, query string) (*GQLResponse, error) {
	return c.Execute(ctx, query, nil)
}

// Mutation executes a mutation.
func (c *Client) Mutation(ctx context.Context, mutation string, variables map[string]any) (*GQLResponse, error) {
	return c.Execute(ctx, mutation, variables)
}

// Create inserts a document into a collection and returns its docID.
func (c *Client) Create(ctx context.Context, collection string, input map[string]any) (string, error) {
	inputGQL, err := mapToGraphQLInput(input)
	if err != nil {
		return "", fmt.Errorf("failed to build input: %w", err)
	}
	query := fmt.Sprintf(`mutation { create_%s(input: %s) { _docID } }`, collection, inputGQL)

	resp, err := c.Execute(ctx, query, nil)
	if err != nil {
		return "", err
	}
	if msg := resp.Error(); msg != "" {
		return "", fmt.Errorf("create error: %s", msg)
	}

	if docs, ok := resp.Data["create_"+collection].([]any); ok && len(docs) > 0 {
		if doc, ok := docs[0].(map[string]any); ok {
			if docID, ok := doc["_docID"].(string); ok {
				return docID, nil
			}
		}
	}
	return "", fmt.Errorf("unexpected response format: %+v", resp.Data)
}

// Update patches a document in place by docID.
func (c *Client) Update(ctx context.Context, collection, docID string, input map[string]any) error {
	inputGQL, err := mapToGraphQLInput(input)
	if err != nil {
		return fmt.Errorf("failed to build input: %w", err)
	}
	query := fmt.Sprintf(`mutation { update_%s(docID: %q, input: %s) { _docID } }`, collection, docID, inputGQL)

	resp, err := c.Execute(ctx, query, nil)
	if err != nil {
		return err
	}
	if msg := resp.Error(); msg != "" {
		return fmt.Errorf("update error: %s", msg)
	}
	return nil
}

// Delete removes a document by docID.
func (c *Client) Delete(ctx context.Context, collection, docID string) error {
	query := fmt.Sprintf(`mutation { delete_%s(docID: %q) { _docID } }`, collection, docID)

	resp, err := c.Execute(ctx, query, nil)
	if err != nil {
		return err
	}
	if msg := resp.Error(); msg != "" {
		return fmt.Errorf("delete error: %s", msg)
	}
	return nil
}

// Upsert updates the single document matching filter, or creates one
// from createInput when no document matches. Returns the docID.
func (c *Client) Upsert(ctx context.Context, collection string, filter, createInput, updateInput map[string]any) (string, error) {
	filterGQL, err := mapToGraphQLInput(filter)
	if err != nil {
		return "", fmt.Errorf("failed to build filter: %w", err)
	}
	createGQL, err := mapToGraphQLInput(createInput)
	if err != nil {
		return "", fmt.Errorf("failed to build create input: %w", err)
	}
	updateGQL, err := mapToGraphQLInput(updateInput)
	if err != nil {
		return "", fmt.Errorf("failed to build update input: %w", err)
	}

	query := fmt.Sprintf(`mutation { upsert_%s(filter: %s, create: %s, update: %s) { _docID } }`,
		collection, filterGQL, createGQL, updateGQL)

	resp, err := c.Execute(ctx, query, nil)
	if err != nil {
		return "", err
	}
	if msg := resp.Error(); msg != "" {
		return "", fmt.Errorf("upsert error: %s", msg)
	}

	if docs, ok := resp.Data["upsert_"+collection].([]any); ok && len(docs) > 0 {
		if doc, ok := docs[0].(map[string]any); ok {
			if docID, ok := doc["_docID"].(string); ok {
				return docID, nil
			}
		}
	}
	return "", fmt.Errorf("unexpected response format: %+v", resp.Data)
}

// mapToGraphQLInput renders a map as a GraphQL input object literal.
func mapToGraphQLInput(input map[string]any) (string, error) {
	var parts []string
	for k, v := range input {
		valStr, err := valueToGraphQL(v)
		if err != nil {
			return "", fmt.Errorf("failed to convert value for key %q: %w", k, err)
		}
		parts = append(parts, fmt.Sprintf("%s: %s", k, valStr))
	}
	return "{" + strings.Join(parts, ", ") + "}", nil
}

// valueToGraphQL renders a Go value as a GraphQL literal. Strings go
// through JSON encoding since Go's %q emits escapes GraphQL rejects.
func valueToGraphQL(v any) (string, error) {
	switch val := v.(type) {
	case string:
		b, err := json.Marshal(val)
		if err != nil {
			return "", fmt.Errorf("failed to marshal string: %w", err)
		}
		return string(b), nil
	case int:
		return fmt.Sprintf("%d", val), nil
	case int64:
		return fmt.Sprintf("%d", val), nil
	case float64:
		return fmt.Sprintf("%v", val), nil
	case bool:
		return fmt.Sprintf("%v", val), nil
	case map[string]any:
		return mapToGraphQLInput(val)
	case []any:
		var items []string
		for _, item := range val {
			itemStr, err := valueToGraphQL(item)
			if err != nil {
				return "", err
			}
			items = append(items, itemStr)
		}
		return "[" + strings.Join(items, ", ") + "]", nil
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return "", fmt.Errorf("failed to marshal value: %w", err)
		}
		return string(b), nil
	}
}
