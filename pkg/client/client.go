// Package client is the HTTP counterpart the CLI and the shard-sync
// follower side dial against: a thin one-method-per-call wrapper over the
// collection-management and shard-sync REST surfaces in pkg/api.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 10 * time.Second

// Client wraps a collection-management/shard-sync REST endpoint for easy
// CLI and shard-sync usage.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a client dialing the REST server at addr (e.g.
// "http://127.0.0.1:8599").
func NewClient(addr string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(addr, "/"),
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: encoding request: %w", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("client: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errBody struct {
			ErrorMessage string `json:"errorMessage"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		return &StatusError{Path: path, Code: resp.StatusCode, Message: errBody.ErrorMessage}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// StatusError is returned when the server answers with a non-2xx status;
// Code preserves the HTTP status for callers that need to branch on it
// (e.g. a 404 meaning "not found" vs any other failure).
type StatusError struct {
	Path    string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("client: %s: status %d: %s", e.Path, e.Code, e.Message)
}

// CollectionInfo is the subset of collection metadata the REST surface
// returns, decoded loosely so the client does not need to import
// pkg/types just to read a handful of fields.
type CollectionInfo struct {
	Name              string `json:"Name"`
	ID                uint64 `json:"ID"`
	ObjectID          uint64 `json:"ObjectID"`
	NumberOfShards    int    `json:"NumberOfShards"`
	ReplicationFactor int    `json:"ReplicationFactor"`
}

// CreateCollection creates a collection with the given name and options,
// matching the allow-listed POST /_api/collection body.
func (c *Client) CreateCollection(ctx context.Context, name string, opts map[string]any) (*CollectionInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	body := map[string]any{"name": name}
	for k, v := range opts {
		body[k] = v
	}
	var out CollectionInfo
	if err := c.do(ctx, http.MethodPost, "/_api/collection", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListCollections lists every registered collection.
func (c *Client) ListCollections(ctx context.Context) ([]CollectionInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var out struct {
		Result []CollectionInfo `json:"result"`
	}
	if err := c.do(ctx, http.MethodGet, "/_api/collection", nil, &out); err != nil {
		return nil, err
	}
	return out.Result, nil
}

// GetCollection fetches a single collection's properties.
func (c *Client) GetCollection(ctx context.Context, name string) (*CollectionInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var out CollectionInfo
	if err := c.do(ctx, http.MethodGet, "/_api/collection/"+name, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DocumentCount returns a collection's document count, via the count
// sub-resource.
func (c *Client) DocumentCount(ctx context.Context, name string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var out struct {
		Count int64 `json:"count"`
	}
	if err := c.do(ctx, http.MethodGet, "/_api/collection/"+name+"/count", nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// TruncateCollection empties a collection.
func (c *Client) TruncateCollection(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	return c.do(ctx, http.MethodPut, "/_api/collection/"+name+"/truncate", map[string]any{}, nil)
}

// DeleteCollection drops a collection.
func (c *Client) DeleteCollection(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	return c.do(ctx, http.MethodDelete, "/_api/collection/"+name, nil, nil)
}

// RenameCollection renames a collection.
func (c *Client) RenameCollection(ctx context.Context, oldName, newName string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	return c.do(ctx, http.MethodPut, "/_api/collection/"+oldName+"/rename", map[string]any{"name": newName}, nil)
}
