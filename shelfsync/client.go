// Package shelfsync reconciles locally pending mutations against the remote
// server: it partitions pending records into creates, updates and deletions,
// pushes them through the batch endpoints and applies the per-item results
// back onto local rows.
// Copyright 2025 Athenaeum contributors
// SPDX-License-Identifier: Apache-2.0

package shelfsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// TokenFunc supplies a bearer token for a request.
type TokenFunc func(ctx context.Context) (string, error)

// Client talks to the remote sync and preference endpoints.
type Client struct {
	BaseURL string
	Token   TokenFunc
	HTTP    *http.Client

	logger *slog.Logger
}

// NewClient creates a client with a default HTTP timeout sized for batch
// uploads.
func NewClient(baseURL string, token TokenFunc) *Client {
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		HTTP:    &http.Client{Timeout: 120 * time.Second},
		logger:  slog.Default(),
	}
}

// SetLogger replaces the default logger.
func (c *Client) SetLogger(logger *slog.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// Push submits one partition of pending changes to the umbrella batch-sync
// endpoint and returns the per-item results.
func (c *Client) Push(ctx context.Context, req *PushRequest) (*PushResponse, error) {
	var resp PushResponse
	if err := c.doJSON(ctx, http.MethodPost, "/sync/push", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) != len(req.Changes) {
		return nil, &NetworkError{Op: "POST", URL: c.BaseURL + "/sync/push",
			Err: fmt.Errorf("result count mismatch: sent %d changes, got %d results", len(req.Changes), len(resp.Results))}
	}
	return &resp, nil
}

// GetPreferenceOptions fetches the read-only category/type reference data.
func (c *Client) GetPreferenceOptions(ctx context.Context) (*PreferenceOptions, error) {
	var opts PreferenceOptions
	if err := c.doJSON(ctx, http.MethodGet, "/preferences/options", nil, &opts); err != nil {
		return nil, err
	}
	return &opts, nil
}

// GetGenres fetches the catalog genre list.
func (c *Client) GetGenres(ctx context.Context) ([]string, error) {
	var genres []string
	if err := c.doJSON(ctx, http.MethodGet, "/preferences/genres", nil, &genres); err != nil {
		return nil, err
	}
	return genres, nil
}

// GetPreferences fetches all server-side preferences for initial hydration.
func (c *Client) GetPreferences(ctx context.Context) ([]RemotePreference, error) {
	var prefs []RemotePreference
	if err := c.doJSON(ctx, http.MethodGet, "/preferences", nil, &prefs); err != nil {
		return nil, err
	}
	return prefs, nil
}

// ListPreferences fetches server-side preferences grouped by category.
func (c *Client) ListPreferences(ctx context.Context) (map[string][]RemotePreference, error) {
	grouped := make(map[string][]RemotePreference)
	if err := c.doJSON(ctx, http.MethodGet, "/preferences/list", nil, &grouped); err != nil {
		return nil, err
	}
	return grouped, nil
}

// CreatePreference creates one preference and returns the created record
// with its assigned server identifier.
func (c *Client) CreatePreference(ctx context.Context, in *PreferenceInput) (*RemotePreference, error) {
	var pref RemotePreference
	if err := c.doJSON(ctx, http.MethodPost, "/preferences", in, &pref); err != nil {
		return nil, err
	}
	return &pref, nil
}

// DeletePreference deletes one preference by server identifier.
func (c *Client) DeletePreference(ctx context.Context, id int64) (*MessageResponse, error) {
	var msg MessageResponse
	if err := c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/preferences/%d", id), nil, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// BatchCreatePreferences submits a batch of preference creates and returns
// the per-item result list.
func (c *Client) BatchCreatePreferences(ctx context.Context, req *BatchPreferenceRequest) (*BatchPreferenceResponse, error) {
	var resp BatchPreferenceResponse
	if err := c.doJSON(ctx, http.MethodPost, "/preferences/batch", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) != len(req.Preferences) {
		return nil, &NetworkError{Op: "POST", URL: c.BaseURL + "/preferences/batch",
			Err: fmt.Errorf("result count mismatch: sent %d items, got %d results", len(req.Preferences), len(resp.Results))}
	}
	return &resp, nil
}

// BatchDeletePreferences submits a batch of preference deletions by server
// identifier and returns the per-item result list.
func (c *Client) BatchDeletePreferences(ctx context.Context, req *BatchDeleteRequest) (*BatchDeleteResponse, error) {
	var resp BatchDeleteResponse
	if err := c.doJSON(ctx, http.MethodDelete, "/preferences/batch", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) != len(req.IDs) {
		return nil, &NetworkError{Op: "DELETE", URL: c.BaseURL + "/preferences/batch",
			Err: fmt.Errorf("result count mismatch: sent %d ids, got %d results", len(req.IDs), len(resp.Results))}
	}
	return &resp, nil
}

// doJSON sends a JSON request with a bearer token and decodes the JSON
// response into out. Any transport or protocol failure surfaces as a
// NetworkError; callers treat that as "zero items synced".
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	url := c.BaseURL + path

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return &NetworkError{Op: method, URL: url, Err: err}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := c.Token(ctx)
	if err != nil {
		return fmt.Errorf("failed to get auth token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return &NetworkError{Op: method, URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return &NetworkError{Op: method, URL: url,
			Err: fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(data))}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &NetworkError{Op: method, URL: url, Err: fmt.Errorf("failed to decode response: %w", err)}
		}
	}
	return nil
}
