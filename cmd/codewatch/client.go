package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kalambet/codewatch/internal/config"
)

// apiClient talks to a running `codewatch serve` or `codewatch run --listen`.
type apiClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var newAPIClient = func(cfg config.Config) *apiClient {
	return &apiClient{
		baseURL:    fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port),
		token:      cfg.Server.Token,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *apiClient) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("server not reachable, is codewatch serving? (%w)", err)
	}
	return resp, nil
}

func decodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("server returned %d (failed to read body: %w)", resp.StatusCode, err)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// serverStatus is what `codewatch status` reports about a running read API.
type serverStatus struct {
	Running bool
	Codes   string
}

func fetchStatus(ctx context.Context, c *apiClient) (serverStatus, error) {
	resp, err := c.get(ctx, "/health")
	if err != nil {
		return serverStatus{}, err
	}
	var health map[string]string
	if err := decodeJSON(resp, &health); err != nil {
		return serverStatus{}, err
	}
	st := serverStatus{Running: health["status"] == "ok", Codes: "unknown"}

	resp, err = c.get(ctx, "/codes?limit=1")
	if err != nil {
		return st, nil
	}
	var codes []json.RawMessage
	if err := decodeJSON(resp, &codes); err != nil {
		return st, nil
	}
	if total := resp.Header.Get("X-Total-Count"); total != "" {
		st.Codes = total
	}
	return st, nil
}
