package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const defaultRequestTimeout = 10 * time.Second

// Client fetches the current headcount from the upstream HR service. The
// wire contract is a GET returning a JSON body with one integer field:
//
//	{"value": 1234}
type Client struct {
	url        string
	httpClient *http.Client
}

// NewClient constructs a client for the given endpoint URL. A nil httpClient
// falls back to a default with a request timeout.
func NewClient(url string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	return &Client{url: url, httpClient: httpClient}
}

type valueResponse struct {
	Value int64 `json:"value"`
}

// FetchValue performs one retrieval. Transport errors, non-2xx statuses, and
// malformed bodies are all reported the same way; callers collapse them into
// a single failed status.
func (c *Client) FetchValue(ctx context.Context) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch headcount: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("fetch headcount: unexpected status %d", resp.StatusCode)
	}
	var body valueResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode headcount: %w", err)
	}
	return body.Value, nil
}
