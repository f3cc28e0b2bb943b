package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultMaxResults caps web_search output when the caller does not ask for
// a specific count.
const DefaultMaxResults = 5

// searchTimeout bounds a single SearXNG round trip.
const searchTimeout = 15 * time.Second

// searxngClient queries a SearXNG instance through its JSON API.
type searxngClient struct {
	baseURL string
	client  *http.Client
}

func newSearXNGClient(baseURL string) *searxngClient {
	return &searxngClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: searchTimeout},
	}
}

// searchResult is one entry from the SearXNG response.
type searchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

type searxngResponse struct {
	Results []searchResult `json:"results"`
}

// Search runs a query and returns at most maxResults entries.
func (c *searxngClient) Search(ctx context.Context, query string, maxResults int) ([]searchResult, error) {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building search request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying searxng: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("searxng returned status %d", resp.StatusCode)
	}

	var body searxngResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}

	if len(body.Results) > maxResults {
		body.Results = body.Results[:maxResults]
	}
	return body.Results, nil
}

// formatSearchResults renders results as numbered plain text for the model.
func formatSearchResults(results []searchResult) string {
	var sb strings.Builder
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. %s\n   %s\n", i+1, r.Title, r.URL)
		if r.Content != "" {
			fmt.Fprintf(&sb, "   %s\n", r.Content)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
