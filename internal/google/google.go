package google

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

var apiURL = "https://www.googleapis.com/customsearch/v1"

type SearchResponse struct {
	Items []SearchResult `json:"items"`
}

type SearchResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet,omitempty"`
}

// Searcher runs google custom searches.
type Searcher struct {
	key    string
	cx     string
	client *http.Client
}

// New returns a searcher, or nil if key or cx are empty.
func New(key, cx string) *Searcher {
	if key == "" || cx == "" {
		return nil
	}
	return &Searcher{
		key:    key,
		cx:     cx,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Search returns up to limit results for the query.
func (s *Searcher) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	params := url.Values{}
	params.Set("key", s.key)
	params.Set("cx", s.cx)
	params.Set("q", query)
	if limit > 0 {
		params.Set("num", fmt.Sprint(limit))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("google: couldn't create request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("google: couldn't get response: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("google: couldn't read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google: unexpected status %d: %s", resp.StatusCode, body)
	}

	var searchResponse SearchResponse
	if err := json.Unmarshal(body, &searchResponse); err != nil {
		return nil, fmt.Errorf("google: couldn't unmarshal response: %w", err)
	}
	items := searchResponse.Items
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}
