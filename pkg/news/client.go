// Package news wraps the metered search/news API. Every search goes
// through the budget cache: cached results are served without touching
// the network, and uncached searches must pass the gate first.
package news

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/finlens-ai/finlens/pkg/models"
)

// apiName is the budget gate identifier for the search API.
const apiName = "search"

// ErrRateLimited is returned when the daily search budget is exhausted.
var ErrRateLimited = errors.New("search API daily rate limit exceeded")

// Gate is the slice of the budget cache the news client needs.
type Gate interface {
	Get(key string) ([]byte, bool)
	SetDefault(key string, payload []byte)
	TrackAPICall(api string) bool
}

// KeyFunc derives a cache key from request parts.
type KeyFunc func(parts ...string) string

// Client searches a Tavily-style news endpoint.
type Client struct {
	baseURL string
	apiKey  string
	gate    Gate
	keyFn   KeyFunc
	http    *http.Client
}

// NewClient creates a news client. gate and keyFn come from the budget cache.
func NewClient(baseURL, apiKey string, gate Gate, keyFn KeyFunc) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		gate:    gate,
		keyFn:   keyFn,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

type searchRequest struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	SearchDepth string `json:"search_depth"`
}

type searchResponse struct {
	Results []models.NewsArticle `json:"results"`
}

// Search returns up to maxResults articles for the query. Results are
// memoized; a budget denial on a cache miss returns ErrRateLimited.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]models.NewsArticle, error) {
	if maxResults <= 0 {
		maxResults = 5
	}

	key := c.keyFn("news", query, strconv.Itoa(maxResults))
	if payload, ok := c.gate.Get(key); ok {
		var articles []models.NewsArticle
		if err := json.Unmarshal(payload, &articles); err == nil {
			return articles, nil
		}
		// Corrupt payload: fall through to the uncached path.
	}

	if !c.gate.TrackAPICall(apiName) {
		return nil, ErrRateLimited
	}

	body, err := json.Marshal(searchRequest{
		APIKey:      c.apiKey,
		Query:       query,
		MaxResults:  maxResults,
		SearchDepth: "advanced",
	})
	if err != nil {
		return nil, fmt.Errorf("news: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("news: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("news: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("news: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("news: API error %d: %s", resp.StatusCode, string(respBody))
	}

	var sr searchResponse
	if err := json.Unmarshal(respBody, &sr); err != nil {
		return nil, fmt.Errorf("news: unmarshal response: %w", err)
	}

	if payload, err := json.Marshal(sr.Results); err == nil {
		c.gate.SetDefault(key, payload)
	}
	return sr.Results, nil
}
