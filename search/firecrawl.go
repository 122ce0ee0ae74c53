package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultBaseURL  = "https://api.firecrawl.dev/v1"
	defaultLimit    = 3
	defaultAttempts = 3
	defaultDelay    = time.Second
)

// RateLimitFunc observes rate-limit and no-live-data conditions so a caller
// can surface "rate limited, falling back" to a user. Must not block.
type RateLimitFunc func(message string)

// Client calls a Firecrawl-style search-and-scrape API.
// Safe for concurrent use.
type Client struct {
	apiKey      string
	baseURL     string
	httpClient  *http.Client
	limit       int
	maxAttempts int
	baseDelay   time.Duration
	logger      *zap.Logger
	onRateLimit RateLimitFunc
}

// NewClient constructs a search client.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:      apiKey,
		baseURL:     defaultBaseURL,
		httpClient:  &http.Client{Timeout: 20 * time.Second},
		limit:       defaultLimit,
		maxAttempts: defaultAttempts,
		baseDelay:   defaultDelay,
		logger:      zap.NewNop(),
	}
}

// WithBaseURL overrides the API base URL. Tests point this at httptest servers.
func (c *Client) WithBaseURL(url string) *Client {
	c.baseURL = strings.TrimRight(url, "/")
	return c
}

// WithHTTPClient overrides the HTTP client, e.g. to change the timeout.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// WithLimit sets the per-query result cap.
func (c *Client) WithLimit(n int) *Client {
	if n > 0 {
		c.limit = n
	}
	return c
}

// WithBaseDelay overrides the initial backoff delay. Tests use a tiny delay.
func (c *Client) WithBaseDelay(d time.Duration) *Client {
	c.baseDelay = d
	return c
}

// WithLogger attaches a structured logger.
func (c *Client) WithLogger(logger *zap.Logger) *Client {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// OnRateLimit registers an observer for rate-limit conditions.
func (c *Client) OnRateLimit(fn RateLimitFunc) *Client {
	c.onRateLimit = fn
	return c
}

type searchRequest struct {
	Query         string        `json:"query"`
	Limit         int           `json:"limit"`
	Country       string        `json:"country"`
	ScrapeOptions scrapeOptions `json:"scrapeOptions"`
}

type scrapeOptions struct {
	Formats []string `json:"formats"`
}

type searchResponse struct {
	Success bool `json:"success"`
	Data    []struct {
		Title    string `json:"title"`
		URL      string `json:"url"`
		Markdown string `json:"markdown"`
	} `json:"data"`
}

// Search posts a query and returns up to the configured limit of scraped
// results. Rate limits and transient failures are retried with exponential
// backoff; if all retries are exhausted, or the API returns nothing, a single
// synthetic fallback result is returned so downstream stages can substitute
// model-only knowledge instead of failing the whole run.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	body, err := json.Marshal(searchRequest{
		Query:         query,
		Limit:         c.limit,
		Country:       "us",
		ScrapeOptions: scrapeOptions{Formats: []string{"markdown"}},
	})
	if err != nil {
		return nil, err
	}

	results, err := c.searchWithRetry(ctx, query, body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		c.logger.Warn("search failed, falling back to model knowledge",
			zap.String("query", query),
			zap.Error(err))
		c.notifyRateLimit(fmt.Sprintf("Search error: %s. Using model knowledge instead.", previewOf(err.Error())))
		return Fallback(query), nil
	}

	if len(results) == 0 {
		c.logger.Warn("search returned no results", zap.String("query", query))
		c.notifyRateLimit("No search results found. Using model knowledge instead.")
		return Fallback(query), nil
	}
	return results, nil
}

func (c *Client) searchWithRetry(ctx context.Context, query string, body []byte) ([]Result, error) {
	delay := c.baseDelay
	var lastErr error

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		results, retryable, err := c.doSearch(ctx, body)
		if err == nil {
			return results, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}

		c.logger.Debug("search attempt failed",
			zap.String("query", query),
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		if attempt == c.maxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	return nil, fmt.Errorf("search failed after %d attempts: %w", c.maxAttempts, lastErr)
}

// doSearch performs one HTTP round trip. The second return value reports
// whether the failure is worth retrying.
func (c *Client) doSearch(ctx context.Context, body []byte) ([]Result, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		c.notifyRateLimit("Search API rate limited, backing off.")
		return nil, true, fmt.Errorf("search http 429")
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("search http %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("search http %d", resp.StatusCode)
	}

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, false, fmt.Errorf("decoding search response: %w", err)
	}

	results := make([]Result, 0, len(decoded.Data))
	for _, item := range decoded.Data {
		title := item.Title
		if title == "" {
			title = "Untitled Page"
		}
		content := item.Markdown
		if content == "" {
			content = "No content extracted from " + item.URL
		}
		results = append(results, Result{Title: title, URL: item.URL, Content: content})
		if len(results) >= c.limit {
			break
		}
	}
	return results, false, nil
}

func (c *Client) notifyRateLimit(message string) {
	if c.onRateLimit != nil {
		c.onRateLimit(message)
	}
}

func previewOf(s string) string {
	if len(s) > 100 {
		return s[:100]
	}
	return s
}

var _ Searcher = (*Client)(nil)
