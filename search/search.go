// Package search provides the web search client used to gather sources.
//
// Information Hiding:
// - Search API endpoint, authentication and wire format
// - Retry/backoff policy for rate limits and transient failures
// - Knowledge-fallback synthesis when live search is unavailable
package search

import "context"

// Result is a single content item returned for one query.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Searcher executes a query and returns a bounded number of results.
// The production implementation is Client; tests substitute fakes.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

// FallbackURL marks the synthetic result substituted when live search
// is unavailable and downstream stages should rely on model knowledge.
const FallbackURL = "https://example.com/model-knowledge"

// Fallback builds the synthetic single-result response for a query.
func Fallback(query string) []Result {
	return []Result{{
		Title: "Using model knowledge",
		URL:   FallbackURL,
		Content: "Research for '" + query + "' will use the model's built-in knowledge " +
			"instead of live web search due to API limitations.",
	}}
}

// IsFallback reports whether a result is the synthetic knowledge fallback.
func IsFallback(r Result) bool {
	return r.URL == FallbackURL
}
