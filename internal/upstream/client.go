// Package upstream talks to the external search API. The live client and
// the development fake implement the same interface; which one runs is a
// configuration decision, never a silent fallback on error.
package upstream

import (
	"context"
	"time"
)

// SearchResult is one item returned by the upstream API. Never mutated
// after creation.
type SearchResult struct {
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Snippet   string    `json:"snippet"`
	Domain    string    `json:"domain"`
	Timestamp time.Time `json:"timestamp"`
}

// Result is the mapped upstream response.
type Result struct {
	Results   []SearchResult
	Total     int
	ElapsedMs int64
}

// Client issues a search against the upstream API.
type Client interface {
	Search(ctx context.Context, query string, options map[string]any) (Result, error)
}
