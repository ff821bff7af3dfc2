package upstream

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Fake serves deterministic results for development and tests. It is
// selected explicitly through configuration; the proxy never swaps it in
// when the live upstream fails.
type Fake struct {
	maxResults int
}

// NewFake builds the fake client. maxResults bounds the generated result
// list the same way the live client clamps requested counts.
func NewFake(maxResults int) *Fake {
	if maxResults <= 0 {
		maxResults = 25
	}
	return &Fake{maxResults: maxResults}
}

// Search fabricates a small stable result set derived from the query text.
// Queries containing the token "noresults" return an empty list so empty-
// payload handling stays testable end to end.
func (c *Fake) Search(_ context.Context, query string, options map[string]any) (Result, error) {
	started := time.Now()

	for _, token := range strings.Fields(strings.ToLower(query)) {
		if token == "noresults" {
			return Result{Results: []SearchResult{}, ElapsedMs: time.Since(started).Milliseconds()}, nil
		}
	}

	count := 3
	if raw, ok := options["limit"]; ok {
		switch v := raw.(type) {
		case int:
			count = v
		case float64:
			count = int(v)
		}
	}
	if count <= 0 || count > c.maxResults {
		count = c.maxResults
	}
	if count > 10 {
		count = 10
	}

	slug := strings.Join(strings.Fields(strings.ToLower(query)), "-")
	if slug == "" {
		slug = "empty"
	}
	results := make([]SearchResult, 0, count)
	for i := 0; i < count; i++ {
		results = append(results, SearchResult{
			Title:     fmt.Sprintf("Result %d for %q", i+1, query),
			URL:       fmt.Sprintf("https://example.com/%s/%d", slug, i+1),
			Snippet:   fmt.Sprintf("Fabricated snippet %d matching %q.", i+1, query),
			Domain:    "example.com",
			Timestamp: time.Now().UTC().Truncate(time.Hour),
		})
	}
	return Result{
		Results:   results,
		Total:     count,
		ElapsedMs: time.Since(started).Milliseconds(),
	}, nil
}
