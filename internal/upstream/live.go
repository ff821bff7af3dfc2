package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/l0p7/searchedge/internal/config"
)

// Live is the production client for the upstream search API. It enforces a
// hard client-side timeout independent of any upstream deadline and clamps
// the requested result count regardless of what the caller asked for.
type Live struct {
	endpoint   string
	apiKey     string
	timeout    time.Duration
	maxResults int
	httpClient *http.Client
	logger     *slog.Logger
}

type liveRequest struct {
	Query   string         `json:"query"`
	Options map[string]any `json:"options,omitempty"`
}

type liveResponse struct {
	Results []liveResult `json:"results"`
	Total   int          `json:"total"`
}

type liveResult struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	Snippet   string `json:"snippet"`
	Domain    string `json:"domain"`
	Timestamp int64  `json:"timestamp"`
}

// NewLive builds the live client from configuration.
func NewLive(cfg config.UpstreamConfig, logger *slog.Logger) (*Live, error) {
	if cfg.URL == "" {
		return nil, errors.New("upstream: url required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	return &Live{
		endpoint:   cfg.URL,
		apiKey:     cfg.APIKey,
		timeout:    timeout,
		maxResults: cfg.MaxResults,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With(slog.String("agent", "upstream_live")),
	}, nil
}

// Search posts the query and maps the upstream response. Errors carry a
// Kind classification and a sanitized message; the raw upstream detail is
// logged here and never returned.
func (c *Live) Search(ctx context.Context, query string, options map[string]any) (Result, error) {
	started := time.Now()

	body := liveRequest{Query: query, Options: clampOptions(options, c.maxResults)}
	payload, err := json.Marshal(body)
	if err != nil {
		return Result{}, NewError(KindUnknown, fmt.Errorf("marshal request: %w", err))
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return Result{}, NewError(KindUnknown, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		kind := KindUnknown
		var urlErr *url.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &urlErr) && urlErr.Timeout()) {
			kind = KindTimeout
		}
		c.logger.Warn("upstream request failed", slog.Any("error", err))
		return Result{}, NewError(kind, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		kind := classifyStatus(resp.StatusCode)
		c.logger.Warn("upstream returned error status",
			slog.Int("status", resp.StatusCode),
			slog.String("detail", string(detail)))
		return Result{}, NewError(kind, fmt.Errorf("status %d", resp.StatusCode))
	}

	var decoded liveResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		c.logger.Warn("upstream response decode failed", slog.Any("error", err))
		return Result{}, NewError(KindUnknown, fmt.Errorf("decode response: %w", err))
	}

	results := make([]SearchResult, 0, len(decoded.Results))
	for _, item := range decoded.Results {
		result := SearchResult{
			Title:   item.Title,
			URL:     item.URL,
			Snippet: item.Snippet,
			Domain:  item.Domain,
		}
		if item.Timestamp > 0 {
			result.Timestamp = time.Unix(item.Timestamp, 0).UTC()
		}
		results = append(results, result)
	}
	return Result{
		Results:   results,
		Total:     decoded.Total,
		ElapsedMs: time.Since(started).Milliseconds(),
	}, nil
}

func classifyStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindUnauthorized
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 500:
		return KindServerError
	default:
		return KindUnknown
	}
}

// clampOptions copies the options map with the limit bounded to max. The
// caller-supplied value is clamped, not rejected.
func clampOptions(options map[string]any, max int) map[string]any {
	if max <= 0 {
		return options
	}
	out := make(map[string]any, len(options)+1)
	for key, value := range options {
		out[key] = value
	}
	limit := max
	if raw, ok := out["limit"]; ok {
		switch v := raw.(type) {
		case int:
			limit = v
		case float64:
			limit = int(v)
		}
	}
	if limit <= 0 || limit > max {
		limit = max
	}
	out["limit"] = limit
	return out
}
