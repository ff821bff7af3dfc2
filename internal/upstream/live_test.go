package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/l0p7/searchedge/internal/config"
)

func liveClient(t *testing.T, url string, timeoutSeconds int) *Live {
	t.Helper()
	client, err := NewLive(config.UpstreamConfig{
		URL:            url,
		APIKey:         "secret-key",
		TimeoutSeconds: timeoutSeconds,
		MaxResults:     25,
	}, nil)
	if err != nil {
		t.Fatalf("new live client: %v", err)
	}
	return client
}

func TestLiveSearchMapsResponse(t *testing.T) {
	var gotAuth string
	var gotBody liveRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(liveResponse{
			Results: []liveResult{{
				Title:     "Go Proverbs",
				URL:       "https://go.dev/proverbs",
				Snippet:   "clear is better than clever",
				Domain:    "go.dev",
				Timestamp: 1700000000,
			}},
			Total: 1,
		})
	}))
	defer srv.Close()

	client := liveClient(t, srv.URL, 5)
	result, err := client.Search(context.Background(), "go proverbs", map[string]any{"sort": "top"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if gotAuth != "Bearer secret-key" {
		t.Fatalf("unexpected authorization header %q", gotAuth)
	}
	if gotBody.Query != "go proverbs" {
		t.Fatalf("unexpected forwarded query %q", gotBody.Query)
	}
	if result.Total != 1 || len(result.Results) != 1 {
		t.Fatalf("unexpected result %#v", result)
	}
	if result.Results[0].Domain != "go.dev" {
		t.Fatalf("unexpected mapped result %#v", result.Results[0])
	}
	if result.Results[0].Timestamp.IsZero() {
		t.Fatalf("expected timestamp to be mapped")
	}
	if result.ElapsedMs < 0 {
		t.Fatalf("expected non-negative elapsed time")
	}
}

func TestLiveSearchClampsLimit(t *testing.T) {
	var gotBody liveRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(liveResponse{})
	}))
	defer srv.Close()

	client := liveClient(t, srv.URL, 5)
	if _, err := client.Search(context.Background(), "q", map[string]any{"limit": 10000}); err != nil {
		t.Fatalf("search: %v", err)
	}
	limit, ok := gotBody.Options["limit"].(float64)
	if !ok || int(limit) != 25 {
		t.Fatalf("expected limit clamped to 25, got %v", gotBody.Options["limit"])
	}

	if _, err := client.Search(context.Background(), "q", nil); err != nil {
		t.Fatalf("search without options: %v", err)
	}
	limit, ok = gotBody.Options["limit"].(float64)
	if !ok || int(limit) != 25 {
		t.Fatalf("expected default limit 25, got %v", gotBody.Options["limit"])
	}
}

func TestLiveSearchStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   Kind
	}{
		{http.StatusUnauthorized, KindUnauthorized},
		{http.StatusForbidden, KindUnauthorized},
		{http.StatusTooManyRequests, KindRateLimited},
		{http.StatusInternalServerError, KindServerError},
		{http.StatusBadGateway, KindServerError},
		{http.StatusTeapot, KindUnknown},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "internal stack trace: secret detail", tc.status)
		}))
		client := liveClient(t, srv.URL, 5)
		_, err := client.Search(context.Background(), "q", nil)
		srv.Close()
		if err == nil {
			t.Fatalf("status %d: expected error", tc.status)
		}
		var upstreamErr *Error
		if !errors.As(err, &upstreamErr) {
			t.Fatalf("status %d: expected *Error, got %T", tc.status, err)
		}
		if upstreamErr.Kind != tc.want {
			t.Fatalf("status %d: expected kind %s, got %s", tc.status, tc.want, upstreamErr.Kind)
		}
		if strings.Contains(err.Error(), "secret detail") {
			t.Fatalf("status %d: upstream detail leaked into error message", tc.status)
		}
	}
}

func TestLiveSearchTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	client := liveClient(t, srv.URL, 1)
	_, err := client.Search(context.Background(), "slow query", nil)
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	var upstreamErr *Error
	if !errors.As(err, &upstreamErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if upstreamErr.Kind != KindTimeout {
		t.Fatalf("expected timeout kind, got %s", upstreamErr.Kind)
	}
}

func TestLiveRequiresURL(t *testing.T) {
	if _, err := NewLive(config.UpstreamConfig{TimeoutSeconds: 5}, nil); err == nil {
		t.Fatalf("expected error for missing url")
	}
}
