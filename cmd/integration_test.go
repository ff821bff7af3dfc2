package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gavv/httpexpect/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/l0p7/searchedge/internal/cache"
	"github.com/l0p7/searchedge/internal/config"
	"github.com/l0p7/searchedge/internal/metrics"
	"github.com/l0p7/searchedge/internal/origin"
	"github.com/l0p7/searchedge/internal/proxy"
	"github.com/l0p7/searchedge/internal/ratelimit"
	"github.com/l0p7/searchedge/internal/server"
	"github.com/l0p7/searchedge/internal/store"
	"github.com/l0p7/searchedge/internal/upstream"
)

const allowedOrigin = "https://app.example.com"

type testStack struct {
	server *httptest.Server
	pipe   *proxy.Pipeline
	redis  *miniredis.Miniredis
}

// newTestStack assembles the full proxy over a miniredis-backed store, the
// same wiring main performs minus the process lifecycle.
func newTestStack(t *testing.T) *testStack {
	t.Helper()

	mr := miniredis.RunT(t)
	kv, err := store.NewRedis(store.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = kv.Close(ctx)
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	origins, err := origin.NewValidator([]string{allowedOrigin})
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.Server.RateLimit.WindowSeconds = 3600

	recorder := metrics.NewRecorder(prometheus.NewRegistry())
	pipe := proxy.NewPipeline(logger, proxy.Options{
		Origins:   origins,
		Limiter:   ratelimit.NewLimiter(kv, cfg.Server.RateLimit, logger, recorder),
		Cache:     cache.NewAdapter(kv, cfg.Server.Cache.KeyPrefix, logger, recorder),
		Upstream:  upstream.NewFake(cfg.Server.Upstream.MaxResults),
		TTL:       cfg.Server.Cache.TTL,
		Lexicon:   config.DefaultLexicon(),
		Prefix:    cfg.Server.Cache.KeyPrefix,
		Metrics:   recorder,
		PingStore: kv.Ping,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = pipe.Close(ctx)
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", recorder.Handler())
	mux.Handle("/", server.NewPipelineHandler(pipe))

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	return &testStack{server: ts, pipe: pipe, redis: mr}
}

func (s *testStack) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.pipe.Close(ctx))
}

func newExpect(t *testing.T, stack *testStack) *httpexpect.Expect {
	return httpexpect.WithConfig(httpexpect.Config{
		BaseURL:  stack.server.URL,
		Reporter: httpexpect.NewRequireReporter(t),
		Client:   stack.server.Client(),
	})
}

func TestIntegrationSearchFlow(t *testing.T) {
	stack := newTestStack(t)
	expect := newExpect(t, stack)

	first := expect.POST("/").
		WithHeader("Origin", allowedOrigin).
		WithJSON(map[string]any{"query": "golang tutorial", "options": map[string]any{"limit": 3}}).
		Expect()
	first.Status(http.StatusOK)
	first.Header("X-Cache-Status").IsEqual("MISS")
	first.Header("Access-Control-Allow-Origin").IsEqual(allowedOrigin)
	first.Header("X-RateLimit-Limit").IsEqual("10")

	body := first.JSON().Object()
	body.Value("results").Array().Length().IsEqual(3)
	body.Value("total").Number().IsEqual(3)
	body.Value("meta").Object().Value("cache").IsEqual("MISS")

	stack.drain(t)

	second := expect.POST("/").
		WithHeader("Origin", allowedOrigin).
		WithJSON(map[string]any{"query": "Golang  TUTORIAL", "options": map[string]any{"limit": 3}}).
		Expect()
	second.Status(http.StatusOK)
	second.Header("X-Cache-Status").IsEqual("HIT")
	second.JSON().Object().Value("meta").Object().Value("cache").IsEqual("HIT")
}

func TestIntegrationOriginRejected(t *testing.T) {
	stack := newTestStack(t)
	expect := newExpect(t, stack)

	resp := expect.POST("/").
		WithHeader("Origin", "https://evil.example.net").
		WithJSON(map[string]any{"query": "golang"}).
		Expect()
	resp.Status(http.StatusForbidden)
	resp.Header("Access-Control-Allow-Origin").IsEmpty()
	resp.JSON().Object().Value("error").IsEqual("origin_rejected")
}

func TestIntegrationPreflight(t *testing.T) {
	stack := newTestStack(t)
	expect := newExpect(t, stack)

	resp := expect.OPTIONS("/").
		WithHeader("Origin", allowedOrigin).
		Expect()
	resp.Status(http.StatusNoContent)
	resp.Header("Access-Control-Allow-Methods").Contains("POST")
	resp.Header("Access-Control-Allow-Origin").IsEqual(allowedOrigin)
}

func TestIntegrationRateLimitExhaustion(t *testing.T) {
	stack := newTestStack(t)
	expect := newExpect(t, stack)

	for i := 0; i < 10; i++ {
		expect.POST("/").
			WithHeader("Origin", allowedOrigin).
			WithHeader("X-Forwarded-For", "203.0.113.50").
			WithJSON(map[string]any{"query": "golang"}).
			Expect().
			Status(http.StatusOK)
	}

	denied := expect.POST("/").
		WithHeader("Origin", allowedOrigin).
		WithHeader("X-Forwarded-For", "203.0.113.50").
		WithJSON(map[string]any{"query": "golang"}).
		Expect()
	denied.Status(http.StatusTooManyRequests)
	denied.Header("Retry-After").NotEmpty()
	denied.JSON().Object().Value("error").IsEqual("rate_limited")

	// Another client is unaffected.
	expect.POST("/").
		WithHeader("Origin", allowedOrigin).
		WithHeader("X-Forwarded-For", "203.0.113.51").
		WithJSON(map[string]any{"query": "golang"}).
		Expect().
		Status(http.StatusOK)
}

func TestIntegrationHealthAndMetrics(t *testing.T) {
	stack := newTestStack(t)
	expect := newExpect(t, stack)

	health := expect.GET("/healthz").Expect()
	health.Status(http.StatusOK)
	health.JSON().Object().Value("status").IsEqual("ok")

	expect.POST("/").
		WithHeader("Origin", allowedOrigin).
		WithJSON(map[string]any{"query": "golang"}).
		Expect().
		Status(http.StatusOK)

	metricsResp := expect.GET("/metrics").Expect()
	metricsResp.Status(http.StatusOK)
	metricsResp.Body().Contains("searchedge_search_requests_total")
}

func TestIntegrationCacheFlush(t *testing.T) {
	stack := newTestStack(t)
	expect := newExpect(t, stack)

	expect.POST("/").
		WithHeader("Origin", allowedOrigin).
		WithJSON(map[string]any{"query": "golang"}).
		Expect().
		Status(http.StatusOK)
	stack.drain(t)

	flush := expect.POST("/cache/flush").Expect()
	flush.Status(http.StatusOK)
	flush.JSON().Object().Value("removed").Number().Gt(0)

	miss := expect.POST("/").
		WithHeader("Origin", allowedOrigin).
		WithJSON(map[string]any{"query": "golang"}).
		Expect()
	miss.Status(http.StatusOK)
	miss.Header("X-Cache-Status").IsEqual("MISS")
}
