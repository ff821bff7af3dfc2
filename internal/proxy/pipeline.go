// Package proxy sequences a search request through origin validation,
// input validation, the concurrent rate-limit and fetch branches, response
// assembly, and the detached cache write-through.
package proxy

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/l0p7/searchedge/internal/cache"
	"github.com/l0p7/searchedge/internal/config"
	"github.com/l0p7/searchedge/internal/metrics"
	"github.com/l0p7/searchedge/internal/origin"
	"github.com/l0p7/searchedge/internal/ratelimit"
	"github.com/l0p7/searchedge/internal/upstream"
)

const (
	maxQueryLength = 500
	maxBodyBytes   = 64 << 10

	// Detached cache writes get their own deadline so a slow store cannot
	// pin goroutines past shutdown.
	backgroundWriteTimeout = 5 * time.Second
)

// Options carries the collaborators the pipeline orchestrates.
type Options struct {
	Origins  *origin.Validator
	Limiter  *ratelimit.Limiter
	Cache    *cache.Adapter
	Upstream upstream.Client
	TTL      config.CacheTTLConfig
	Lexicon  config.Lexicon
	Prefix   string
	Metrics  *metrics.Recorder
	// PingStore probes the key-value store for the health endpoint.
	PingStore func(context.Context) error
}

// Pipeline is the request orchestrator. One instance serves all requests;
// the external store is the only shared mutable state between them.
type Pipeline struct {
	logger    *slog.Logger
	metrics   *metrics.Recorder
	origins   *origin.Validator
	limiter   *ratelimit.Limiter
	cache     *cache.Adapter
	upstream  upstream.Client
	ttl       config.CacheTTLConfig
	prefix    string
	pingStore func(context.Context) error

	mu        sync.RWMutex
	keyer     *cache.Keyer
	estimator *cache.Estimator

	writes sync.WaitGroup
}

// NewPipeline wires the orchestrator.
func NewPipeline(logger *slog.Logger, opts Options) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		logger:    logger.With(slog.String("agent", "search_pipeline")),
		metrics:   opts.Metrics,
		origins:   opts.Origins,
		limiter:   opts.Limiter,
		cache:     opts.Cache,
		upstream:  opts.Upstream,
		ttl:       opts.TTL,
		prefix:    opts.Prefix,
		pingStore: opts.PingStore,
	}
	p.SetLexicon(opts.Lexicon)
	return p
}

// SetLexicon swaps the normalization and TTL word lists. Called at startup
// and again whenever the lexicon watcher observes a change; in-flight
// requests keep the snapshot they started with.
func (p *Pipeline) SetLexicon(lex config.Lexicon) {
	keyer := cache.NewKeyer(p.prefix, lex.StopWords)
	estimator := cache.NewEstimator(p.ttl, lex)
	p.mu.Lock()
	p.keyer, p.estimator = keyer, estimator
	p.mu.Unlock()
}

func (p *Pipeline) snapshot() (*cache.Keyer, *cache.Estimator) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.keyer, p.estimator
}

// Close waits for detached cache writes to drain, bounded by ctx.
func (p *Pipeline) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.writes.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type searchRequest struct {
	Query   string         `json:"query"`
	Options map[string]any `json:"options"`
}

type searchMeta struct {
	ProcessingTimeMs int64         `json:"processingTime"`
	Cache            string        `json:"cache"`
	RateLimit        rateLimitMeta `json:"rateLimit"`
}

type rateLimitMeta struct {
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	Reset     int64 `json:"reset"`
}

type searchResponse struct {
	Results []upstream.SearchResult `json:"results"`
	Total   int                     `json:"total"`
	Meta    searchMeta              `json:"meta"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// fetchOutcome is the join value of the cache-or-upstream branch.
type fetchOutcome struct {
	entry     cache.Entry
	key       string
	fromCache bool
	ttl       time.Duration
	err       error
}

// ServeSearch handles POST / and the CORS preflight.
func (p *Pipeline) ServeSearch(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	requestOrigin := r.Header.Get("Origin")
	if !p.origins.Allowed(requestOrigin) {
		// Rejections for bad origins deliberately omit CORS headers.
		p.writeError(w, KindOriginRejected)
		p.observe(string(KindOriginRejected), KindOriginRejected.HTTPStatus(), false, started)
		return
	}

	switch r.Method {
	case http.MethodOptions:
		p.writePreflight(w, requestOrigin)
		return
	case http.MethodPost:
	default:
		w.Header().Set("Allow", "POST, OPTIONS")
		applyCORS(w, requestOrigin)
		p.writeErrorMessage(w, http.StatusMethodNotAllowed, "method_not_allowed", "only POST and OPTIONS are supported")
		p.observe("method_not_allowed", http.StatusMethodNotAllowed, false, started)
		return
	}

	applyCORS(w, requestOrigin)

	req, ok := p.decodeRequest(w, r, started)
	if !ok {
		return
	}

	clientID := clientIdentity(r)

	// The rate-limit check and the cache-or-upstream fetch run concurrently
	// so the slower branch dominates latency instead of their sum. The
	// fetch may complete, and even be cached, for a request that is then
	// denied; that upstream cost is an accepted consequence of the
	// parallel sequencing.
	limitCh := make(chan ratelimit.Decision, 1)
	fetchCh := make(chan fetchOutcome, 1)
	go func() { limitCh <- p.limiter.Check(r.Context(), clientID) }()
	go func() { fetchCh <- p.fetch(r.Context(), req.Query, req.Options) }()

	decision := <-limitCh
	outcome := <-fetchCh

	// A fresh fetch is written through even when the request is denied:
	// the upstream round trip already happened, so its result should at
	// least serve the next caller. Hit counters only move for responses
	// actually served from cache.
	if outcome.err == nil && !outcome.fromCache {
		p.writeThrough(outcome)
	}

	if !decision.Allowed {
		writeRateLimitHeaders(w, decision)
		w.Header().Set("Retry-After", strconv.Itoa(decision.RetryAfter))
		p.writeError(w, KindRateLimited)
		p.observe(string(KindRateLimited), KindRateLimited.HTTPStatus(), outcome.fromCache, started)
		return
	}

	if outcome.err != nil {
		kind := classifyUpstream(outcome.err)
		p.logger.Error("search fetch failed",
			slog.String("kind", string(kind)),
			slog.String("client", clientID),
			slog.Any("error", outcome.err))
		writeRateLimitHeaders(w, decision)
		p.writeError(w, kind)
		p.observe(string(kind), kind.HTTPStatus(), false, started)
		return
	}

	cacheStatus := "MISS"
	if outcome.fromCache {
		cacheStatus = "HIT"
		p.writeThrough(outcome)
	}
	elapsed := time.Since(started)
	writeRateLimitHeaders(w, decision)
	w.Header().Set("X-Cache-Status", cacheStatus)
	w.Header().Set("X-Processing-Time", strconv.FormatInt(elapsed.Milliseconds(), 10)+"ms")
	writeJSON(w, http.StatusOK, searchResponse{
		Results: outcome.entry.Results,
		Total:   outcome.entry.Total,
		Meta: searchMeta{
			ProcessingTimeMs: elapsed.Milliseconds(),
			Cache:            cacheStatus,
			RateLimit: rateLimitMeta{
				Limit:     decision.Limit,
				Remaining: decision.Remaining,
				Reset:     decision.ResetAt,
			},
		},
	})
	p.observe("ok", http.StatusOK, outcome.fromCache, started)
}

// fetch resolves the query through the cache first and the upstream client
// only on a miss.
func (p *Pipeline) fetch(ctx context.Context, query string, options map[string]any) fetchOutcome {
	keyer, estimator := p.snapshot()
	key := keyer.Key(query, options)

	if entry, ok := p.cache.Get(ctx, key); ok {
		// Siblings expire with the entry, so hits carry its remaining
		// lifetime rather than the original TTL.
		return fetchOutcome{entry: entry, key: key, fromCache: true, ttl: entry.RemainingTTL(time.Now().UTC())}
	}

	start := time.Now()
	result, err := p.upstream.Search(ctx, query, options)
	if err != nil {
		p.metrics.ObserveUpstream(string(classifyUpstream(err)), time.Since(start))
		return fetchOutcome{key: key, err: err}
	}
	p.metrics.ObserveUpstream("ok", time.Since(start))

	entry := cache.Entry{
		Results:  result.Results,
		Total:    result.Total,
		StoredAt: time.Now().UTC(),
	}
	ttl := estimator.EstimateTTL(query, len(result.Results))
	return fetchOutcome{entry: entry, key: key, ttl: ttl}
}

// writeThrough schedules the post-response cache work: a SETEX for fresh
// results, a hit-counter bump for cache hits. The goroutine carries its own
// context so it survives the request ending but not process shutdown.
func (p *Pipeline) writeThrough(outcome fetchOutcome) {
	p.writes.Add(1)
	go func() {
		defer p.writes.Done()
		ctx, cancel := context.WithTimeout(context.Background(), backgroundWriteTimeout)
		defer cancel()
		if outcome.fromCache {
			p.cache.IncrementHit(ctx, outcome.key, outcome.ttl)
			return
		}
		p.cache.Set(ctx, outcome.key, outcome.entry, outcome.ttl)
	}()
}

func (p *Pipeline) decodeRequest(w http.ResponseWriter, r *http.Request, started time.Time) (searchRequest, bool) {
	var req searchRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err == nil {
		err = json.Unmarshal(body, &req)
	}
	if err != nil {
		p.writeError(w, KindInvalidInput)
		p.observe(string(KindInvalidInput), KindInvalidInput.HTTPStatus(), false, started)
		return searchRequest{}, false
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" || len(req.Query) > maxQueryLength {
		p.writeError(w, KindInvalidInput)
		p.observe(string(KindInvalidInput), KindInvalidInput.HTTPStatus(), false, started)
		return searchRequest{}, false
	}
	return req, true
}

// ServeHealth reports liveness plus the store's reachability. A degraded
// store still answers 200: the proxy keeps serving through cache outages.
func (p *Pipeline) ServeHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	storeStatus := "ok"
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := p.pingStore(ctx); err != nil {
		status = "degraded"
		storeStatus = "unreachable"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": status,
		"store":  storeStatus,
	})
}

// ServeFlush clears the result cache. Operator surface; origin gating does
// not apply.
func (p *Pipeline) ServeFlush(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		p.writeErrorMessage(w, http.StatusMethodNotAllowed, "method_not_allowed", "only POST is supported")
		return
	}
	removed, err := p.cache.Flush(r.Context())
	if err != nil {
		p.logger.Error("cache flush failed", slog.Any("error", err))
		p.writeErrorMessage(w, http.StatusInternalServerError, "flush_failed", "cache flush failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"removed": removed})
}

func (p *Pipeline) observe(outcome string, status int, fromCache bool, started time.Time) {
	p.metrics.ObserveSearch(outcome, status, fromCache, time.Since(started))
}

func (p *Pipeline) writePreflight(w http.ResponseWriter, requestOrigin string) {
	applyCORS(w, requestOrigin)
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Access-Control-Max-Age", "600")
	w.WriteHeader(http.StatusNoContent)
}

func (p *Pipeline) writeError(w http.ResponseWriter, kind Kind) {
	p.writeErrorMessage(w, kind.HTTPStatus(), string(kind), kind.Message())
}

func (p *Pipeline) writeErrorMessage(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

func applyCORS(w http.ResponseWriter, requestOrigin string) {
	w.Header().Set("Access-Control-Allow-Origin", requestOrigin)
	w.Header().Add("Vary", "Origin")
}

func writeRateLimitHeaders(w http.ResponseWriter, decision ratelimit.Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt, 10))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// clientIdentity extracts the caller IP: the first X-Forwarded-For hop when
// the proxy sits behind an edge, otherwise the connection's remote address.
func clientIdentity(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if addr, err := netip.ParseAddr(first); err == nil {
			return addr.String()
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
