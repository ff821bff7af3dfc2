package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/l0p7/searchedge/internal/metrics"
	"github.com/l0p7/searchedge/internal/store"
	"github.com/l0p7/searchedge/internal/upstream"
)

// Entry is the cached payload for one normalized query. The hit counter
// and last-seen timestamp live in sibling keys (see HitsKey, LastSeenKey)
// so recording a hit never rewrites the JSON document.
type Entry struct {
	Results    []upstream.SearchResult `json:"results"`
	Total      int                     `json:"total"`
	TTLSeconds int                     `json:"ttlSeconds"`
	StoredAt   time.Time               `json:"storedAt"`
}

// RemainingTTL reports how much of the entry's stored lifetime is left at
// now. Zero or negative means the entry has expired or never carried a TTL.
func (e Entry) RemainingTTL(now time.Time) time.Duration {
	if e.TTLSeconds <= 0 || e.StoredAt.IsZero() {
		return 0
	}
	return e.StoredAt.Add(time.Duration(e.TTLSeconds) * time.Second).Sub(now)
}

// Adapter wraps the key-value store with the availability-over-consistency
// posture the response path needs: reads fail soft into a miss, writes are
// best-effort, and neither ever propagates a store error to the caller.
type Adapter struct {
	store   store.Store
	prefix  string
	logger  *slog.Logger
	metrics *metrics.Recorder
}

// NewAdapter wires the cache adapter over the shared store.
func NewAdapter(st store.Store, prefix string, logger *slog.Logger, rec *metrics.Recorder) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		store:   st,
		prefix:  prefix,
		logger:  logger.With(slog.String("agent", "result_cache")),
		metrics: rec,
	}
}

// Get returns the cached entry for key, or ok=false on a miss. Store errors
// degrade to a miss so a cache outage makes requests slow, never failing.
func (a *Adapter) Get(ctx context.Context, key string) (Entry, bool) {
	start := time.Now()
	raw, err := a.store.Get(ctx, key)
	if err != nil {
		var notFound store.ErrNotFound
		if errors.As(err, &notFound) {
			a.metrics.ObserveCache(metrics.CacheOperationGet, metrics.CacheMiss, time.Since(start))
			return Entry{}, false
		}
		a.metrics.ObserveCache(metrics.CacheOperationGet, metrics.CacheError, time.Since(start))
		a.logger.Warn("cache get failed, treating as miss", slog.String("cache_key", key), slog.Any("error", err))
		return Entry{}, false
	}
	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		a.metrics.ObserveCache(metrics.CacheOperationGet, metrics.CacheError, time.Since(start))
		a.logger.Warn("cache entry corrupt, treating as miss", slog.String("cache_key", key), slog.Any("error", err))
		return Entry{}, false
	}
	a.metrics.ObserveCache(metrics.CacheOperationGet, metrics.CacheHit, time.Since(start))
	return entry, true
}

// Set persists an entry with the given TTL. Failures are logged and counted
// but never surfaced; the response that produced the entry has typically
// already been written by the time this runs.
func (a *Adapter) Set(ctx context.Context, key string, entry Entry, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if entry.StoredAt.IsZero() {
		entry.StoredAt = time.Now().UTC()
	}
	entry.TTLSeconds = int(ttl / time.Second)
	start := time.Now()
	payload, err := json.Marshal(entry)
	if err != nil {
		a.metrics.ObserveCache(metrics.CacheOperationSet, metrics.CacheError, time.Since(start))
		a.logger.Error("cache entry marshal failed", slog.String("cache_key", key), slog.Any("error", err))
		return
	}
	if err := a.store.SetEx(ctx, key, string(payload), ttl); err != nil {
		a.metrics.ObserveCache(metrics.CacheOperationSet, metrics.CacheError, time.Since(start))
		a.logger.Warn("cache set failed", slog.String("cache_key", key), slog.Any("error", err))
		return
	}
	a.metrics.ObserveCache(metrics.CacheOperationSet, metrics.CacheStored, time.Since(start))
}

// IncrementHit bumps the sibling hit counter for key and refreshes the
// last-seen timestamp. ttl is the entry's remaining lifetime; both siblings
// expire with it so they never outlive the entry they describe. Purely
// observational; failures only log.
func (a *Adapter) IncrementHit(ctx context.Context, key string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	hitsKey := HitsKey(key)
	if _, err := a.store.Incr(ctx, hitsKey); err != nil {
		a.logger.Debug("hit counter increment failed", slog.String("cache_key", key), slog.Any("error", err))
		return
	}
	if err := a.store.Expire(ctx, hitsKey, ttl); err != nil {
		a.logger.Debug("hit counter expire failed", slog.String("cache_key", key), slog.Any("error", err))
	}
	seen := time.Now().UTC().Format(time.RFC3339)
	if err := a.store.SetEx(ctx, LastSeenKey(key), seen, ttl); err != nil {
		a.logger.Debug("last-seen update failed", slog.String("cache_key", key), slog.Any("error", err))
	}
}

// Flush removes every cached entry and hit counter under the adapter's key
// namespace. Operational use only; unlike the request path this surfaces
// store errors to the caller.
func (a *Adapter) Flush(ctx context.Context) (int64, error) {
	keys, err := a.store.Keys(ctx, a.prefix+":*")
	if err != nil {
		return 0, fmt.Errorf("cache: list keys: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	removed, err := a.store.Del(ctx, keys...)
	if err != nil {
		return 0, fmt.Errorf("cache: delete keys: %w", err)
	}
	a.logger.Info("cache flushed", slog.Int64("removed", removed))
	return removed, nil
}
