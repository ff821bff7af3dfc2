// Package ratelimit implements a fixed-window request counter per client
// identity, backed by the shared key-value store. Fixed windows are chosen
// over sliding windows or token buckets for their single-read-then-write
// simplicity; the up-to-2x burst at window boundaries is an accepted
// tradeoff for a low-limit per-IP guard, not a billing-grade limiter.
package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/l0p7/searchedge/internal/config"
	"github.com/l0p7/searchedge/internal/metrics"
	"github.com/l0p7/searchedge/internal/store"
)

const keyPrefix = "rl:"

// Decision reports the outcome of one rate-limit check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// ResetAt is the end of the current window in epoch seconds.
	ResetAt int64
	// RetryAfter is the wait, in seconds, before the next window opens.
	// Zero when the request was allowed.
	RetryAfter int
	// FailOpen marks requests allowed because the store was unreachable,
	// a distinct condition from fitting inside the window.
	FailOpen bool
}

// Limiter counts requests per client in clock-aligned windows.
type Limiter struct {
	store   store.Store
	limit   int
	window  time.Duration
	grace   time.Duration
	logger  *slog.Logger
	metrics *metrics.Recorder

	now func() time.Time
}

// NewLimiter wires a fixed-window limiter over the shared store.
func NewLimiter(st store.Store, cfg config.RateLimitConfig, logger *slog.Logger, rec *metrics.Recorder) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		store:   st,
		limit:   cfg.Limit,
		window:  time.Duration(cfg.WindowSeconds) * time.Second,
		grace:   time.Duration(cfg.GraceSeconds) * time.Second,
		logger:  logger.With(slog.String("agent", "rate_limiter")),
		metrics: rec,
		now:     time.Now,
	}
}

// Check records one request for clientID and reports whether it fits in
// the current window. Store errors fail open: blocking legitimate traffic
// on an infrastructure hiccup is worse than briefly losing the guard.
func (l *Limiter) Check(ctx context.Context, clientID string) Decision {
	now := l.now()
	// Window boundaries align to the Unix epoch, not to Go's zero time.
	windowSeconds := int64(l.window / time.Second)
	windowEnd := time.Unix((now.Unix()/windowSeconds+1)*windowSeconds, 0)
	key := keyPrefix + clientID

	allowed := Decision{
		Allowed: true,
		Limit:   l.limit,
		ResetAt: windowEnd.Unix(),
	}

	raw, err := l.store.Get(ctx, key)
	if err != nil {
		var notFound store.ErrNotFound
		if !errors.As(err, &notFound) {
			return l.failOpen(clientID, err, allowed)
		}
		// First request in this window starts the counter; the grace keeps
		// the key alive across minor clock skew between proxy and store.
		if err := l.store.SetEx(ctx, key, "1", l.window+l.grace); err != nil {
			return l.failOpen(clientID, err, allowed)
		}
		allowed.Remaining = l.limit - 1
		l.metrics.ObserveRateLimit(metrics.RateLimitAllowed)
		return allowed
	}

	count, err := strconv.Atoi(raw)
	if err != nil {
		return l.failOpen(clientID, err, allowed)
	}
	if count >= l.limit {
		retryAfter := int(windowEnd.Sub(now).Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		l.metrics.ObserveRateLimit(metrics.RateLimitDenied)
		return Decision{
			Allowed:    false,
			Limit:      l.limit,
			Remaining:  0,
			ResetAt:    windowEnd.Unix(),
			RetryAfter: retryAfter,
		}
	}

	updated, err := l.store.Incr(ctx, key)
	if err != nil {
		return l.failOpen(clientID, err, allowed)
	}
	remaining := l.limit - int(updated)
	if remaining < 0 {
		remaining = 0
	}
	allowed.Remaining = remaining
	l.metrics.ObserveRateLimit(metrics.RateLimitAllowed)
	return allowed
}

func (l *Limiter) failOpen(clientID string, err error, decision Decision) Decision {
	l.logger.Warn("rate limit store unavailable, failing open",
		slog.String("client", clientID),
		slog.Any("error", err))
	l.metrics.ObserveRateLimit(metrics.RateLimitFailOpen)
	decision.Remaining = l.limit
	decision.FailOpen = true
	return decision
}
