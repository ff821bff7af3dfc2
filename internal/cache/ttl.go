package cache

import (
	"strings"
	"time"

	"github.com/l0p7/searchedge/internal/config"
)

// Estimator derives a time-to-live for a cached entry from the query text
// and the shape of the result payload. It is a pure function of its inputs;
// the marker sets and tier durations arrive as configuration so the
// freshness/hit-rate tradeoff can be tuned without a redeploy.
type Estimator struct {
	short  time.Duration
	empty  time.Duration
	long   time.Duration
	medium time.Duration
	base   time.Duration

	timeSensitive map[string]struct{}
	tutorial      map[string]struct{}
	technical     map[string]struct{}
}

// NewEstimator builds an Estimator from the configured tiers and lexicon.
func NewEstimator(ttl config.CacheTTLConfig, lex config.Lexicon) *Estimator {
	return &Estimator{
		short:         time.Duration(ttl.ShortSeconds) * time.Second,
		empty:         time.Duration(ttl.EmptySeconds) * time.Second,
		long:          time.Duration(ttl.LongSeconds) * time.Second,
		medium:        time.Duration(ttl.MediumSeconds) * time.Second,
		base:          time.Duration(ttl.BaseSeconds) * time.Second,
		timeSensitive: wordSet(lex.TimeSensitive),
		tutorial:      wordSet(lex.Tutorial),
		technical:     wordSet(lex.Technical),
	}
}

// EstimateTTL picks a tier for the entry. Rules apply in order, first match
// wins:
//
//  1. time-sensitive marker in the query: freshness beats hit rate
//  2. empty result set: cache briefly in case the upstream was degraded
//  3. tutorial-style marker: high repeat volume, low staleness risk
//  4. technology marker: medium volatility
//  5. everything else: the base tier
func (e *Estimator) EstimateTTL(query string, resultCount int) time.Duration {
	tokens := strings.Fields(strings.ToLower(query))
	if containsAny(tokens, e.timeSensitive) {
		return e.short
	}
	if resultCount == 0 {
		return e.empty
	}
	if containsAny(tokens, e.tutorial) {
		return e.long
	}
	if containsAny(tokens, e.technical) {
		return e.medium
	}
	return e.base
}

func containsAny(tokens []string, markers map[string]struct{}) bool {
	for _, token := range tokens {
		if _, ok := markers[token]; ok {
			return true
		}
	}
	return false
}

func wordSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, word := range words {
		word = strings.ToLower(strings.TrimSpace(word))
		if word != "" {
			set[word] = struct{}{}
		}
	}
	return set
}
