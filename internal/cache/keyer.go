// Package cache implements the result cache for the search proxy: stable
// cache-key generation, content-aware TTL estimation, and a fail-soft
// adapter over the external key-value store.
package cache

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Keyer turns a free-text query plus an options map into a deterministic
// cache key. Queries that differ only in case, word order, or incidental
// filler words collapse into one bucket; the options map contributes an
// order-independent fingerprint.
type Keyer struct {
	prefix    string
	stopWords map[string]struct{}
}

// NewKeyer builds a Keyer for the given key namespace and stop-word list.
func NewKeyer(prefix string, stopWords []string) *Keyer {
	stop := make(map[string]struct{}, len(stopWords))
	for _, word := range stopWords {
		word = strings.ToLower(strings.TrimSpace(word))
		if word != "" {
			stop[word] = struct{}{}
		}
	}
	return &Keyer{prefix: prefix, stopWords: stop}
}

// Normalize lowercases and trims the query, collapses whitespace, drops
// stop words, and sorts the surviving tokens. The sort is deliberate: it
// groups reorderings of the same terms into a single cache bucket. The
// function is total and idempotent; a whitespace-only query normalizes to
// the empty string and callers reject empty queries before key generation.
func (k *Keyer) Normalize(query string) string {
	tokens := strings.Fields(strings.ToLower(query))
	kept := tokens[:0]
	for _, token := range tokens {
		if _, stop := k.stopWords[token]; stop {
			continue
		}
		kept = append(kept, token)
	}
	sort.Strings(kept)
	return strings.Join(kept, " ")
}

// Fingerprint reduces an options map to a short order-independent hash.
// Keys are sorted before serialization because map iteration order is not
// stable; two semantically identical option sets must never produce
// different fingerprints. An empty map yields the empty string.
func Fingerprint(options map[string]any) string {
	if len(options) == 0 {
		return ""
	}
	keys := make([]string, 0, len(options))
	for key := range options {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+":"+renderScalar(options[key]))
	}
	canonical := strings.Join(parts, "|")

	// 32-bit rolling hash rendered in base 36; collisions across distinct
	// option sets for the same normalized query are tolerable for a cache.
	var hash uint32
	for _, r := range canonical {
		hash = hash*31 + uint32(r)
	}
	return strconv.FormatUint(uint64(hash), 36)
}

// Key assembles the full cache key for a query and its options.
func (k *Keyer) Key(query string, options map[string]any) string {
	return k.prefix + ":" + k.Normalize(query) + ":" + Fingerprint(options)
}

// HitsKey names the sibling counter key tracking cache hits for an entry.
func HitsKey(key string) string { return key + ":hits" }

// LastSeenKey names the sibling key recording when an entry last served a
// hit.
func LastSeenKey(key string) string { return key + ":seen" }

func renderScalar(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		// JSON numbers decode as float64; render integral values without a
		// fractional part so 10 and 10.0 fingerprint identically.
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}
