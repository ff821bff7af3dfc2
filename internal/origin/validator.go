// Package origin decides whether a caller-declared Origin header may use
// the search endpoint. The allow-list supports exact origins and
// wildcard-subdomain patterns; a missing origin is always rejected.
package origin

import (
	"fmt"
	"regexp"
	"strings"
)

// Validator matches request origins against a fixed allow-list. Patterns
// are compiled once at construction so the per-request check stays cheap.
type Validator struct {
	exact    map[string]struct{}
	patterns []*regexp.Regexp
}

// NewValidator compiles the allow-list. Entries containing a * become
// anchored regular expressions with literal dots escaped; everything else
// is matched exactly.
func NewValidator(allowList []string) (*Validator, error) {
	v := &Validator{exact: make(map[string]struct{}, len(allowList))}
	for _, entry := range allowList {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "*") {
			v.exact[entry] = struct{}{}
			continue
		}
		expr := "^" + strings.ReplaceAll(regexp.QuoteMeta(entry), `\*`, ".*") + "$"
		pattern, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("origin: compile pattern %q: %w", entry, err)
		}
		v.patterns = append(v.patterns, pattern)
	}
	return v, nil
}

// Allowed reports whether the full origin string matches the allow-list.
// The empty string stands for an absent Origin header and never matches.
func (v *Validator) Allowed(origin string) bool {
	if v == nil || origin == "" {
		return false
	}
	if _, ok := v.exact[origin]; ok {
		return true
	}
	for _, pattern := range v.patterns {
		if pattern.MatchString(origin) {
			return true
		}
	}
	return false
}
