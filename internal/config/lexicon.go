package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/v2"
)

// Lexicon carries the word lists that drive cache-key normalization and TTL
// estimation. The sets are configuration data rather than constants so the
// hit-rate/freshness tradeoff can be tuned without redeploying core logic.
type Lexicon struct {
	// StopWords are dropped from queries before cache-key generation. The
	// list is deliberately conservative (articles and conjunctions only);
	// interrogative words like "how" and "why" change meaning and stay.
	StopWords []string `koanf:"stopWords"`
	// TimeSensitive marks queries whose answers go stale in seconds.
	TimeSensitive []string `koanf:"timeSensitive"`
	// Tutorial marks evergreen how-to queries with high repeat volume.
	Tutorial []string `koanf:"tutorial"`
	// Technical marks technology-specific queries of middling volatility.
	Technical []string `koanf:"technical"`
}

// DefaultLexicon returns the built-in word lists used when no lexicon file
// is configured.
func DefaultLexicon() Lexicon {
	return Lexicon{
		StopWords:     []string{"a", "an", "and", "but", "for", "nor", "of", "or", "so", "the", "to", "yet"},
		TimeSensitive: []string{"breaking", "current", "latest", "live", "news", "today", "yesterday"},
		Tutorial:      []string{"best", "guide", "how", "learn", "tutorial"},
		Technical:     []string{"api", "docker", "golang", "javascript", "kubernetes", "python", "react", "rust", "sql", "typescript"},
	}
}

// LoadLexicon reads the lexicon document at path, falling back to the
// defaults for any list the document leaves empty. The format follows the
// file extension, matching the server configuration loader.
func LoadLexicon(path string) (Lexicon, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultLexicon(), nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Lexicon{}, fmt.Errorf("config: lexicon file %s not found", path)
		}
		return Lexicon{}, fmt.Errorf("config: stat lexicon %s: %w", path, err)
	}
	parser, err := parserForFile(path)
	if err != nil {
		return Lexicon{}, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Lexicon{}, fmt.Errorf("config: read lexicon %s: %w", path, err)
	}
	parsed, err := parser.Unmarshal(raw)
	if err != nil {
		return Lexicon{}, fmt.Errorf("config: parse lexicon %s: %w", path, err)
	}
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(parsed, "."), nil); err != nil {
		return Lexicon{}, fmt.Errorf("config: load lexicon %s: %w", path, err)
	}
	lex := DefaultLexicon()
	if err := k.Unmarshal("", &lex); err != nil {
		return Lexicon{}, fmt.Errorf("config: unmarshal lexicon %s: %w", path, err)
	}
	lex.applyDefaults()
	return lex, nil
}

func (l *Lexicon) applyDefaults() {
	defaults := DefaultLexicon()
	if len(l.StopWords) == 0 {
		l.StopWords = defaults.StopWords
	}
	if len(l.TimeSensitive) == 0 {
		l.TimeSensitive = defaults.TimeSensitive
	}
	if len(l.Tutorial) == 0 {
		l.Tutorial = defaults.Tutorial
	}
	if len(l.Technical) == 0 {
		l.Technical = defaults.Technical
	}
}
