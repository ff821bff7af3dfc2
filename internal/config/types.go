package config

import (
	"fmt"
	"strings"
)

// Config holds every server-level option once the loader resolves the
// env > file > default precedence chain.
type Config struct {
	Server ServerConfig `koanf:"server"`
}

// ServerConfig collects the bootstrap knobs owned by the lifecycle agent.
type ServerConfig struct {
	Listen    ListenConfig    `koanf:"listen"`
	Logging   LoggingConfig   `koanf:"logging"`
	CORS      CORSConfig      `koanf:"cors"`
	Store     StoreConfig     `koanf:"store"`
	Cache     CacheConfig     `koanf:"cache"`
	RateLimit RateLimitConfig `koanf:"rateLimit"`
	Upstream  UpstreamConfig  `koanf:"upstream"`
}

// ListenConfig instructs the HTTP listener about bind address and port.
type ListenConfig struct {
	Address string `koanf:"address"`
	Port    int    `koanf:"port"`
}

// LoggingConfig expresses log level and format.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// CORSConfig lists the origins allowed to call the search endpoint. Entries
// are exact origins or wildcard-subdomain patterns such as *.example.com.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowedOrigins"`
}

// StoreConfig selects the key-value backend shared by the result cache and
// the rate limiter.
type StoreConfig struct {
	Backend string           `koanf:"backend"`
	Redis   RedisStoreConfig `koanf:"redis"`
}

type RedisStoreConfig struct {
	Address  string              `koanf:"address"`
	Username string              `koanf:"username"`
	Password string              `koanf:"password"`
	DB       int                 `koanf:"db"`
	TLS      RedisTLSStoreConfig `koanf:"tls"`
}

type RedisTLSStoreConfig struct {
	Enabled bool   `koanf:"enabled"`
	CAFile  string `koanf:"caFile"`
}

// CacheConfig tunes the result cache: key namespace, the TTL tiers the
// estimator picks from, and an optional lexicon document overriding the
// built-in marker sets.
type CacheConfig struct {
	KeyPrefix   string         `koanf:"keyPrefix"`
	TTL         CacheTTLConfig `koanf:"ttl"`
	LexiconFile string         `koanf:"lexiconFile"`
}

// CacheTTLConfig holds the per-tier TTLs in seconds. Tier selection lives in
// the estimator; the values live here so operators can tune freshness
// against hit rate without a redeploy.
type CacheTTLConfig struct {
	ShortSeconds  int `koanf:"shortSeconds"`
	EmptySeconds  int `koanf:"emptySeconds"`
	LongSeconds   int `koanf:"longSeconds"`
	MediumSeconds int `koanf:"mediumSeconds"`
	BaseSeconds   int `koanf:"baseSeconds"`
}

// RateLimitConfig bounds per-client request volume per fixed window.
type RateLimitConfig struct {
	Limit         int `koanf:"limit"`
	WindowSeconds int `koanf:"windowSeconds"`
	GraceSeconds  int `koanf:"graceSeconds"`
}

// UpstreamConfig points at the external search API. Mode selects the live
// client or the fake used in development; the fake is never substituted
// silently when the live client fails.
type UpstreamConfig struct {
	Mode           string `koanf:"mode"`
	URL            string `koanf:"url"`
	APIKey         string `koanf:"apiKey"`
	TimeoutSeconds int    `koanf:"timeoutSeconds"`
	MaxResults     int    `koanf:"maxResults"`
}

// DefaultConfig returns the baseline the confmap provider seeds before file
// and env overrides apply.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Listen: ListenConfig{
				Address: "0.0.0.0",
				Port:    8080,
			},
			Logging: LoggingConfig{
				Level:  "info",
				Format: "json",
			},
			Store: StoreConfig{
				Backend: "memory",
			},
			Cache: CacheConfig{
				KeyPrefix: "search",
				TTL: CacheTTLConfig{
					ShortSeconds:  30,
					EmptySeconds:  180,
					LongSeconds:   1800,
					MediumSeconds: 900,
					BaseSeconds:   600,
				},
			},
			RateLimit: RateLimitConfig{
				Limit:         10,
				WindowSeconds: 60,
				GraceSeconds:  5,
			},
			Upstream: UpstreamConfig{
				Mode:           "fake",
				TimeoutSeconds: 15,
				MaxResults:     25,
			},
		},
	}
}

// Validate rejects configurations that would boot into an unserviceable
// state rather than letting agents discover the problem mid-request.
func (c Config) Validate() error {
	if c.Server.Listen.Port <= 0 || c.Server.Listen.Port > 65535 {
		return fmt.Errorf("config: listen port %d out of range", c.Server.Listen.Port)
	}
	switch strings.ToLower(strings.TrimSpace(c.Server.Store.Backend)) {
	case "", "memory", "redis":
	default:
		return fmt.Errorf("config: unsupported store backend %q", c.Server.Store.Backend)
	}
	if c.Server.RateLimit.Limit <= 0 {
		return fmt.Errorf("config: rate limit %d must be positive", c.Server.RateLimit.Limit)
	}
	if c.Server.RateLimit.WindowSeconds <= 0 {
		return fmt.Errorf("config: rate limit window %ds must be positive", c.Server.RateLimit.WindowSeconds)
	}
	if c.Server.RateLimit.GraceSeconds < 0 {
		return fmt.Errorf("config: rate limit grace %ds must not be negative", c.Server.RateLimit.GraceSeconds)
	}
	ttl := c.Server.Cache.TTL
	tiers := []struct {
		name    string
		seconds int
	}{
		{"shortSeconds", ttl.ShortSeconds},
		{"emptySeconds", ttl.EmptySeconds},
		{"longSeconds", ttl.LongSeconds},
		{"mediumSeconds", ttl.MediumSeconds},
		{"baseSeconds", ttl.BaseSeconds},
	}
	for _, tier := range tiers {
		if tier.seconds <= 0 {
			return fmt.Errorf("config: cache ttl %s must be positive", tier.name)
		}
	}
	if strings.TrimSpace(c.Server.Cache.KeyPrefix) == "" {
		return fmt.Errorf("config: cache key prefix required")
	}
	mode := strings.ToLower(strings.TrimSpace(c.Server.Upstream.Mode))
	switch mode {
	case "", "fake":
	case "live":
		if strings.TrimSpace(c.Server.Upstream.URL) == "" {
			return fmt.Errorf("config: upstream url required in live mode")
		}
		if len(c.Server.CORS.AllowedOrigins) == 0 {
			return fmt.Errorf("config: at least one allowed origin required in live mode")
		}
	default:
		return fmt.Errorf("config: unsupported upstream mode %q", c.Server.Upstream.Mode)
	}
	if c.Server.Upstream.TimeoutSeconds <= 0 {
		return fmt.Errorf("config: upstream timeout %ds must be positive", c.Server.Upstream.TimeoutSeconds)
	}
	if c.Server.Upstream.MaxResults <= 0 {
		return fmt.Errorf("config: upstream max results %d must be positive", c.Server.Upstream.MaxResults)
	}
	return nil
}
