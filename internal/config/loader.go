package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Loader hydrates the runtime configuration while respecting env > file >
// default precedence.
type Loader struct {
	envPrefix string
	files     []string
}

// NewLoader prepares a config hydrator that honors the env-first contract
// before touching files or defaults.
func NewLoader(envPrefix string, files ...string) *Loader {
	return &Loader{
		envPrefix: envPrefix,
		files:     files,
	}
}

// Load assembles the effective snapshot so the lifecycle agent can make
// decisions using the documented precedence rules.
func (l *Loader) Load(ctx context.Context) (Config, error) {
	defaultCfg := DefaultConfig()
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(structToMap(defaultCfg), "."), nil); err != nil {
		return Config{}, fmt.Errorf("config: load defaults: %w", err)
	}

	for _, path := range l.files {
		if path == "" {
			continue
		}
		select {
		case <-ctx.Done():
			return Config{}, ctx.Err()
		default:
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("config: file %s not found", path)
			}
			return Config{}, fmt.Errorf("config: stat %s: %w", path, err)
		}
		parser, err := parserForFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return Config{}, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	if l.envPrefix != "" {
		canonical := map[string]string{
			"server.cors.allowedorigins":      "server.cors.allowedOrigins",
			"server.store.redis.tls.cafile":   "server.store.redis.tls.caFile",
			"server.cache.keyprefix":          "server.cache.keyPrefix",
			"server.cache.lexiconfile":        "server.cache.lexiconFile",
			"server.cache.ttl.shortseconds":   "server.cache.ttl.shortSeconds",
			"server.cache.ttl.emptyseconds":   "server.cache.ttl.emptySeconds",
			"server.cache.ttl.longseconds":    "server.cache.ttl.longSeconds",
			"server.cache.ttl.mediumseconds":  "server.cache.ttl.mediumSeconds",
			"server.cache.ttl.baseseconds":    "server.cache.ttl.baseSeconds",
			"server.ratelimit.limit":          "server.rateLimit.limit",
			"server.ratelimit.windowseconds":  "server.rateLimit.windowSeconds",
			"server.ratelimit.graceseconds":   "server.rateLimit.graceSeconds",
			"server.upstream.apikey":          "server.upstream.apiKey",
			"server.upstream.timeoutseconds":  "server.upstream.timeoutSeconds",
			"server.upstream.maxresults":      "server.upstream.maxResults",
		}
		transform := func(s string) string {
			// Double underscores signal a nested path (SERVER__LISTEN__PORT -> server.listen.port).
			key := strings.TrimPrefix(s, l.envPrefix+"_")
			key = strings.ReplaceAll(key, "__", ".")
			lower := strings.ToLower(key)
			if mapped, ok := canonical[lower]; ok {
				return mapped
			}
			// Single underscores are removed so LISTEN_PORT collapses into listenport when callers
			// choose not to use double underscores for object nesting.
			key = strings.ReplaceAll(key, "_", "")
			return strings.ToLower(key)
		}
		if err := k.Load(env.Provider(l.envPrefix, ".", transform), nil); err != nil {
			return Config{}, fmt.Errorf("config: load env: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parserForFile(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return kjson.Parser(), nil
	case ".toml":
		return toml.Parser(), nil
	default:
		return nil, fmt.Errorf("config: unsupported file format %s", path)
	}
}

// structToMap converts DefaultConfig into a map for the koanf confmap provider.
func structToMap(cfg Config) map[string]any {
	return map[string]any{
		"server": map[string]any{
			"listen": map[string]any{
				"address": cfg.Server.Listen.Address,
				"port":    cfg.Server.Listen.Port,
			},
			"logging": map[string]any{
				"level":  cfg.Server.Logging.Level,
				"format": cfg.Server.Logging.Format,
			},
			"cors": map[string]any{
				"allowedOrigins": cfg.Server.CORS.AllowedOrigins,
			},
			"store": map[string]any{
				"backend": cfg.Server.Store.Backend,
				"redis": map[string]any{
					"address":  cfg.Server.Store.Redis.Address,
					"username": cfg.Server.Store.Redis.Username,
					"password": cfg.Server.Store.Redis.Password,
					"db":       cfg.Server.Store.Redis.DB,
					"tls": map[string]any{
						"enabled": cfg.Server.Store.Redis.TLS.Enabled,
						"caFile":  cfg.Server.Store.Redis.TLS.CAFile,
					},
				},
			},
			"cache": map[string]any{
				"keyPrefix":   cfg.Server.Cache.KeyPrefix,
				"lexiconFile": cfg.Server.Cache.LexiconFile,
				"ttl": map[string]any{
					"shortSeconds":  cfg.Server.Cache.TTL.ShortSeconds,
					"emptySeconds":  cfg.Server.Cache.TTL.EmptySeconds,
					"longSeconds":   cfg.Server.Cache.TTL.LongSeconds,
					"mediumSeconds": cfg.Server.Cache.TTL.MediumSeconds,
					"baseSeconds":   cfg.Server.Cache.TTL.BaseSeconds,
				},
			},
			"rateLimit": map[string]any{
				"limit":         cfg.Server.RateLimit.Limit,
				"windowSeconds": cfg.Server.RateLimit.WindowSeconds,
				"graceSeconds":  cfg.Server.RateLimit.GraceSeconds,
			},
			"upstream": map[string]any{
				"mode":           cfg.Server.Upstream.Mode,
				"url":            cfg.Server.Upstream.URL,
				"apiKey":         cfg.Server.Upstream.APIKey,
				"timeoutSeconds": cfg.Server.Upstream.TimeoutSeconds,
				"maxResults":     cfg.Server.Upstream.MaxResults,
			},
		},
	}
}
